package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/adeilh/tileproxy/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommandMasksKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
keys:
  nyt: secret-nyt
`), 0o600))

	out, err := run(t, "config", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "secret-nyt")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "********", cfg.Keys.NYT)
	assert.Equal(t, config.BackendMemory, cfg.Cache.Backend)
}

func TestConfigCommandMissingFile(t *testing.T) {
	_, err := run(t, "config", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "absent.yaml")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("DASHD_CACHE_BACKEND", "memcached")
	_, err := run(t, "serve", "--addr", "127.0.0.1:0")
	assert.ErrorContains(t, err, "cache.backend")
}

func TestUnknownCommand(t *testing.T) {
	_, err := run(t, "launch")
	assert.Error(t, err)
}
