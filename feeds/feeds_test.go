package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/tileproxy/cache/memory"
)

func TestTableDropsEntriesAfterRetention(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.NewStore()
	store.WithClock(clock)
	table := Table[string](Deps{Store: store, Now: clock}, "orbit", time.Minute)
	ctx := context.Background()

	_, err := table.Put(ctx, "k", "v")
	require.NoError(t, err)

	now = now.Add(3 * time.Minute)
	entry, ok, err := table.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok, "stale entries stay until retention ends")
	assert.False(t, entry.IsFresh(time.Minute, now))

	now = now.Add(time.Minute)
	_, ok, err = table.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTableWithoutWindowKeepsEntries(t *testing.T) {
	store := memory.NewStore()
	table := Table[string](Deps{Store: store, Now: time.Now}, "geocode", 0)
	_, err := table.Put(context.Background(), "k", "v")
	require.NoError(t, err)
	_, ok, err := table.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueryHelpers(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/?a=false&c=1&d=&e=maybe", nil), httptest.NewRecorder())

	assert.False(t, Bool(c, "a", true))
	assert.True(t, Bool(c, "c", false))
	assert.True(t, Bool(c, "d", true), "empty keeps the default")
	assert.False(t, Bool(c, "e", false), "unparsable keeps the default")
	assert.True(t, Bool(c, "missing", true))
	assert.True(t, Present(c, "d"))
	assert.False(t, Present(c, "missing"))
}
