// Package rediscontainer runs a throwaway Redis in docker for integration tests.
package rediscontainer

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	image         = "redis:7-alpine"
	containerName = "tileproxy-cache-redis-test"
	hostPort      = "6391"
)

var (
	once     sync.Once
	setupErr error
)

// Addr exposes the Redis host:port combination used by integration tests.
func Addr() string { return "127.0.0.1:" + hostPort }

// Setup runs the Redis container and waits until it answers RESP PING/PONG exchanges.
func Setup() error {
	once.Do(func() {
		if _, err := exec.LookPath("docker"); err != nil {
			setupErr = fmt.Errorf("docker executable not found: %w", err)
			return
		}
		_ = stopContainer()
		if err := runDocker("run", "-d", "--rm", "--name", containerName, "-p", hostPort+":6379", image); err != nil {
			setupErr = err
			return
		}
		setupErr = waitForRedis(Addr(), 10*time.Second)
	})
	return setupErr
}

// Teardown stops the Redis container if it is running.
func Teardown() error {
	if setupErr != nil {
		return setupErr
	}
	return stopContainer()
}

func stopContainer() error {
	output, err := exec.Command("docker", "stop", containerName).CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop failed: %w: %s", err, output)
	}
	return nil
}

func runDocker(args ...string) error {
	output, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %w: %s", args[0], err, output)
	}
	return nil
}

func waitForRedis(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	payload := []byte("*1\r\n$4\r\nPING\r\n")
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			if _, err := conn.Write(payload); err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err == nil && strings.Contains(line, "PONG") {
					_ = conn.Close()
					return nil
				}
			}
			_ = conn.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("redis container did not respond to ping")
}
