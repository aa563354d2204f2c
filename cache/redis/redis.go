// Package redis is a cache.Store speaking RESP directly, for deployments where
// several proxy replicas should share one cache.
package redis

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/tileproxy/cache"
)

// Store implements cache.Store using the Redis RESP protocol.
type Store struct {
	opts   Options
	dialFn dialFunc
	pool   chan *clientConn
}

type dialFunc func(context.Context, Options) (net.Conn, error)

// NewStore builds a Redis-backed cache store. Connections are dialed lazily.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{opts: cfg, dialFn: defaultDial, pool: make(chan *clientConn, cfg.PoolSize)}
}

// WithDial allows overriding the dialer (useful for tests/mocks).
func (s *Store) WithDial(fn dialFunc) {
	if fn != nil {
		s.dialFn = fn
	}
}

func (s *Store) key(k string) string {
	if s.opts.Namespace == "" {
		return k
	}
	return s.opts.Namespace + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.withConn(ctx, func(conn *clientConn) error {
		resp, err := s.roundTrip(conn, "GET", s.key(key))
		if err != nil {
			return err
		}
		switch v := resp.(type) {
		case nil:
			return cache.ErrNotFound
		case []byte:
			payload = append([]byte(nil), v...)
			return nil
		default:
			return fmt.Errorf("redis: unexpected GET response %T", resp)
		}
	})
	return payload, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.withConn(ctx, func(conn *clientConn) error {
		args := []string{"SET", s.key(key), string(value)}
		if ttl > 0 {
			ms := ttl.Milliseconds()
			if ms == 0 {
				ms = 1
			}
			args = append(args, "PX", strconv.FormatInt(ms, 10))
		}
		resp, err := s.roundTrip(conn, args...)
		if err != nil {
			return err
		}
		if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
			return nil
		}
		return fmt.Errorf("redis: SET failed: %v", resp)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.withConn(ctx, func(conn *clientConn) error {
		resp, err := s.roundTrip(conn, "DEL", s.key(key))
		if err != nil {
			return err
		}
		n, ok := resp.(int64)
		if !ok {
			return fmt.Errorf("redis: DEL failed: %v", resp)
		}
		if n == 0 {
			return cache.ErrNotFound
		}
		return nil
	})
}

// Ping checks that the server answers; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(conn *clientConn) error {
		resp, err := s.roundTrip(conn, "PING")
		if err != nil {
			return err
		}
		if msg, ok := resp.(string); ok && strings.EqualFold(msg, "PONG") {
			return nil
		}
		return fmt.Errorf("redis: unexpected PING response %v", resp)
	})
}

// Close drops every pooled connection.
func (s *Store) Close() error {
	for {
		select {
		case conn := <-s.pool:
			_ = conn.Close()
		default:
			return nil
		}
	}
}

func (s *Store) roundTrip(conn *clientConn, parts ...string) (any, error) {
	if err := s.send(conn, parts...); err != nil {
		return nil, err
	}
	return s.read(conn)
}

func (s *Store) withConn(ctx context.Context, fn func(*clientConn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	broken := false
	defer func() {
		s.releaseConn(conn, broken)
	}()
	if err := fn(conn); err != nil {
		var netErr net.Error
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.As(err, &netErr) {
			broken = true
		}
		return err
	}
	return nil
}

func (s *Store) handshake(conn *clientConn) error {
	if s.opts.Password != "" {
		if err := s.expectOK(conn, "AUTH", s.opts.Password); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		if err := s.expectOK(conn, "SELECT", strconv.Itoa(s.opts.DB)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) expectOK(conn *clientConn, parts ...string) error {
	resp, err := s.roundTrip(conn, parts...)
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: %s: expected OK, got %v", parts[0], resp)
}

func (s *Store) send(conn *clientConn, parts ...string) error {
	if err := applyDeadline(conn.SetWriteDeadline, s.opts.WriteTimeout); err != nil {
		return err
	}
	_, err := conn.Write(buildCommand(parts...))
	return err
}

func (s *Store) read(conn *clientConn) (any, error) {
	if err := applyDeadline(conn.SetReadDeadline, s.opts.ReadTimeout); err != nil {
		return nil, err
	}
	return decodeRESP(conn.reader)
}

type clientConn struct {
	net.Conn
	reader *bufio.Reader
}

func (s *Store) acquireConn(ctx context.Context) (*clientConn, error) {
	select {
	case conn := <-s.pool:
		return conn, nil
	default:
		return s.newConn(ctx)
	}
}

func (s *Store) releaseConn(conn *clientConn, broken bool) {
	if conn == nil {
		return
	}
	if broken {
		_ = conn.Close()
		return
	}
	select {
	case s.pool <- conn:
	default:
		_ = conn.Close()
	}
}

func (s *Store) newConn(ctx context.Context) (*clientConn, error) {
	nc, err := s.dialFn(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	conn := &clientConn{Conn: nc, reader: bufio.NewReader(nc)}
	if err := s.handshake(conn); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return conn, nil
}

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return dialer.DialContext(ctx, "tcp", opts.Addr)
}

func buildCommand(parts ...string) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "*%d\r\n", len(parts))
	for _, part := range parts {
		fmt.Fprintf(buf, "$%d\r\n%s\r\n", len(part), part)
	}
	return buf.Bytes()
}

func decodeRESP(r *bufio.Reader) (any, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\r\n")
	switch prefix {
	case '+':
		return line, nil
	case '-':
		return nil, errors.New("redis: " + line)
	case ':':
		return strconv.ParseInt(line, 10, 64)
	case '$':
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, nil
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if err := consumeCRLF(r); err != nil {
			return nil, err
		}
		return data, nil
	case '*':
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, nil
		}
		arr := make([]any, n)
		for i := range arr {
			if arr[i], err = decodeRESP(r); err != nil {
				return nil, err
			}
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("redis: unsupported RESP prefix %q", prefix)
	}
}

func consumeCRLF(r *bufio.Reader) error {
	var crlf [2]byte
	if _, err := io.ReadFull(r, crlf[:]); err != nil {
		return err
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return errors.New("redis: malformed RESP terminator")
	}
	return nil
}

func applyDeadline(setter func(time.Time) error, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return setter(time.Now().Add(timeout))
}

var _ cache.Store = (*Store)(nil)
