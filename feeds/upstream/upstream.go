// Package upstream calls third-party APIs and sorts their failures into the
// provider error kinds the source chain understands.
package upstream

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

// Get issues a GET through c and decodes the JSON body into out.
//
// A 429 is a rate-limit failure, any other non-2xx or transport error means the
// provider is unavailable, and a 2xx body that does not decode is malformed.
func Get(ctx context.Context, c *httpx.Client, provider, path string, out any, opts ...httpx.RequestOption) error {
	resp, err := c.Get(ctx, path, out, opts...)
	if err == nil {
		return nil
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests {
			return source.RateLimited(provider, se.Error())
		}
		return source.Unavailable(provider, err)
	}
	if ctx.Err() == nil && resp != nil && resp.IsSuccess() {
		return source.Malformed(provider, "decode body: %v", err)
	}
	return source.Unavailable(provider, err)
}

// Float reads a number that may arrive as a JSON number or a string.
func Float(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Percent parses strings such as "1.2345%" or "-0.87 %".
func Percent(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	return Float(s)
}
