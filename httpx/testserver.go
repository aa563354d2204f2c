package httpx

import (
	"net/http"
	"net/http/httptest"
)

// TestServer wraps httptest.Server so callers don't import net/http/httptest.
type TestServer struct{ *httptest.Server }

// NewTestServer starts a new TestServer from an http.Handler.
func NewTestServer(handler http.Handler) *TestServer {
	return &TestServer{httptest.NewServer(handler)}
}

// NewTestServerFunc starts a TestServer from a handler function. Feeds use it to
// stand in for third-party APIs.
func NewTestServerFunc(fn func(http.ResponseWriter, *http.Request)) *TestServer {
	return NewTestServer(http.HandlerFunc(fn))
}

// BaseURL returns the server's base URL.
func (ts *TestServer) BaseURL() string {
	if ts == nil || ts.Server == nil {
		return ""
	}
	return ts.URL
}
