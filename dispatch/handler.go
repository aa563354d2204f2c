package dispatch

import (
	"errors"
	"net/http"

	"github.com/adeilh/tileproxy/httpx"
)

// HeaderOrigin reports cache, live, partial or fallback for every served payload.
// Bodies never carry this; they look the same whatever the origin.
const HeaderOrigin = "X-Data-Origin"

// Parser turns query parameters into a Request. Return BadRequest for invalid input.
type Parser[Q any] func(c httpx.Context) (Request[Q], error)

// Renderer shapes the response body from the served payload. A nil Renderer sends
// the payload as-is.
type Renderer[Q, T any] func(q Q, out Outcome[T]) (any, error)

// Handler adapts an endpoint to an HTTP GET handler.
func Handler[Q, T any](e *Endpoint[Q, T], parse Parser[Q], render Renderer[Q, T]) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		req, err := parse(c)
		if err != nil {
			var re *RequestError
			if errors.As(err, &re) {
				return httpx.HTTPError(httpx.StatusBadRequest, withError(re.Details, re.Message))
			}
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}

		out, err := e.Serve(c.Request().Context(), req)
		if err != nil {
			var nf *NoFallbackError
			if errors.As(err, &nf) {
				return httpx.HTTPError(nf.Status, nf.Body())
			}
			return httpx.HTTPError(httpx.StatusInternalError, "Failed to retrieve "+e.Source()+" data")
		}

		var body any = out.Payload
		if render != nil {
			if body, err = render(req.Query, out); err != nil {
				return httpx.HTTPError(httpx.StatusInternalError, "Failed to retrieve "+e.Source()+" data")
			}
		}

		h := c.Response().Header()
		h.Set(HeaderOrigin, string(out.Origin))
		h.Set("Cache-Control", "no-store")
		return c.JSON(http.StatusOK, body)
	}
}

func withError(details map[string]any, msg string) map[string]any {
	body := make(map[string]any, len(details)+1)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = msg
	return body
}
