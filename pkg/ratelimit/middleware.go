package ratelimit

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/pkg/apperror"
)

// KeyFunc derives the throttling key from a request.
type KeyFunc func(c echo.Context) string

// ByIP keys on the client address.
func ByIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

const maxKeyBody = 64 << 10

// restoredBody replays the bytes read for the key before the unread rest.
type restoredBody struct {
	io.Reader
	io.Closer
}

// ByJSONField keys on a string field of the JSON body, lowercased. The body
// is restored for the handler. Requests without the field fall back to ByIP.
func ByJSONField(field string) KeyFunc {
	return func(c echo.Context) string {
		req := c.Request()
		if req.Body == nil {
			return ByIP(c)
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxKeyBody))
		req.Body = restoredBody{Reader: io.MultiReader(bytes.NewReader(body), req.Body), Closer: req.Body}
		if err != nil {
			return ByIP(c)
		}

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return ByIP(c)
		}
		v, _ := payload[field].(string)
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return ByIP(c)
		}
		return field + ":" + v
	}
}

// Middleware throttles a route. Denied requests get 429 with Retry-After.
func (s *Service) Middleware(route string, p Policy, key KeyFunc) echo.MiddlewareFunc {
	p = p.normalized()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, err := s.Allow(c.Request().Context(), route, key(c), p)
			if err != nil {
				return apperror.ErrUnavailable.WithInternal(err)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(p.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				seconds := int(math.Ceil(d.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				h.Set("Retry-After", strconv.Itoa(seconds))
				return apperror.ErrTooManyRequests.WithDetails(map[string]any{
					"retryAfterSeconds": seconds,
				})
			}
			return next(c)
		}
	}
}
