package apperror

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// codeByStatus names the echo errors raised by routing and middleware.
var codeByStatus = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusUnauthorized:          "unauthorized",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "payload_too_large",
	http.StatusUnsupportedMediaType:  "unsupported_media_type",
	http.StatusUnprocessableEntity:   "validation_error",
	http.StatusTooManyRequests:       "rate_limited",
	http.StatusServiceUnavailable:    "unavailable",
}

// HTTPErrorHandler renders every error as {"error":{"code","message","details"}}.
// 5xx responses are logged with their internal cause.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := ToResponse(err)
		var he *echo.HTTPError
		if _, ok := As(err); !ok && errors.As(err, &he) {
			status, body = fromEcho(he)
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				slog.Int("status", status),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.String("error", err.Error()))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func fromEcho(he *echo.HTTPError) (int, Response) {
	code, ok := codeByStatus[he.Code]
	if !ok {
		code = ErrInternal.Code
	}
	detail := Detail{Code: code, Message: http.StatusText(he.Code)}
	switch msg := he.Message.(type) {
	case string:
		detail.Message = msg
	case error:
		detail.Message = msg.Error()
	case nil:
	default:
		detail.Message = fmt.Sprint(msg)
	}
	return he.Code, Response{Error: detail}
}
