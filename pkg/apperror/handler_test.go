package apperror

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, method string, err error) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(method, "/api/test", nil), rec)

	HTTPErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))(err, c)

	var body Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"app error", ErrUserNotFound, 404, "user_not_found", "User not found"},
		{"wrapped app error", errors.Join(errors.New("ctx"), ErrTooManyRequests), 429, "rate_limited", "Too many requests, try again later"},
		{"echo 404", echo.ErrNotFound, 404, "not_found", "Not Found"},
		{"echo 405", echo.ErrMethodNotAllowed, 405, "method_not_allowed", "Method Not Allowed"},
		{"echo custom message", echo.NewHTTPError(http.StatusRequestEntityTooLarge, "logo too large"), 413, "payload_too_large", "logo too large"},
		{"unknown error", errors.New("pq: connection reset"), 500, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, http.MethodGet, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message)
		})
	}
}

func TestHTTPErrorHandler_Details(t *testing.T) {
	err := ErrValidation.WithDetails(map[string]any{"stacks[0]": "is not a known stack"})
	rec, body := serve(t, http.MethodPost, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is not a known stack", body.Error.Details["stacks[0]"])
}

func TestHTTPErrorHandler_Head(t *testing.T) {
	rec, _ := serve(t, http.MethodHead, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestHTTPErrorHandler_Committed(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, c.String(http.StatusOK, "done"))

	HTTPErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))(ErrInternal, c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}
