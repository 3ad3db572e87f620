package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
)

type subscribeForm struct {
	Email          string   `json:"email" validate:"required,email"`
	SeniorityLevel string   `json:"seniorityLevel" validate:"required,seniority"`
	Stacks         []string `json:"stacks" validate:"required,min=1,dive,stack"`
}

func testValidator(t *testing.T) *Validator {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	v, err := NewValidator(cat)
	require.NoError(t, err)
	return v
}

func TestValidator_Details(t *testing.T) {
	v := testValidator(t)

	err := v.Validate(&subscribeForm{Email: "nope", SeniorityLevel: "junior", Stacks: []string{"backend", "cobol"}})
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Equal(t, "validation_error", appErr.Code)
	assert.Equal(t, "must be a valid email", appErr.Details["email"])
	assert.Equal(t, "is not a known stack", appErr.Details["stacks[1]"])

	assert.NoError(t, v.Validate(&subscribeForm{Email: "a@b.com", SeniorityLevel: "pleno", Stacks: []string{"frontend"}}))
}

func TestBindAndValidate(t *testing.T) {
	e := echo.New()
	e.Validator = testValidator(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"email":`, "bad_request"},
		{"missing fields", `{"email":"a@b.com"}`, "validation_error"},
		{"valid", `{"email":"a@b.com","seniorityLevel":"senior","stacks":["ia"]}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			c := e.NewContext(req, httptest.NewRecorder())

			var form subscribeForm
			err := BindAndValidate(c, &form)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestAllowOrigin(t *testing.T) {
	prod := &config.Config{
		Environment:    "production",
		AllowedOrigins: []string{"https://vaguinhas.com.br"},
	}
	check := AllowOrigin(prod)
	ok, _ := check("https://vaguinhas.com.br")
	assert.True(t, ok)
	ok, _ = check("https://evil.example")
	assert.False(t, ok)

	fallback := &config.Config{Environment: "production", App: config.AppConfig{FrontendURL: "https://app.vaguinhas.com.br"}}
	ok, _ = AllowOrigin(fallback)("https://app.vaguinhas.com.br")
	assert.True(t, ok)

	local := &config.Config{Environment: "local"}
	ok, _ = AllowOrigin(local)("http://localhost:5173")
	assert.True(t, ok)
}

func TestNewEcho_CORSPreflight(t *testing.T) {
	cfg := &config.Config{
		Environment:    "production",
		AllowedOrigins: []string{"https://vaguinhas.com.br"},
	}
	e := NewEcho(EchoParams{
		Config:    cfg,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator: testValidator(t),
	})
	e.POST("/api/subscribe", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/api/subscribe", nil)
	req.Header.Set(echo.HeaderOrigin, "https://vaguinhas.com.br")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://vaguinhas.com.br", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}

func TestNewEcho_RecoversPanics(t *testing.T) {
	e := NewEcho(EchoParams{
		Config:    &config.Config{Environment: "local"},
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator: testValidator(t),
	})
	e.GET("/api/boom", func(echo.Context) error { panic("nil map") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"internal_error"`)
}
