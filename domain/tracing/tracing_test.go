package tracing

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vaguinhas/vaguinhas/internal/config"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	p, err := NewTracerProvider(&config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Nil(t, p.SDK)
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")

	var _ sdktrace.Sampler = newSampler(0.5)
}

func TestUntraced(t *testing.T) {
	e := echo.New()
	for path, want := range map[string]bool{
		"/health":          true,
		"/metrics":         true,
		"/api/subscribe":   false,
		"/api/admin/queue": false,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		assert.Equal(t, want, untraced(c), path)
	}
}
