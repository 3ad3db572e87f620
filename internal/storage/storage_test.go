package storage

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaguinhas/vaguinhas/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "only endpoint set", config: Config{Endpoint: "http://localhost:9000"}, expected: false},
		{name: "endpoint and access key set", config: Config{Endpoint: "http://localhost:9000", AccessKey: "minioadmin"}, expected: false},
		{name: "all required fields set", config: Config{Endpoint: "http://localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.Enabled())
		})
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Bucket = "logos"
	c := NewConfig(cfg)
	assert.Equal(t, "us-east-1", c.Region)
	assert.Equal(t, 10*time.Minute, c.PresignTTL)
	assert.Equal(t, "logos", c.Bucket)
}

func TestGenerateLogoKey(t *testing.T) {
	now := time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC)

	key := GenerateLogoKey("image/PNG", now)
	assert.True(t, strings.HasPrefix(key, "logos/2025/03/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.True(t, IsLogoKey(key))

	assert.NotEqual(t, key, GenerateLogoKey("image/png", now))
}

func TestIsLogoKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"logos/2025/03/0b8a1f4e-0e0e-4f6a-9c59-0a8d1b2c3d4e.png", true},
		{"logos/2025/03/0b8a1f4e-0e0e-4f6a-9c59-0a8d1b2c3d4e.exe", false},
		{"logos/2025/03/not-a-uuid.png", false},
		{"../etc/passwd", false},
		{"logos/../../secret.png", false},
		{"other/2025/03/0b8a1f4e-0e0e-4f6a-9c59-0a8d1b2c3d4e.png", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLogoKey(tt.key), tt.key)
	}
}

func TestDisabledService(t *testing.T) {
	svc, err := NewService(&Config{Bucket: "logos"}, testLogger())
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	_, err = svc.PresignLogoUpload(context.Background(), "image/png")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = svc.Exists(context.Background(), "k")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, svc.Delete(context.Background(), "k"), ErrDisabled)
	assert.Equal(t, "", svc.PublicURL("logos/x.png"))
}

func TestPresignLogoUpload(t *testing.T) {
	svc, err := NewService(&Config{
		Endpoint:   "http://localhost:9000",
		AccessKey:  "minioadmin",
		SecretKey:  "minioadmin",
		Region:     "us-east-1",
		Bucket:     "logos",
		PresignTTL: 5 * time.Minute,
	}, testLogger())
	require.NoError(t, err)
	require.True(t, svc.Enabled())

	_, err = svc.PresignLogoUpload(context.Background(), "image/svg+xml")
	require.Error(t, err)

	up, err := svc.PresignLogoUpload(context.Background(), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "PUT", up.Method)
	assert.True(t, IsLogoKey(up.Key))
	assert.Equal(t, "image/png", up.Headers["Content-Type"])
	assert.Equal(t, "http://localhost:9000/logos/"+up.Key, up.PublicURL)

	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/logos/"+up.Key, u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
}

func TestPublicURL_CDN(t *testing.T) {
	svc := &Service{cfg: &Config{PublicBaseURL: "https://cdn.vaguinhas.test/", Bucket: "logos"}}
	assert.Equal(t, "https://cdn.vaguinhas.test/logos/2025/01/x.png", svc.PublicURL("logos/2025/01/x.png"))
	assert.Equal(t, "", svc.PublicURL(""))
}
