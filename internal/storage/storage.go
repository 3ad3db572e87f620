package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewConfig),
	fx.Provide(NewService),
)

// ErrDisabled is returned by every operation when storage is not configured.
var ErrDisabled = errors.New("storage service not enabled")

// logoTypes maps accepted logo content types to file extensions.
var logoTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Config holds storage configuration
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	Bucket        string
	PublicBaseURL string
	PresignTTL    time.Duration
}

// Enabled returns true if storage is properly configured
func (c *Config) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// NewConfig derives the storage config from the application config.
func NewConfig(cfg *config.Config) *Config {
	s := cfg.Storage
	region := s.Region
	if region == "" {
		region = "us-east-1"
	}
	ttl := s.PresignTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Config{
		Endpoint:      s.Endpoint,
		AccessKey:     s.AccessKeyID,
		SecretKey:     s.SecretAccessKey,
		Region:        region,
		Bucket:        s.Bucket,
		PublicBaseURL: s.PublicBaseURL,
		PresignTTL:    ttl,
	}
}

// Service stores company logos in an S3-compatible bucket. Browsers upload
// directly with a presigned PUT URL.
type Service struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	cfg           *Config
	log           *slog.Logger
}

// PresignedUpload is everything a browser needs to PUT a logo.
type PresignedUpload struct {
	URL       string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Key       string            `json:"key"`
	Headers   map[string]string `json:"headers"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// NewService creates a new storage service
func NewService(cfg *Config, log *slog.Logger) (*Service, error) {
	log = log.With(logger.Scope("storage"))
	if !cfg.Enabled() {
		log.Warn("storage service disabled - no configuration provided")
		return &Service{cfg: cfg, log: log}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing keeps MinIO and R2 endpoints working.
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	log.Info("storage service initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)

	return &Service{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		cfg:           cfg,
		log:           log,
	}, nil
}

// Enabled returns true if the storage service is properly configured
func (s *Service) Enabled() bool {
	return s.client != nil
}

// IsLogoContentType reports whether contentType is accepted for logos.
func IsLogoContentType(contentType string) bool {
	_, ok := logoTypes[strings.ToLower(contentType)]
	return ok
}

// GenerateLogoKey creates a storage key for a logo.
// Format: logos/{yyyy}/{mm}/{uuid}.{ext}
func GenerateLogoKey(contentType string, now time.Time) string {
	ext, ok := logoTypes[strings.ToLower(contentType)]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("logos/%04d/%02d/%s.%s", now.Year(), int(now.Month()), uuid.NewString(), ext)
}

// IsLogoKey reports whether key has the shape produced by GenerateLogoKey.
func IsLogoKey(key string) bool {
	if !strings.HasPrefix(key, "logos/") || strings.Contains(key, "..") {
		return false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		return false
	}
	name := parts[3]
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return false
	}
	if _, err := uuid.Parse(name[:dot]); err != nil {
		return false
	}
	for _, ext := range logoTypes {
		if name[dot+1:] == ext {
			return true
		}
	}
	return false
}

// PresignLogoUpload returns a PUT URL for a new logo of contentType.
func (s *Service) PresignLogoUpload(ctx context.Context, contentType string) (*PresignedUpload, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	contentType = strings.ToLower(contentType)
	if !IsLogoContentType(contentType) {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	key := GenerateLogoKey(contentType, time.Now().UTC())
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(po *s3.PresignOptions) {
		po.Expires = s.cfg.PresignTTL
	})
	if err != nil {
		s.log.Error("failed to presign logo upload", slog.String("key", key), logger.Error(err))
		return nil, fmt.Errorf("presign failed: %w", err)
	}

	return &PresignedUpload{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		Headers:   map[string]string{"Content-Type": contentType},
		PublicURL: s.PublicURL(key),
		ExpiresAt: time.Now().Add(s.cfg.PresignTTL),
	}, nil
}

// PublicURL returns the URL a logo is served from. Without a public base
// URL the path-style bucket URL is used.
func (s *Service) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
}

// Delete removes key. Deleting a missing key is not an error on S3.
func (s *Service) Delete(ctx context.Context, key string) error {
	if !s.Enabled() {
		return ErrDisabled
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.log.Warn("logo delete failed", slog.String("key", key), logger.Error(err))
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	if !s.Enabled() {
		return false, ErrDisabled
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var re *awshttp.ResponseError
		if errors.As(err, &nf) || (errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}

	return true, nil
}
