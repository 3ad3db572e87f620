package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var Module = fx.Module("server",
	fx.Provide(NewValidator),
	fx.Provide(NewEcho),
	fx.Invoke(StartServer),
)

// EchoParams are the dependencies for creating an Echo instance
type EchoParams struct {
	fx.In

	Config    *config.Config
	Log       *slog.Logger
	Validator *Validator
}

// NewEcho creates and configures an Echo instance
func NewEcho(p EchoParams) *echo.Echo {
	cfg := p.Config
	log := p.Log.With(logger.Scope("http"))

	e := echo.New()

	e.Debug = cfg.Debug
	e.HideBanner = true
	e.HidePort = !cfg.Debug
	e.Validator = p.Validator
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	e.Pre(middleware.RemoveTrailingSlash())

	e.Use(
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOriginFunc:  AllowOrigin(cfg),
			AllowCredentials: true,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderCacheControl, "Stripe-Signature"},
			ExposeHeaders:    []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:           600,
		}),

		middleware.RequestID(),
		requestLogger(log),
		recoverer(log),
		// Logos go straight to S3, so JSON and webhook payloads are all that arrive.
		middleware.BodyLimit("1M"),
	)

	return e
}

// AllowOrigin returns the CORS origin check. Origins must match the allow list
// exactly; when the list is empty only FrontendURL is allowed. Local
// environments accept any origin.
func AllowOrigin(cfg *config.Config) func(origin string) (bool, error) {
	allowed := cfg.AllowedOrigins
	if len(allowed) == 0 && cfg.App.FrontendURL != "" {
		allowed = []string{cfg.App.FrontendURL}
	}
	permissive := cfg.Environment == "local" || cfg.Environment == "test"
	return func(origin string) (bool, error) {
		if permissive {
			return true, nil
		}
		return slices.Contains(allowed, origin), nil
	}
}

// StartServer binds the listener during fx start so a taken port fails
// startup, then serves in the background until shutdown.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, log *slog.Logger) {
	log = log.With(logger.Scope("server"))
	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.ServerAddress, strconv.Itoa(cfg.ServerPort)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			e.Listener = ln
			log.Info("http server listening", slog.String("addr", ln.Addr().String()), slog.String("environment", cfg.Environment))

			go func() {
				if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped unexpectedly", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			log.Info("draining http server")
			return e.Shutdown(ctx)
		},
	})
}

// NewValidator builds the request validator with the catalog tags registered.
func NewValidator(cat *catalog.Catalog) (*Validator, error) {
	return newValidator(cat)
}
