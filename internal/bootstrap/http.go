package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/jobstream/config"
	httpx "github.com/target/jobstream/internal/http"
	"golang.org/x/net/netutil"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	// Context is the service lifetime. Open streams end when it is cancelled.
	Context  context.Context
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Services == nil {
		return nil, errors.New("http server requires services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(buildRouterServices(appCfg, cfg.Services, logger))

	ln, err := net.Listen("tcp", serverAddr(appCfg.HTTP.Addr))
	if err != nil {
		return nil, err
	}
	if appCfg.HTTP.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, appCfg.HTTP.MaxConnections)
	}

	baseCtx := cfg.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadTimeout:       appCfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		logger.Info("starting HTTP server",
			"addr", server.Addr,
			"max_connections", appCfg.HTTP.MaxConnections,
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", serveErr)
		}
	}()

	return server, nil
}

func buildRouterServices(cfg *config.AppConfig, svcs *ServiceContainer, logger *slog.Logger) httpx.RouterServices {
	rs := httpx.RouterServices{
		Producer:     svcs.Producer,
		Delivery:     svcs.Delivery,
		KeepAlive:    cfg.Stream.KeepAlive,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		HealthChecks: svcs.HealthChecks(),
		Logger:       logger,
	}
	// Interface fields stay nil when the optional pipelines are not wired so
	// their routes are not registered.
	if svcs.Validation != nil {
		rs.Validation = svcs.Validation
	}
	if svcs.Webhook != nil {
		rs.Webhook = svcs.Webhook
	}
	if cfg.Observability.Metrics.PrometheusEnabled && svcs.Observability.Registry != nil {
		rs.Metrics = svcs.Observability.Registry
	}
	return rs
}

func serverAddr(addr string) string {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		return ":8080"
	}
	return addr
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
