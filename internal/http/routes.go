package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Producer   JobProducer      // Required: job enqueue
	Delivery   JobDelivery      // Required: state reads and streaming
	Validation BatchValidator   // Optional: sales order validation routes
	Webhook    WhatsAppIngester // Optional: messaging gateway webhook route

	// Readiness checks keyed by dependency name (e.g. "redis", "postgres").
	HealthChecks map[string]HealthCheck

	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer

	KeepAlive    time.Duration // ping interval for idle stream connections
	MaxBodyBytes int64         // request body cap; defaults to 1 MiB
	Logger       *slog.Logger
}

// NewRouter creates and configures a new HTTP router with logging and panic recovery.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobHandlers := &JobHandlers{
		Producer:  services.Producer,
		Delivery:  services.Delivery,
		KeepAlive: services.KeepAlive,
		Logger:    logger,
	}
	registerJobRoutes(mux, jobHandlers)

	if services.Validation != nil {
		registerValidationRoutes(mux, &ValidationHandlers{Svc: services.Validation, Logger: logger})
	}
	if services.Webhook != nil {
		registerWebhookRoutes(mux, &WebhookHandlers{Svc: services.Webhook, Logger: logger})
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.HealthChecks, logger))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(services.Metrics, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	h = MaxBody(services.MaxBodyBytes)(h)
	h = Recover(logger)(h)
	h = Logging(logger)(h)
	return h
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs/{id}/stream", h.Stream)
	mux.HandleFunc("GET /jobs/{id}/ws", h.StreamWebSocket)
	mux.HandleFunc("GET /jobs/{id}/result", h.Result)
}

func registerValidationRoutes(mux *http.ServeMux, h *ValidationHandlers) {
	mux.HandleFunc("POST /so/validate", h.Submit)
	mux.HandleFunc("GET /so/results/{id}", h.Results)
}

func registerWebhookRoutes(mux *http.ServeMux, h *WebhookHandlers) {
	mux.HandleFunc("POST /webhooks/whatsapp", h.WhatsApp)
}
