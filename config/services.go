package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server (producer, delivery and result endpoints).
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeDispatcher runs the streaming job dispatcher.
	ServiceModeDispatcher ServiceMode = "dispatcher"
	// ServiceModeValidationRunner runs the batch validation worker.
	ServiceModeValidationRunner ServiceMode = "validation-runner"
	// ServiceModeReaper runs the lease reclaim sweep.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeDispatcher,
		ServiceModeValidationRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeDispatcher, ServiceModeValidationRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, dispatcher, validation-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// DispatcherConfig contains streaming dispatcher configuration.
type DispatcherConfig struct {
	// Concurrency bounds the number of jobs executing at once in this process.
	Concurrency int `env:"DISPATCHER_CONCURRENCY" envDefault:"8"`

	// ClaimTimeout is the blocking-pop timeout; the loop rechecks shutdown between pops.
	ClaimTimeout time.Duration `env:"DISPATCHER_CLAIM_TIMEOUT" envDefault:"5s"`

	// JobLease is how long a claim survives without a heartbeat before the reaper reclaims it.
	JobLease time.Duration `env:"DISPATCHER_JOB_LEASE" envDefault:"30s"`

	// JobTimeout bounds a single executor run. 0 disables the bound.
	JobTimeout time.Duration `env:"DISPATCHER_JOB_TIMEOUT" envDefault:"10m"`

	// MaxQueueDepth makes the producer reject new jobs once the queue holds this many
	// envelopes. 0 disables the check.
	MaxQueueDepth int64 `env:"DISPATCHER_MAX_QUEUE_DEPTH" envDefault:"10000"`

	// ErrorBackoff is the pause after a failed claim before trying again.
	ErrorBackoff time.Duration `env:"DISPATCHER_ERROR_BACKOFF" envDefault:"5s"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.ClaimTimeout < time.Second {
		d.ClaimTimeout = time.Second
	}
	if d.JobLease < 5*time.Second {
		d.JobLease = 5 * time.Second
	}
	if d.JobTimeout < 0 {
		d.JobTimeout = 0
	}
	if d.MaxQueueDepth < 0 {
		d.MaxQueueDepth = 0
	}
	if d.ErrorBackoff <= 0 {
		d.ErrorBackoff = 5 * time.Second
	}
}

// ValidationConfig contains batch validation pipeline configuration.
type ValidationConfig struct {
	// Concurrency bounds the number of batches processed at once.
	Concurrency int `env:"VALIDATION_CONCURRENCY" envDefault:"2"`

	// ItemConcurrency bounds sub-validations running at once within one batch.
	ItemConcurrency int `env:"VALIDATION_ITEM_CONCURRENCY" envDefault:"4"`

	// InputTTL is the lifetime of the input snapshot while a batch is in flight.
	InputTTL time.Duration `env:"VALIDATION_INPUT_TTL" envDefault:"5m"`

	// ResultTTL is the lifetime of the result mirror in the shared store.
	ResultTTL time.Duration `env:"VALIDATION_RESULT_TTL" envDefault:"1h"`

	// ClaimTimeout is the blocking-pop timeout for the validation queue.
	ClaimTimeout time.Duration `env:"VALIDATION_CLAIM_TIMEOUT" envDefault:"5s"`

	// RequestPrefix is prepended to sequence numbers to form request ids.
	RequestPrefix string `env:"VALIDATION_REQUEST_PREFIX" envDefault:"SO"`

	// CatalogCacheSize is the number of product entries kept in process.
	CatalogCacheSize int `env:"VALIDATION_CATALOG_CACHE_SIZE" envDefault:"1024"`

	// CatalogLocalTTL is how long a product entry lives in the in-process tier.
	CatalogLocalTTL time.Duration `env:"VALIDATION_CATALOG_LOCAL_TTL" envDefault:"5m"`

	// CatalogSharedTTL is how long a product entry lives in the shared store.
	CatalogSharedTTL time.Duration `env:"VALIDATION_CATALOG_SHARED_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to validation configuration values.
func (v *ValidationConfig) Sanitize() {
	if v.Concurrency < 1 {
		v.Concurrency = 1
	}
	if v.ItemConcurrency < 1 {
		v.ItemConcurrency = 1
	}
	if v.InputTTL < 30*time.Second {
		v.InputTTL = 30 * time.Second
	}
	if v.ResultTTL < time.Minute {
		v.ResultTTL = time.Minute
	}
	if v.ClaimTimeout < time.Second {
		v.ClaimTimeout = time.Second
	}
	if v.RequestPrefix == "" {
		v.RequestPrefix = "SO"
	}
	if v.CatalogCacheSize < 1 {
		v.CatalogCacheSize = 1024
	}
	if v.CatalogLocalTTL <= 0 {
		v.CatalogLocalTTL = 5 * time.Minute
	}
	if v.CatalogSharedTTL < v.CatalogLocalTTL {
		v.CatalogSharedTTL = v.CatalogLocalTTL
	}
}

// StreamConfig contains delivery (SSE/websocket) configuration.
type StreamConfig struct {
	// PollInterval is how often an observer checks for chunks past its cursor.
	PollInterval time.Duration `env:"STREAM_POLL_INTERVAL" envDefault:"250ms"`

	// WaitTimeout bounds one wait for new chunks before the job state is rechecked.
	WaitTimeout time.Duration `env:"STREAM_WAIT_TIMEOUT" envDefault:"1s"`

	// AttachGrace is how long a stream observer waits for a job that has no
	// state record yet, so observers may connect before the job is enqueued.
	// The result endpoint never waits.
	AttachGrace time.Duration `env:"STREAM_ATTACH_GRACE" envDefault:"10s"`

	// KeepAlive is the interval between comment pings on idle SSE connections.
	KeepAlive time.Duration `env:"STREAM_KEEPALIVE" envDefault:"15s"`

	// MaxStoreErrors is the number of consecutive failed polls before an observer
	// receives a terminal error event.
	MaxStoreErrors int `env:"STREAM_MAX_STORE_ERRORS" envDefault:"5"`

	// Notify wakes observers through Redis pub/sub on chunk appends. PollInterval
	// then only paces the fallback poll.
	Notify bool `env:"STREAM_NOTIFY" envDefault:"true"`

	// NotifyFallback is the poll interval used while Notify is enabled.
	NotifyFallback time.Duration `env:"STREAM_NOTIFY_FALLBACK" envDefault:"1s"`

	// NotifyLinger keeps a job's pub/sub subscription open after its last
	// observer wait ends, so consecutive waits share one subscription.
	NotifyLinger time.Duration `env:"STREAM_NOTIFY_LINGER" envDefault:"30s"`
}

// Sanitize applies guardrails to stream configuration values.
func (s *StreamConfig) Sanitize() {
	if s.PollInterval < 10*time.Millisecond {
		s.PollInterval = 10 * time.Millisecond
	}
	if s.WaitTimeout < s.PollInterval {
		s.WaitTimeout = s.PollInterval
	}
	if s.KeepAlive < time.Second {
		s.KeepAlive = time.Second
	}
	if s.MaxStoreErrors < 1 {
		s.MaxStoreErrors = 1
	}
	if s.AttachGrace < 0 {
		s.AttachGrace = 0
	}
	if s.NotifyLinger < s.WaitTimeout {
		s.NotifyLinger = s.WaitTimeout
	}
	if s.NotifyFallback < s.PollInterval {
		s.NotifyFallback = s.PollInterval
	}
}

// ReaperConfig contains lease reclaim configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"30s"`

	// BatchSize is the maximum number of expired claims handled per pass.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = time.Second
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
}
