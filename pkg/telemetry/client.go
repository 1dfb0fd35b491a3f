package telemetry

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/parley-im/parley-core/pkg/version"
)

const (
	// defaultBaseURL is the collection service the dispatcher posts to.
	defaultBaseURL = "https://api.parley.im"

	// collectPath is the fixed collection endpoint path under the base URL.
	collectPath = "/events/v1/record"

	// defaultCooldown is the minimum interval between two dispatch attempts
	// for the same event name.
	defaultCooldown = 3000 * time.Millisecond
)

// dispatchLogger wraps slog.Logger to automatically prepend "[Telemetry]" to all messages
type dispatchLogger struct {
	logger *slog.Logger
}

func newDispatchLogger(logger *slog.Logger) *dispatchLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatchLogger{logger: logger}
}

func (dl *dispatchLogger) Debug(msg string, args ...any) {
	dl.logger.Debug("[Telemetry] "+msg, args...)
}

func (dl *dispatchLogger) Warn(msg string, args ...any) {
	dl.logger.Warn("[Telemetry] "+msg, args...)
}

// Dispatcher performs anonymized, opt-out-respecting, best-effort delivery of
// named events. Construct one per process and hand it to callers explicitly
// or through the context helpers.
type Dispatcher struct {
	logger   *dispatchLogger
	identity IdentitySource
	privacy  PrivacySettings

	// enabled is the runtime configuration override for this telemetry
	// class. It defaults to Enabled and is consulted on every Record call.
	enabled func() bool

	app        AppOrigin
	inflight   sync.WaitGroup
	gate       *cooldownGate
	httpClient HTTPClient
	baseURL    string
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(client HTTPClient) Option {
	return func(d *Dispatcher) {
		d.httpClient = client
	}
}

// WithBaseURL overrides the collection service base URL.
func WithBaseURL(baseURL string) Option {
	return func(d *Dispatcher) {
		d.baseURL = baseURL
	}
}

// WithCooldown overrides the per-event-name cooldown window.
func WithCooldown(window time.Duration) Option {
	return func(d *Dispatcher) {
		d.gate = newCooldownGate(window)
	}
}

// WithEnabledCheck overrides the runtime configuration check.
func WithEnabledCheck(enabled func() bool) Option {
	return func(d *Dispatcher) {
		d.enabled = enabled
	}
}

// NewDispatcher builds a Dispatcher. The AppOrigin is computed here, exactly
// once: name and version come from the build metadata, platform from the host
// environment. identity and privacy are consulted on every Record call.
func NewDispatcher(logger *slog.Logger, identity IdentitySource, privacy PrivacySettings, platform string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   newDispatchLogger(logger),
		identity: identity,
		privacy:  privacy,
		enabled:  Enabled,
		app: AppOrigin{
			Name:     version.Name,
			Version:  version.Version,
			Platform: platform,
		},
		gate:       newCooldownGate(defaultCooldown),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Enabled reports whether this telemetry class is enabled for the current
// build and environment. It is the default runtime override check.
func Enabled() bool {
	// Disable telemetry when running in tests to prevent HTTP calls
	if flag.Lookup("test.v") != nil {
		return false
	}
	return enabledFromEnv()
}

// enabledFromEnv checks only the environment variable, without the test
// detection bypass. This allows testing the env var logic.
func enabledFromEnv() bool {
	if env := os.Getenv("PARLEY_TELEMETRY"); env != "" {
		// Only disable if explicitly set to "false"
		return env != "false"
	}
	// Default to true (telemetry enabled)
	return true
}
