// Package hostapi implements the host API surface exposed to plugins.
//
// The surface is the single gate between plugin code and host effects. Every
// invocation names a capability and carries the calling plugin's identity;
// the surface rejects capabilities the host does not provide (NotSupported)
// and capabilities the plugin did not declare (PermissionDenied) before any
// side effect runs.
//
// Locking: capabilities marked Exclusive in the registry (log, fs.*,
// keychain, env.get) each own a mutex, so at most one plugin at a time is
// inside a given exclusive capability. http.request and the json helpers do
// not share mutable host state and run concurrently.
package hostapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// Default limits applied when no option overrides them.
const (
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultMaxReadBytes = 1 << 20
)

// Caller identifies the plugin on whose behalf a capability is invoked.
type Caller struct {
	PluginID    string
	Permissions PermissionSet
}

// Args holds named capability arguments.
type Args map[string]any

type handler func(ctx context.Context, caller Caller, args Args) (any, error)

// Surface dispatches capability invocations to host backends.
type Surface struct {
	logger       *slog.Logger
	keychain     Keychain
	httpClient   *http.Client
	httpTimeout  time.Duration
	retry        ouerrors.RetryConfig
	maxReadBytes int64
	lookupEnv    func(string) (string, bool)
	homeDir      func() (string, error)
	events       *EventBus

	handlers map[Capability]handler
	locks    map[Capability]*sync.Mutex
}

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the logger used by the log capability and for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Surface) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKeychain replaces the system keychain backend.
func WithKeychain(k Keychain) Option {
	return func(s *Surface) {
		if k != nil {
			s.keychain = k
		}
	}
}

// WithHTTPClient replaces the HTTP client used by http.request.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Surface) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithHTTPTimeout sets the per-request timeout for http.request when the
// plugin does not pass timeoutMs. The HTTP client itself is left untouched.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *Surface) {
		if d > 0 {
			s.httpTimeout = d
		}
	}
}

// WithRetryConfig sets the retry policy for idempotent HTTP requests.
func WithRetryConfig(cfg ouerrors.RetryConfig) Option {
	return func(s *Surface) {
		s.retry = cfg
	}
}

// WithMaxReadBytes bounds fs.readText and HTTP response bodies.
func WithMaxReadBytes(n int64) Option {
	return func(s *Surface) {
		if n > 0 {
			s.maxReadBytes = n
		}
	}
}

// WithEnvLookup replaces os.LookupEnv for env.get.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(s *Surface) {
		if fn != nil {
			s.lookupEnv = fn
		}
	}
}

// WithHomeDir replaces os.UserHomeDir for ~ expansion.
func WithHomeDir(fn func() (string, error)) Option {
	return func(s *Surface) {
		if fn != nil {
			s.homeDir = fn
		}
	}
}

// WithEventBus shares an event bus between surfaces. By default each surface
// owns its own bus.
func WithEventBus(bus *EventBus) Option {
	return func(s *Surface) {
		if bus != nil {
			s.events = bus
		}
	}
}

// NewSurface creates a host API surface.
func NewSurface(opts ...Option) *Surface {
	s := &Surface{
		logger:       slog.Default(),
		keychain:     SystemKeychain{},
		httpClient:   &http.Client{},
		httpTimeout:  DefaultHTTPTimeout,
		retry:        ouerrors.DefaultRetryConfig(),
		maxReadBytes: DefaultMaxReadBytes,
		lookupEnv:    os.LookupEnv,
		homeDir:      os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = NewEventBus(s.logger)
	}

	s.handlers = map[Capability]handler{
		CapabilityLog:          s.handleLog,
		CapabilityFSExists:     s.handleFSExists,
		CapabilityFSReadText:   s.handleFSReadText,
		CapabilityKeychainRead: s.handleKeychainRead,
		CapabilityHTTPRequest:  s.handleHTTPRequest,
		CapabilityJSONQuery:    s.handleJSONQuery,
		CapabilityJSONSet:      s.handleJSONSet,
		CapabilityEnvGet:       s.handleEnvGet,
	}

	s.locks = make(map[Capability]*sync.Mutex)
	for _, info := range registry {
		if info.Exclusive {
			s.locks[info.Name] = &sync.Mutex{}
		}
	}

	return s
}

// Events returns the event bus plugins subscribe to.
func (s *Surface) Events() *EventBus {
	return s.events
}

// Invoke runs a capability on behalf of caller.
//
// Unknown capabilities yield a NotSupportedError and undeclared ones a
// PermissionDeniedError. Neither check has side effects.
func (s *Surface) Invoke(ctx context.Context, caller Caller, name string, args Args) (any, error) {
	info, ok := Lookup(name)
	if !ok {
		return nil, ouerrors.NewNotSupportedError(name)
	}
	if !caller.Permissions.Allows(info.Name) {
		s.logger.Debug("capability denied", "plugin", caller.PluginID, "capability", name)
		return nil, ouerrors.NewPermissionDeniedError(caller.PluginID, name)
	}
	if info.Kind != KindCall {
		return nil, ouerrors.NewHostCallError(name, "event capabilities are subscribed to, not invoked")
	}

	h, ok := s.handlers[info.Name]
	if !ok {
		return nil, ouerrors.NewNotSupportedError(name)
	}

	if err := ctx.Err(); err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(name, "invocation cancelled", err, false)
	}

	if mu, exclusive := s.locks[info.Name]; exclusive {
		mu.Lock()
		defer mu.Unlock()
	}

	if args == nil {
		args = Args{}
	}
	return h(ctx, caller, args)
}

// Subscribe registers handler for a host event on behalf of caller. The
// caller must hold the events capability.
func (s *Surface) Subscribe(caller Caller, event string, h EventHandler) error {
	if !caller.Permissions.Allows(CapabilityEvents) {
		return ouerrors.NewPermissionDeniedError(caller.PluginID, string(CapabilityEvents))
	}
	return s.events.Subscribe(caller.PluginID, event, h)
}
