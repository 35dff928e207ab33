package chat

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
)

const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultPublishTimeout    = 5 * time.Second
	DefaultHistoryTimeout    = 10 * time.Second
	DefaultReconnectAttempts = 5
	DefaultReconnectInitial  = 250 * time.Millisecond
	DefaultReconnectMax      = 5 * time.Second
	DefaultFlushTimeout      = time.Second
	releaseTimeout           = 2 * time.Second
)

type options struct {
	endpoint          string
	connectTimeout    time.Duration
	publishTimeout    time.Duration
	historyTimeout    time.Duration
	reconnectAttempts uint
	reconnectInitial  time.Duration
	reconnectMax      time.Duration
	flushTimeout      time.Duration
	logger            *zerolog.Logger
	metrics           *metrics.Session
	now               func() time.Time
}

func defaultOptions() options {
	nop := zerolog.Nop()
	return options{
		connectTimeout:    DefaultConnectTimeout,
		publishTimeout:    DefaultPublishTimeout,
		historyTimeout:    DefaultHistoryTimeout,
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectInitial:  DefaultReconnectInitial,
		reconnectMax:      DefaultReconnectMax,
		flushTimeout:      DefaultFlushTimeout,
		logger:            &nop,
		now:               time.Now,
	}
}

// Option customizes a Session.
type Option func(*options)

// WithEndpoint sets the address passed to Transport.Connect.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithConnectTimeout bounds each connect and subscribe attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

func WithHistoryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.historyTimeout = d
		}
	}
}

// WithReconnect configures the backoff used after an unexpected disconnect.
// attempts of zero disables reconnecting: a lost connection fails the session.
func WithReconnect(attempts uint, initial, maxInterval time.Duration) Option {
	return func(o *options) {
		o.reconnectAttempts = attempts
		if initial > 0 {
			o.reconnectInitial = initial
		}
		if maxInterval > 0 {
			o.reconnectMax = maxInterval
		}
	}
}

// WithEventFlushTimeout bounds how long queued events are offered after Close.
func WithEventFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Session) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the time source used for receipt and submit times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
