// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// ErrInvalidOption is wrapped by Option functions that reject their
// argument, matching jsv2/jetstream's JetStreamOpt error convention.
var ErrInvalidOption = errors.New("mtproto: invalid option")

// Option configures a Client at construction time, grounded in the
// functional-options pattern used by jsv2/jetstream (JetStreamOpt) in the
// teacher pack.
type Option func(*clientOptions) error

type clientOptions struct {
	logger           *slog.Logger
	clock            clockwork.Clock
	metrics          *Metrics
	transportFactory TransportFactory
	backoffFactory   func() backoff.BackOff
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// WithLogger sets the structured logger used for session lifecycle,
// recovery, and ignored-message events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) error {
		if logger == nil {
			return fmt.Errorf("%w: logger must not be nil", ErrInvalidOption)
		}
		o.logger = logger
		return nil
	}
}

// WithClock injects a clockwork.Clock for every timer and deadline the core
// schedules (ping watchdog, ack batcher, write/response deadlines). Tests
// use clockwork.NewFakeClock() to advance virtual time deterministically;
// production defaults to clockwork.NewRealClock().
func WithClock(clock clockwork.Clock) Option {
	return func(o *clientOptions) error {
		if clock == nil {
			return fmt.Errorf("%w: clock must not be nil", ErrInvalidOption)
		}
		o.clock = clock
		return nil
	}
}

// WithMetrics attaches a Metrics handle (see NewMetrics) for Prometheus
// observability. A nil Metrics (the default) disables collection.
func WithMetrics(m *Metrics) Option {
	return func(o *clientOptions) error {
		o.metrics = m
		return nil
	}
}

// WithTransportFactory sets the factory used to dial the low-level
// Transport for this Client's Datacenter/AuthKey. Required: New returns an
// error if no factory is configured, since the core has no transport of
// its own to fall back to — obfuscated framing, key exchange, and
// encryption are handled entirely below this package.
func WithTransportFactory(f TransportFactory) Option {
	return func(o *clientOptions) error {
		if f == nil {
			return fmt.Errorf("%w: transport factory must not be nil", ErrInvalidOption)
		}
		o.transportFactory = f
		return nil
	}
}

// WithReconnectBackOff overrides the backoff.BackOff construction used to
// space out transport dial retries after a failed connection attempt,
// grounded in gnmitunnel.Client.Run's backoff.NewExponentialBackOff()
// reconnect loop. Defaults to an unbounded exponential backoff.
func WithReconnectBackOff(factory func() backoff.BackOff) Option {
	return func(o *clientOptions) error {
		if factory == nil {
			return fmt.Errorf("%w: backoff factory must not be nil", ErrInvalidOption)
		}
		o.backoffFactory = factory
		return nil
	}
}
