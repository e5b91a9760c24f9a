package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xingxinonline/landoubao-mem0/pkg/semantic"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
)

// Option customizes engine construction.
type Option func(*Engine)

// WithStore injects a pre-built store, overriding the configured provider.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.store = st }
}

// WithProvider injects a pre-built semantic provider, overriding the
// configured one.
func WithProvider(p semantic.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithLogger sets the logger used across all components.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
