// Package toggle holds runtime feature toggles controlling which backend
// is authoritative for a domain. Toggles are read on every request and
// flipped by operators through the admin surface, without redeploying.
package toggle

import (
	"sync"

	"go.uber.org/zap"
)

// Store is a versioned store of named boolean toggles. All reads and
// writes go through one lock, so a reader sees either the old or the
// new value of a flip, never a torn one. The version increases on every
// write.
type Store struct {
	mu      sync.RWMutex
	values  map[string]bool
	pinned  map[string]bool
	version uint64

	logger   *zap.Logger
	onChange func(name string, value bool)
}

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithOnChange sets a callback invoked after every applied write.
func WithOnChange(fn func(name string, value bool)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// NewStore creates a store seeded with the given defaults.
func NewStore(defaults map[string]bool, opts ...Option) *Store {
	s := &Store{
		values: make(map[string]bool, len(defaults)),
		pinned: make(map[string]bool),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	for name, value := range defaults {
		s.values[name] = value
	}

	return s
}

// Get returns the toggle value and whether the toggle is known.
func (s *Store) Get(name string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[name]
	return value, ok
}

// IsEnabled returns the toggle value, treating unknown toggles as off.
func (s *Store) IsEnabled(name string) bool {
	value, _ := s.Get(name)
	return value
}

// Set applies an administrative write. The new value is visible to the
// next read with no grace period, and the toggle is pinned: later
// configuration reloads will not override it.
func (s *Store) Set(name string, value bool) {
	s.mu.Lock()
	s.values[name] = value
	s.pinned[name] = true
	s.version++
	s.mu.Unlock()

	s.logger.Info("toggle set",
		zap.String("toggle", name),
		zap.Bool("value", value),
	)

	if s.onChange != nil {
		s.onChange(name, value)
	}
}

// Seed applies a configuration default. Toggles pinned by an
// administrative Set keep their value; everything else takes the seeded
// one. Returns whether the value was applied.
func (s *Store) Seed(name string, value bool) bool {
	s.mu.Lock()
	if s.pinned[name] {
		s.mu.Unlock()
		return false
	}
	changed := s.values[name] != value
	s.values[name] = value
	if changed {
		s.version++
	}
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(name, value)
	}
	return true
}

// Snapshot returns a copy of all toggle values.
func (s *Store) Snapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]bool, len(s.values))
	for name, value := range s.values {
		snapshot[name] = value
	}
	return snapshot
}

// Version returns the current store version. It increases monotonically
// with every applied write.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
