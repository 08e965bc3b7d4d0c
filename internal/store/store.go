// Package store keeps the rule set and the controller overrides in memory and
// writes every mutation through to a persistent Backend before it becomes
// visible to readers.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/grow-controller/internal/schedule"
)

// Snapshot is a consistent copy of the rule set and overrides.
// Rules are in insertion order.
type Snapshot struct {
	Rules     []schedule.Rule
	Overrides schedule.Overrides
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Overrides: s.Overrides.Clone()}
	if s.Rules != nil {
		out.Rules = make([]schedule.Rule, len(s.Rules))
		for i, r := range s.Rules {
			out.Rules[i] = r.Clone()
		}
	}
	return out
}

// Backend loads and saves the full store state.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	Close() error
}

// Config holds optional store dependencies.
type Config struct {
	// Now is used to prune expired overrides on mutation. Defaults to time.Now.
	Now func() time.Time
	// NewID generates rule ids. Defaults to uuid.NewString.
	NewID func() string
}

// Store is the authoritative in-memory rule set.
type Store struct {
	backend Backend
	now     func() time.Time
	newID   func() string

	// writeMu serializes mutations end to end, including the backend save.
	writeMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot
}

// Open loads the backend state and returns a Store mirroring it.
func Open(ctx context.Context, backend Backend, cfg Config) (*Store, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Store{
		backend: backend,
		now:     cfg.Now,
		newID:   cfg.NewID,
		snap:    snap,
	}, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.backend.Close()
}

// Snapshot returns a copy of the current rules and overrides, read atomically.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// List returns all rules in insertion order.
func (s *Store) List() []schedule.Rule {
	return s.Snapshot().Rules
}

// Overrides returns the current overrides.
func (s *Store) Overrides() schedule.Overrides {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Overrides.Clone()
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (schedule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.snap.Rules, id); i >= 0 {
		return s.snap.Rules[i].Clone(), nil
	}
	return schedule.Rule{}, &NotFoundError{ID: id}
}

// Create assigns a fresh id to r and appends it to the rule set.
func (s *Store) Create(ctx context.Context, r schedule.Rule) (schedule.Rule, error) {
	var created schedule.Rule
	err := s.mutate(ctx, "create", func(next *Snapshot) error {
		created = r.Clone()
		created.ID = s.newID()
		next.Rules = append(next.Rules, created)
		return nil
	})
	if err != nil {
		return schedule.Rule{}, err
	}
	return created.Clone(), nil
}

// Update replaces the rule with the given id by fn(existing). The id and the
// position in the rule set are kept. An error from fn aborts the update.
func (s *Store) Update(ctx context.Context, id string, fn func(schedule.Rule) (schedule.Rule, error)) (schedule.Rule, error) {
	var updated schedule.Rule
	err := s.mutate(ctx, "update", func(next *Snapshot) error {
		i := indexOf(next.Rules, id)
		if i < 0 {
			return &NotFoundError{ID: id}
		}
		r, err := fn(next.Rules[i].Clone())
		if err != nil {
			return err
		}
		r.ID = id
		next.Rules[i] = r
		updated = r
		return nil
	})
	if err != nil {
		return schedule.Rule{}, err
	}
	return updated.Clone(), nil
}

// Delete removes the rule with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete", func(next *Snapshot) error {
		i := indexOf(next.Rules, id)
		if i < 0 {
			return &NotFoundError{ID: id}
		}
		next.Rules = append(next.Rules[:i], next.Rules[i+1:]...)
		return nil
	})
}

// SetOverrides replaces the overrides by fn(current) and returns the result.
func (s *Store) SetOverrides(ctx context.Context, fn func(schedule.Overrides) schedule.Overrides) (schedule.Overrides, error) {
	var out schedule.Overrides
	err := s.mutate(ctx, "set overrides", func(next *Snapshot) error {
		next.Overrides = fn(next.Overrides)
		out = next.Overrides.Clone()
		return nil
	})
	return out, err
}

// mutate applies fn to a copy of the current state, saves the copy and only
// then publishes it. Errors from fn are returned unwrapped.
func (s *Store) mutate(ctx context.Context, op string, fn func(next *Snapshot) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := s.snap.Clone()
	s.mu.RUnlock()

	next.Overrides = next.Overrides.Prune(s.now())
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.backend.Save(ctx, next); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	return nil
}

func indexOf(rules []schedule.Rule, id string) int {
	for i, r := range rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}
