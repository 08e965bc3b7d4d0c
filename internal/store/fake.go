package store

import (
	"context"
	"sync"
)

// FakeBackend is an in-memory Backend for testing.
type FakeBackend struct {
	mu      sync.Mutex
	saved   Snapshot
	saves   int
	SaveErr error
	LoadErr error
}

// NewFakeBackend returns a backend that loads initial.
func NewFakeBackend(initial Snapshot) *FakeBackend {
	return &FakeBackend{saved: initial.Clone()}
}

// Load returns the last saved snapshot.
func (f *FakeBackend) Load(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return Snapshot{}, f.LoadErr
	}
	return f.saved.Clone(), nil
}

// Save records s unless SaveErr is set.
func (f *FakeBackend) Save(ctx context.Context, s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.saved = s.Clone()
	f.saves++
	return nil
}

// SetSaveErr makes subsequent saves fail with err (nil to clear).
func (f *FakeBackend) SetSaveErr(err error) {
	f.mu.Lock()
	f.SaveErr = err
	f.mu.Unlock()
}

// Saved returns the last saved snapshot.
func (f *FakeBackend) Saved() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved.Clone()
}

// Saves returns the number of successful saves.
func (f *FakeBackend) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// Close is a no-op.
func (f *FakeBackend) Close() error {
	return nil
}
