// Package session keeps each browser session's filter selection apart from
// every other session's.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"abt-dashboard/internal/models"
)

type entry struct {
	selection models.Selection
	touched   time.Time
}

// Store holds selections in memory keyed by session id. Values are cloned on
// the way in and out so no two sessions share slices.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) NewID() string {
	return uuid.NewString()
}

// Valid reports whether id has the shape of an id produced by NewID.
func (s *Store) Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) Get(id string) (models.Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		return models.Selection{}, false
	}
	e.touched = s.now()
	return e.selection.Clone(), true
}

func (s *Store) Put(id string, sel models.Selection) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &entry{selection: sel.Clone(), touched: s.now()}
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug("expired sessions removed", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *Store) expired(e *entry) bool {
	return s.now().Sub(e.touched) > s.ttl
}
