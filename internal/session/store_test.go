package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"abt-dashboard/internal/models"
)

func TestStore_PutGet(t *testing.T) {
	s := NewStore(time.Minute)
	id := s.NewID()

	if !s.Valid(id) {
		t.Fatalf("Valid(%q) = false", id)
	}
	if _, ok := s.Get(id); ok {
		t.Fatal("Get() on unknown session should miss")
	}

	sel := models.Selection{Countries: []string{"France"}, Months: []string{"2011-01"}}
	s.Put(id, sel)

	got, ok := s.Get(id)
	if !ok {
		t.Fatal("Get() should hit after Put()")
	}
	if got.Countries[0] != "France" || got.Months[0] != "2011-01" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestStore_Isolation(t *testing.T) {
	s := NewStore(time.Minute)
	a, b := s.NewID(), s.NewID()

	sel := models.Selection{Countries: []string{"France"}, Months: []string{"2011-01"}}
	s.Put(a, sel)
	s.Put(b, sel)

	sel.Countries[0] = "Spain"
	got, _ := s.Get(a)
	if got.Countries[0] != "France" {
		t.Errorf("stored selection changed through caller slice: %q", got.Countries[0])
	}

	got.Countries[0] = "Germany"
	other, _ := s.Get(b)
	if other.Countries[0] != "France" {
		t.Errorf("session b sees session a's mutation: %q", other.Countries[0])
	}
}

func TestStore_Expiry(t *testing.T) {
	s := NewStore(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Put("old", models.Selection{Countries: []string{"X"}})
	now = now.Add(2 * time.Minute)
	s.Put("new", models.Selection{Countries: []string{"Y"}})

	if _, ok := s.Get("old"); ok {
		t.Error("expired session should miss")
	}
	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_Run_StopsOnCancel(t *testing.T) {
	s := NewStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Millisecond, slog.Default()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.NewID()
			s.Put(id, models.Selection{Countries: []string{id}})
			if got, ok := s.Get(id); !ok || got.Countries[0] != id {
				t.Errorf("Get(%s) = %+v, %v", id, got, ok)
			}
		}()
	}
	wg.Wait()
}
