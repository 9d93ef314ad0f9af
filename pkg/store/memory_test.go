package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Get Missing Key", func(t *testing.T) {
		s := NewMemoryStore()
		var out string
		found, err := s.Get(ctx, "nope", &out)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if found {
			t.Error("expected found=false for missing key")
		}
	})

	t.Run("Set And Get Roundtrip", func(t *testing.T) {
		s := NewMemoryStore()
		type rec struct {
			Name string `json:"name"`
			N    int    `json:"n"`
		}
		if err := s.Set(ctx, "k", rec{Name: "a", N: 3}, 0); err != nil {
			t.Fatal(err)
		}
		var out rec
		found, err := s.Get(ctx, "k", &out)
		if err != nil || !found {
			t.Fatalf("expected found record, got found=%v err=%v", found, err)
		}
		if out.Name != "a" || out.N != 3 {
			t.Errorf("unexpected value %+v", out)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Now()
		s.SetClock(func() time.Time { return now })

		if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
			t.Fatal(err)
		}
		var out string
		if found, _ := s.Get(ctx, "k", &out); !found {
			t.Fatal("expected key before expiry")
		}

		now = now.Add(2 * time.Minute)
		if found, _ := s.Get(ctx, "k", &out); found {
			t.Error("expected key to expire")
		}
	})

	t.Run("SetNX Only First Write Wins", func(t *testing.T) {
		s := NewMemoryStore()
		ok, err := s.SetNX(ctx, "k", "first", 0)
		if err != nil || !ok {
			t.Fatalf("expected first SetNX to win, got ok=%v err=%v", ok, err)
		}
		ok, err = s.SetNX(ctx, "k", "second", 0)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("expected second SetNX to lose")
		}
		var out string
		s.Get(ctx, "k", &out)
		if out != "first" {
			t.Errorf("expected value from first write, got %q", out)
		}
	})

	t.Run("GetByPrefix", func(t *testing.T) {
		s := NewMemoryStore()
		s.Set(ctx, "queue:v1:a", "a", 0)
		s.Set(ctx, "queue:v1:b", "b", 0)
		s.Set(ctx, "queue:v2:c", "c", 0)

		vals, err := s.GetByPrefix(ctx, "queue:v1:")
		if err != nil {
			t.Fatal(err)
		}
		if len(vals) != 2 {
			t.Errorf("expected 2 values, got %d", len(vals))
		}
	})

	t.Run("IncrBy Creates And Increments", func(t *testing.T) {
		s := NewMemoryStore()
		n, err := s.IncrBy(ctx, "counter", 1, 0)
		if err != nil || n != 1 {
			t.Fatalf("expected 1, got %d err=%v", n, err)
		}
		n, err = s.IncrBy(ctx, "counter", 2, 0)
		if err != nil || n != 3 {
			t.Fatalf("expected 3, got %d err=%v", n, err)
		}
	})

	t.Run("IncrBy TTL Applies Only On Create", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Now()
		s.SetClock(func() time.Time { return now })

		s.IncrBy(ctx, "counter", 1, time.Minute)
		now = now.Add(30 * time.Second)
		s.IncrBy(ctx, "counter", 1, time.Minute)

		// Window expires a minute after the first write, not the second.
		now = now.Add(31 * time.Second)
		n, _ := s.IncrBy(ctx, "counter", 1, time.Minute)
		if n != 1 {
			t.Errorf("expected a fresh window, got %d", n)
		}
	})

	t.Run("Update Transforms Existing Value", func(t *testing.T) {
		s := NewMemoryStore()
		s.Set(ctx, "k", map[string]int{"hype": 1}, 0)

		err := s.Update(ctx, "k", func(cur []byte, found bool) ([]byte, error) {
			if !found {
				t.Fatal("expected existing value")
			}
			var m map[string]int
			if err := json.Unmarshal(cur, &m); err != nil {
				return nil, err
			}
			m["hype"]++
			return json.Marshal(m)
		})
		if err != nil {
			t.Fatal(err)
		}

		var m map[string]int
		s.Get(ctx, "k", &m)
		if m["hype"] != 2 {
			t.Errorf("expected hype=2, got %d", m["hype"])
		}
	})

	t.Run("Update Error Aborts", func(t *testing.T) {
		s := NewMemoryStore()
		s.Set(ctx, "k", "before", 0)
		sentinel := errors.New("nope")

		err := s.Update(ctx, "k", func([]byte, bool) ([]byte, error) {
			return nil, sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}

		var out string
		s.Get(ctx, "k", &out)
		if out != "before" {
			t.Errorf("expected value unchanged, got %q", out)
		}
	})
}
