package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crowdqueue/pkg/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, 12*time.Hour), st
}

func TestSetPin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.SetPin(ctx, "venue-1", "1234"); err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	if err := svc.SetPin(ctx, "venue-1", "5678"); !errors.Is(err, ErrPinAlreadySet) {
		t.Fatalf("second SetPin: got %v, want ErrPinAlreadySet", err)
	}

	// The first PIN still wins.
	if _, err := svc.Login(ctx, "venue-1", "1234"); err != nil {
		t.Errorf("login with original pin: %v", err)
	}
	if _, err := svc.Login(ctx, "venue-1", "5678"); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("login with rejected pin: got %v, want ErrInvalidPin", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("no pin set", func(t *testing.T) {
		if _, err := svc.Login(ctx, "venue-1", "1234"); !errors.Is(err, ErrNoPinSet) {
			t.Fatalf("got %v, want ErrNoPinSet", err)
		}
	})

	if err := svc.SetPin(ctx, "venue-1", "1234"); err != nil {
		t.Fatal(err)
	}

	t.Run("wrong pin", func(t *testing.T) {
		if _, err := svc.Login(ctx, "venue-1", "0000"); !errors.Is(err, ErrInvalidPin) {
			t.Fatalf("got %v, want ErrInvalidPin", err)
		}
	})

	t.Run("correct pin issues venue-bound token", func(t *testing.T) {
		token, err := svc.Login(ctx, "venue-1", "1234")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if token == "" {
			t.Fatal("empty token")
		}
		venue, err := svc.VenueForToken(token)
		if err != nil {
			t.Fatalf("VenueForToken: %v", err)
		}
		if venue != "venue-1" {
			t.Errorf("venue = %s, want venue-1", venue)
		}
		if err := svc.RequireAdmin(ctx, "venue-1", token); err != nil {
			t.Errorf("RequireAdmin: %v", err)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	if err := svc.SetPin(ctx, "venue-1", "1234"); err != nil {
		t.Fatal(err)
	}
	token, err := svc.Login(ctx, "venue-1", "1234")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("empty token", func(t *testing.T) {
		if err := svc.RequireAdmin(ctx, "venue-1", ""); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if err := svc.RequireAdmin(ctx, "venue-1", "not-a-token"); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("got %v, want ErrSessionExpired", err)
		}
	})

	t.Run("wrong venue", func(t *testing.T) {
		if err := svc.RequireAdmin(ctx, "venue-2", token); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("got %v, want ErrSessionExpired", err)
		}
	})

	t.Run("expired session", func(t *testing.T) {
		svc.SetClock(func() time.Time { return time.Now().Add(13 * time.Hour) })
		defer svc.SetClock(time.Now)

		if err := svc.RequireAdmin(ctx, "venue-1", token); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("got %v, want ErrSessionExpired", err)
		}
	})

	t.Run("revoked session", func(t *testing.T) {
		if err := svc.Logout(ctx, "venue-1", token); err != nil {
			t.Fatal(err)
		}
		if err := svc.RequireAdmin(ctx, "venue-1", token); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("got %v, want ErrSessionExpired", err)
		}
		// Record really gone from the store.
		found, err := st.Get(ctx, store.AdminSessionKey("venue-1", token), new(map[string]any))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Error("session record survived logout")
		}
	})
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Logout(ctx, "venue-1", "never-issued"); err != nil {
		t.Fatalf("Logout on missing session: %v", err)
	}
}
