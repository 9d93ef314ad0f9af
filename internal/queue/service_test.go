package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crowdqueue/internal/spotify"
	"github.com/crowdqueue/pkg/events"
	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

type stubCatalog struct {
	tracks []spotify.Track
	err    error
	query  string
}

func (c *stubCatalog) SearchTracks(_ context.Context, query string, _ int) ([]spotify.Track, error) {
	c.query = query
	return c.tracks, c.err
}

func newTestService(t *testing.T, catalog CatalogSearcher, cooldown time.Duration) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewService(st, catalog, events.NopPublisher{}, nil, cooldown, zap.NewNop())
	return svc, st
}

func TestListOrdering(t *testing.T) {
	svc, st := newTestService(t, nil, 0)
	ctx := context.Background()

	seed := []models.QueueItem{
		{ID: "a", Title: "A", Hype: 2, AddedAt: 200},
		{ID: "b", Title: "B", Hype: 2, AddedAt: 100},
		{ID: "c", Title: "C", Hype: 5, AddedAt: 300},
		{ID: "d", Title: "D", Hype: 0, AddedAt: 50},
	}
	for _, item := range seed {
		if err := st.Set(ctx, store.QueueKey("venue-1", item.ID), item, 0); err != nil {
			t.Fatal(err)
		}
	}

	items, err := svc.List(ctx, "venue-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"c", "b", "a", "d"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, items[i].ID, id)
		}
	}
}

func TestSelectNext(t *testing.T) {
	svc, st := newTestService(t, nil, 0)
	ctx := context.Background()

	if _, err := svc.SelectNext(ctx, "venue-1"); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("empty queue: got %v, want ErrEmptyQueue", err)
	}

	item := models.QueueItem{ID: "a", Title: "A", Hype: 1, AddedAt: 100}
	if err := st.Set(ctx, store.QueueKey("venue-1", "a"), item, 0); err != nil {
		t.Fatal(err)
	}

	next, err := svc.SelectNext(ctx, "venue-1")
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}
	if next.ID != "a" {
		t.Errorf("got %s, want a", next.ID)
	}
}

func TestVote(t *testing.T) {
	svc, st := newTestService(t, nil, 0)
	ctx := context.Background()

	item := models.QueueItem{ID: "song-1", Title: "A", Hype: 0, AddedAt: 100}
	if err := st.Set(ctx, store.QueueKey("venue-1", "song-1"), item, 0); err != nil {
		t.Fatal(err)
	}

	t.Run("first vote counts", func(t *testing.T) {
		hype, err := svc.Vote(ctx, "venue-1", "song-1", "sess-1")
		if err != nil {
			t.Fatalf("Vote: %v", err)
		}
		if hype != 1 {
			t.Errorf("hype = %d, want 1", hype)
		}
	})

	t.Run("second vote from same session rejected", func(t *testing.T) {
		if _, err := svc.Vote(ctx, "venue-1", "song-1", "sess-1"); !errors.Is(err, ErrAlreadyVoted) {
			t.Fatalf("got %v, want ErrAlreadyVoted", err)
		}

		var got models.QueueItem
		if _, err := st.Get(ctx, store.QueueKey("venue-1", "song-1"), &got); err != nil {
			t.Fatal(err)
		}
		if got.Hype != 1 {
			t.Errorf("hype after duplicate vote = %d, want 1", got.Hype)
		}
	})

	t.Run("different session counts", func(t *testing.T) {
		hype, err := svc.Vote(ctx, "venue-1", "song-1", "sess-2")
		if err != nil {
			t.Fatalf("Vote: %v", err)
		}
		if hype != 2 {
			t.Errorf("hype = %d, want 2", hype)
		}
	})

	t.Run("missing song", func(t *testing.T) {
		if _, err := svc.Vote(ctx, "venue-1", "gone", "sess-3"); !errors.Is(err, ErrSongNotFound) {
			t.Fatalf("got %v, want ErrSongNotFound", err)
		}
	})
}

func TestCheckCooldown(t *testing.T) {
	base := time.UnixMilli(1_000_000_000)

	setup := func(t *testing.T) (*Service, *store.MemoryStore) {
		svc, st := newTestService(t, nil, 5*time.Minute)
		svc.SetClock(func() time.Time { return base })
		return svc, st
	}

	t.Run("no prior submission", func(t *testing.T) {
		svc, _ := setup(t)
		if err := svc.CheckCooldown(context.Background(), "venue-1", "sess-1"); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
	})

	t.Run("active song inside window", func(t *testing.T) {
		svc, st := setup(t)
		ctx := context.Background()

		if err := svc.RecordSubmission(ctx, "venue-1", "sess-1", "song-1"); err != nil {
			t.Fatal(err)
		}
		item := models.QueueItem{ID: "song-1"}
		if err := st.Set(ctx, store.QueueKey("venue-1", "song-1"), item, 0); err != nil {
			t.Fatal(err)
		}

		// 2 minutes in, 3 whole minutes left (rounded up).
		svc.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
		err := svc.CheckCooldown(ctx, "venue-1", "sess-1")
		var cooldown *CooldownError
		if !errors.As(err, &cooldown) {
			t.Fatalf("got %v, want CooldownError", err)
		}
		if cooldown.RemainingMinutes != 3 {
			t.Errorf("remaining = %d, want 3", cooldown.RemainingMinutes)
		}
	})

	t.Run("window elapsed", func(t *testing.T) {
		svc, st := setup(t)
		ctx := context.Background()

		if err := svc.RecordSubmission(ctx, "venue-1", "sess-1", "song-1"); err != nil {
			t.Fatal(err)
		}
		if err := st.Set(ctx, store.QueueKey("venue-1", "song-1"), models.QueueItem{ID: "song-1"}, 0); err != nil {
			t.Fatal(err)
		}

		svc.SetClock(func() time.Time { return base.Add(5 * time.Minute) })
		if err := svc.CheckCooldown(ctx, "venue-1", "sess-1"); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
	})

	t.Run("song no longer active", func(t *testing.T) {
		svc, _ := setup(t)
		ctx := context.Background()

		if err := svc.RecordSubmission(ctx, "venue-1", "sess-1", "song-1"); err != nil {
			t.Fatal(err)
		}

		// Queued song was played and dequeued; cooldown no longer applies.
		svc.SetClock(func() time.Time { return base.Add(time.Minute) })
		if err := svc.CheckCooldown(ctx, "venue-1", "sess-1"); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
	})

	t.Run("song still now playing", func(t *testing.T) {
		svc, st := setup(t)
		ctx := context.Background()

		if err := svc.RecordSubmission(ctx, "venue-1", "sess-1", "song-1"); err != nil {
			t.Fatal(err)
		}
		now := models.NowPlaying{ID: "song-1"}
		if err := st.Set(ctx, store.NowPlayingKey("venue-1"), now, 0); err != nil {
			t.Fatal(err)
		}

		svc.SetClock(func() time.Time { return base.Add(time.Minute) })
		err := svc.CheckCooldown(ctx, "venue-1", "sess-1")
		var cooldown *CooldownError
		if !errors.As(err, &cooldown) {
			t.Fatalf("got %v, want CooldownError", err)
		}
	})
}

func TestAdd(t *testing.T) {
	t.Run("enqueue with explicit uri", func(t *testing.T) {
		svc, _ := newTestService(t, nil, time.Minute)
		ctx := context.Background()

		song, err := svc.Add(ctx, "venue-1", "sess-1", SongInput{
			Title: "A", Artist: "B", URI: "spotify:track:abc", SpotifyID: "abc",
		})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if song.ID == "" {
			t.Error("song got no id")
		}
		if song.URI != "spotify:track:abc" {
			t.Errorf("uri = %s", song.URI)
		}
		if song.Hype != 0 {
			t.Errorf("new song hype = %d, want 0", song.Hype)
		}
	})

	t.Run("second add within window rejected", func(t *testing.T) {
		svc, _ := newTestService(t, nil, time.Minute)
		ctx := context.Background()

		if _, err := svc.Add(ctx, "venue-1", "sess-1", SongInput{Title: "A", Artist: "B", SpotifyID: "abc"}); err != nil {
			t.Fatal(err)
		}
		_, err := svc.Add(ctx, "venue-1", "sess-1", SongInput{Title: "C", Artist: "D", SpotifyID: "def"})
		var cooldown *CooldownError
		if !errors.As(err, &cooldown) {
			t.Fatalf("got %v, want CooldownError", err)
		}
	})

	t.Run("track id alone synthesizes uri", func(t *testing.T) {
		svc, _ := newTestService(t, nil, 0)
		song, err := svc.Add(context.Background(), "venue-1", "sess-1", SongInput{
			Title: "A", Artist: "B", SpotifyID: "xyz",
		})
		if err != nil {
			t.Fatal(err)
		}
		if song.URI != "spotify:track:xyz" {
			t.Errorf("uri = %s, want spotify:track:xyz", song.URI)
		}
	})

	t.Run("catalog fallback resolves missing uri", func(t *testing.T) {
		catalog := &stubCatalog{tracks: []spotify.Track{{
			ID:  "found-id",
			URI: "spotify:track:found-id",
		}}}
		svc, _ := newTestService(t, catalog, 0)

		song, err := svc.Add(context.Background(), "venue-1", "sess-1", SongInput{Title: "Heat Waves", Artist: "Glass Animals"})
		if err != nil {
			t.Fatal(err)
		}
		if catalog.query != "Heat Waves Glass Animals" {
			t.Errorf("catalog query = %q", catalog.query)
		}
		if song.SpotifyID != "found-id" || song.URI != "spotify:track:found-id" {
			t.Errorf("song not resolved: %+v", song)
		}
	})

	t.Run("catalog miss still enqueues", func(t *testing.T) {
		catalog := &stubCatalog{err: errors.New("upstream down")}
		svc, _ := newTestService(t, catalog, 0)

		song, err := svc.Add(context.Background(), "venue-1", "sess-1", SongInput{Title: "A", Artist: "B"})
		if err != nil {
			t.Fatal(err)
		}
		if song.URI != "" {
			t.Errorf("uri = %s, want empty", song.URI)
		}
	})

	t.Run("admin add skips cooldown", func(t *testing.T) {
		svc, _ := newTestService(t, nil, time.Minute)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if _, err := svc.AdminAdd(ctx, "venue-1", SongInput{Title: "A", Artist: "B", SpotifyID: "abc"}); err != nil {
				t.Fatalf("AdminAdd %d: %v", i, err)
			}
		}
		items, err := svc.List(ctx, "venue-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 3 {
			t.Errorf("queue length = %d, want 3", len(items))
		}
	})
}

func TestInitDemo(t *testing.T) {
	svc, st := newTestService(t, nil, 0)
	ctx := context.Background()

	seeded, err := svc.InitDemo(ctx, "venue-1")
	if err != nil {
		t.Fatalf("InitDemo: %v", err)
	}
	if !seeded {
		t.Fatal("expected first call to seed")
	}

	items, err := svc.List(ctx, "venue-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Errorf("queue length = %d, want 4", len(items))
	}
	if items[0].Title != "adore u" {
		t.Errorf("top song = %s, want adore u", items[0].Title)
	}

	var now models.NowPlaying
	found, err := st.Get(ctx, store.NowPlayingKey("venue-1"), &now)
	if err != nil || !found {
		t.Fatalf("now playing not seeded: found=%v err=%v", found, err)
	}
	if now.Title != "Starboy" {
		t.Errorf("now playing = %s, want Starboy", now.Title)
	}

	seeded, err = svc.InitDemo(ctx, "venue-1")
	if err != nil {
		t.Fatal(err)
	}
	if seeded {
		t.Error("second call must be a no-op")
	}
}
