package queue

import (
	"context"
	"fmt"

	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

// InitDemo seeds a venue with sample queue entries so a fresh install has
// something on screen. Returns false without writing when the venue
// already has a queue.
func (s *Service) InitDemo(ctx context.Context, venueID string) (bool, error) {
	existing, err := s.store.GetByPrefix(ctx, store.QueuePrefix(venueID))
	if err != nil {
		return false, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	now := s.nowFn().UnixMilli()
	demoSongs := []models.QueueItem{
		{
			ID:       "demo-1",
			Title:    "adore u",
			Artist:   "Fred again..",
			AlbumArt: "https://images.unsplash.com/photo-1571766752116-63b1e6514b53?w=300&h=300&fit=crop",
			Hype:     127,
			AddedAt:  now - 1_000_000,
		},
		{
			ID:       "demo-2",
			Title:    "Heat Waves",
			Artist:   "Glass Animals",
			AlbumArt: "https://images.unsplash.com/photo-1622224408917-9dfb43de2cd4?w=300&h=300&fit=crop",
			Hype:     89,
			AddedAt:  now - 800_000,
		},
		{
			ID:       "demo-3",
			Title:    "Parem veelgi",
			Artist:   "Tanel Padar",
			AlbumArt: "https://images.unsplash.com/photo-1629426958038-a4cb6e3830a0?w=300&h=300&fit=crop",
			Hype:     56,
			AddedAt:  now - 600_000,
		},
		{
			ID:       "demo-4",
			Title:    "Blinding Lights",
			Artist:   "The Weeknd",
			AlbumArt: "https://images.unsplash.com/photo-1606224534096-fcd6bb9a2018?w=300&h=300&fit=crop",
			Hype:     43,
			AddedAt:  now - 400_000,
		},
	}

	for _, song := range demoSongs {
		if err := s.store.Set(ctx, store.QueueKey(venueID, song.ID), song, 0); err != nil {
			return false, fmt.Errorf("failed to seed demo song: %w", err)
		}
	}

	demoNow := models.NowPlaying{
		ID:       "demo-now-1",
		Title:    "Starboy",
		Artist:   "The Weeknd ft. Daft Punk",
		AlbumArt: "https://images.unsplash.com/photo-1571766752116-63b1e6514b53?w=300&h=300&fit=crop",
	}
	if err := s.store.Set(ctx, store.NowPlayingKey(venueID), demoNow, 0); err != nil {
		return false, fmt.Errorf("failed to seed demo now playing: %w", err)
	}
	return true, nil
}
