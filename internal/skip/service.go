package skip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crowdqueue/internal/spotify"
	"github.com/crowdqueue/pkg/events"
	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

var (
	ErrNoTrackPlaying = errors.New("skip: no track playing")
	ErrAlreadyVoted   = errors.New("skip: already voted for this track")
)

// PlayerController is the slice of the provider client skip voting needs.
type PlayerController interface {
	PlayerState(ctx context.Context, venueID string) (*spotify.PlayerState, error)
	SkipToNext(ctx context.Context, venueID, deviceID string) error
}

// Status is the skip tally for a venue's current track.
type Status struct {
	TrackID   string `json:"trackId"`
	Votes     int64  `json:"votes"`
	Threshold int    `json:"threshold"`
}

// Service tallies audience skip votes against a per-venue threshold and
// fires a provider-level skip when it is reached.
type Service struct {
	store            store.Store
	player           PlayerController
	events           events.Publisher
	defaultThreshold int
	logger           *zap.Logger
	nowFn            func() time.Time
}

func NewService(st store.Store, player PlayerController, pub events.Publisher, defaultThreshold int, logger *zap.Logger) *Service {
	return &Service{
		store:            st,
		player:           player,
		events:           pub,
		defaultThreshold: defaultThreshold,
		logger:           logger,
		nowFn:            time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(nowFn func() time.Time) { s.nowFn = nowFn }

// currentTrack returns the venue's current track, falling back to the live
// provider state when no snapshot is cached, and caching what it finds.
func (s *Service) currentTrack(ctx context.Context, venueID string) (*models.NowPlaying, error) {
	var now models.NowPlaying
	found, err := s.store.Get(ctx, store.NowPlayingKey(venueID), &now)
	if err != nil {
		return nil, fmt.Errorf("failed to read now playing: %w", err)
	}
	if found && now.ID != "" {
		return &now, nil
	}

	state, err := s.player.PlayerState(ctx, venueID)
	if err != nil || state == nil || state.Item == nil || state.Item.ID == "" {
		return nil, nil
	}

	mirrored := models.NowPlaying{
		ID:         state.Item.ID,
		Title:      state.Item.Name,
		Artist:     state.Item.ArtistNames(),
		AlbumArt:   state.Item.AlbumArt(),
		URI:        state.Item.URI,
		SpotifyID:  state.Item.ID,
		DurationMS: state.Item.Duration,
	}
	if state.IsPlaying {
		mirrored.StartedAt = s.nowFn().UnixMilli() - state.ProgressMS
	}
	if err := s.store.Set(ctx, store.NowPlayingKey(venueID), mirrored, 0); err != nil {
		s.logger.Warn("failed to cache mirrored now playing", zap.String("venue_id", venueID), zap.Error(err))
	}
	return &mirrored, nil
}

func (s *Service) threshold(ctx context.Context, venueID string) int {
	var t int
	found, err := s.store.Get(ctx, store.SkipThresholdKey(venueID), &t)
	if err == nil && found && t > 0 {
		return t
	}
	return s.defaultThreshold
}

// SetThreshold overrides the venue's skip threshold.
func (s *Service) SetThreshold(ctx context.Context, venueID string, threshold int) error {
	if threshold < 1 {
		return fmt.Errorf("skip: threshold must be positive")
	}
	return s.store.Set(ctx, store.SkipThresholdKey(venueID), threshold, 0)
}

// GetStatus reports the current track and its tally. A venue with nothing
// playing gets an empty track id and zero votes.
func (s *Service) GetStatus(ctx context.Context, venueID string) (*Status, error) {
	threshold := s.threshold(ctx, venueID)

	now, err := s.currentTrack(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if now == nil {
		return &Status{Threshold: threshold}, nil
	}

	var votes int64
	if _, err := s.store.Get(ctx, store.SkipVotesKey(venueID, now.ID), &votes); err != nil {
		return nil, fmt.Errorf("failed to read skip tally: %w", err)
	}
	return &Status{TrackID: now.ID, Votes: votes, Threshold: threshold}, nil
}

// Vote casts one session's skip vote for the current track. When the tally
// reaches the threshold the provider skip fires and the tally resets; a
// failed provider call is logged but never un-counts the votes or fails
// the caller.
func (s *Service) Vote(ctx context.Context, venueID, sessionID string) (*Status, error) {
	now, err := s.currentTrack(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if now == nil {
		return nil, ErrNoTrackPlaying
	}
	trackID := now.ID

	created, err := s.store.SetNX(ctx, store.SkipVotedKey(venueID, sessionID, trackID), true, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to record skip vote: %w", err)
	}
	if !created {
		return nil, ErrAlreadyVoted
	}

	votes, err := s.store.IncrBy(ctx, store.SkipVotesKey(venueID, trackID), 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to increment skip tally: %w", err)
	}

	threshold := s.threshold(ctx, venueID)
	if votes >= int64(threshold) {
		s.triggerSkip(ctx, venueID, trackID, votes)
	}

	return &Status{TrackID: trackID, Votes: votes, Threshold: threshold}, nil
}

func (s *Service) triggerSkip(ctx context.Context, venueID, trackID string, votes int64) {
	var deviceID string
	if _, err := s.store.Get(ctx, store.DeviceKey(venueID), &deviceID); err != nil {
		s.logger.Warn("failed to read device for skip", zap.String("venue_id", venueID), zap.Error(err))
	}

	if err := s.player.SkipToNext(ctx, venueID, deviceID); err != nil {
		s.logger.Error("provider skip failed", zap.String("venue_id", venueID),
			zap.String("track_id", trackID), zap.Error(err))
	}

	// Reset regardless of the provider outcome so the tally cannot wedge.
	if err := s.store.Delete(ctx, store.SkipVotesKey(venueID, trackID)); err != nil {
		s.logger.Error("failed to reset skip tally", zap.String("venue_id", venueID), zap.Error(err))
	}

	event, err := events.NewEvent(events.EventTypeSkipTriggered, venueID, events.SkipTriggeredPayload{
		TrackID: trackID,
		Votes:   int(votes),
	})
	if err == nil {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish skip event", zap.Error(err))
		}
	}
}
