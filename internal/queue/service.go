package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/internal/spotify"
	"github.com/crowdqueue/pkg/database"
	"github.com/crowdqueue/pkg/events"
	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

var (
	ErrAlreadyVoted = errors.New("queue: already voted for this song")
	ErrSongNotFound = errors.New("queue: song not found")
	ErrEmptyQueue   = errors.New("queue: no songs queued")
)

// CooldownError reports how long a session must wait before its next
// submission, in whole minutes (rounded up).
type CooldownError struct {
	RemainingMinutes int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("queue: cooldown active, %d minute(s) remaining", e.RemainingMinutes)
}

// CatalogSearcher resolves a title/artist pair to a playable track when the
// submitter did not pick one from search.
type CatalogSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]spotify.Track, error)
}

// SongInput is what a submitter provides; URI and SpotifyID are optional.
type SongInput struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	AlbumArt  string `json:"albumArt"`
	URI       string `json:"uri"`
	SpotifyID string `json:"spotifyId"`
}

// Service is the queue engine: ranked pending songs, hype votes, and the
// per-session submission cooldown.
type Service struct {
	store    store.Store
	catalog  CatalogSearcher
	events   events.Publisher
	db       *database.MySQLDB
	logger   *zap.Logger
	cooldown time.Duration
	nowFn    func() time.Time
}

func NewService(st store.Store, catalog CatalogSearcher, pub events.Publisher, db *database.MySQLDB, cooldown time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:    st,
		catalog:  catalog,
		events:   pub,
		db:       db,
		logger:   logger,
		cooldown: cooldown,
		nowFn:    time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(nowFn func() time.Time) { s.nowFn = nowFn }

// List returns a venue's pending songs ranked by hype descending, ties
// broken by submission time ascending. Selection uses the same order.
func (s *Service) List(ctx context.Context, venueID string) ([]models.QueueItem, error) {
	raws, err := s.store.GetByPrefix(ctx, store.QueuePrefix(venueID))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	items := make([]models.QueueItem, 0, len(raws))
	for _, raw := range raws {
		var item models.QueueItem
		if err := json.Unmarshal(raw, &item); err != nil {
			s.logger.Warn("skipping malformed queue entry", zap.String("venue_id", venueID), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Hype != items[j].Hype {
			return items[i].Hype > items[j].Hype
		}
		return items[i].AddedAt < items[j].AddedAt
	})
	return items, nil
}

// SelectNext returns the head of the ranked queue or ErrEmptyQueue.
func (s *Service) SelectNext(ctx context.Context, venueID string) (*models.QueueItem, error) {
	items, err := s.List(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyQueue
	}
	return &items[0], nil
}

// Remove deletes a queue item. Called by play-next once playback started.
func (s *Service) Remove(ctx context.Context, venueID, songID string) error {
	return s.store.Delete(ctx, store.QueueKey(venueID, songID))
}

// Vote registers one hype vote for (venue, session, song). The vote record
// is written first with a create-once key, so a session can never count
// twice; the hype increment itself is a CAS update on the queue item.
func (s *Service) Vote(ctx context.Context, venueID, songID, sessionID string) (int, error) {
	created, err := s.store.SetNX(ctx, store.VoteKey(venueID, sessionID, songID), true, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to record vote: %w", err)
	}
	if !created {
		return 0, ErrAlreadyVoted
	}

	var newHype int
	err = s.store.Update(ctx, store.QueueKey(venueID, songID), func(cur []byte, found bool) ([]byte, error) {
		if !found {
			return nil, ErrSongNotFound
		}
		var item models.QueueItem
		if err := json.Unmarshal(cur, &item); err != nil {
			return nil, fmt.Errorf("failed to decode queue item: %w", err)
		}
		item.Hype++
		newHype = item.Hype
		return json.Marshal(item)
	})
	if err != nil {
		// The vote record stays: votes are tombstones, never deleted.
		return 0, err
	}

	s.publish(ctx, events.EventTypeHypeUpdate, venueID, events.HypeUpdatePayload{SongID: songID, Hype: newHype})
	return newHype, nil
}

// CheckCooldown fails with a CooldownError when the session's previous
// submission is still active (queued or now playing) and the window has
// not elapsed.
func (s *Service) CheckCooldown(ctx context.Context, venueID, sessionID string) error {
	if s.cooldown <= 0 {
		return nil
	}

	var session models.SubmissionSession
	found, err := s.store.Get(ctx, store.SessionKey(venueID, sessionID), &session)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if !found || session.LastAddedAt == 0 {
		return nil
	}

	elapsed := s.nowFn().UnixMilli() - session.LastAddedAt
	windowMS := s.cooldown.Milliseconds()
	if elapsed >= windowMS {
		return nil
	}

	if session.LastSongID == "" || !s.songActive(ctx, venueID, session.LastSongID) {
		return nil
	}

	remaining := windowMS - elapsed
	return &CooldownError{RemainingMinutes: int((remaining + 59999) / 60000)}
}

// songActive reports whether the song is still queued or currently playing.
func (s *Service) songActive(ctx context.Context, venueID, songID string) bool {
	var item models.QueueItem
	if found, err := s.store.Get(ctx, store.QueueKey(venueID, songID), &item); err == nil && found {
		return true
	}
	var now models.NowPlaying
	if found, err := s.store.Get(ctx, store.NowPlayingKey(venueID), &now); err == nil && found {
		return now.ID == songID
	}
	return false
}

// RecordSubmission upserts the session's last-add marker.
func (s *Service) RecordSubmission(ctx context.Context, venueID, sessionID, songID string) error {
	session := models.SubmissionSession{
		VenueID:     venueID,
		SessionID:   sessionID,
		LastAddedAt: s.nowFn().UnixMilli(),
		LastSongID:  songID,
	}
	return s.store.Set(ctx, store.SessionKey(venueID, sessionID), session, 0)
}

// Add handles an audience submission: cooldown, catalog fallback, enqueue,
// and the submission record.
func (s *Service) Add(ctx context.Context, venueID, sessionID string, input SongInput) (*models.QueueItem, error) {
	if err := s.CheckCooldown(ctx, venueID, sessionID); err != nil {
		return nil, err
	}

	item, err := s.enqueue(ctx, venueID, input)
	if err != nil {
		return nil, err
	}
	if err := s.RecordSubmission(ctx, venueID, sessionID, item.ID); err != nil {
		s.logger.Warn("failed to record submission", zap.String("venue_id", venueID), zap.Error(err))
	}
	return item, nil
}

// AdminAdd enqueues a song with no cooldown and no submission record.
func (s *Service) AdminAdd(ctx context.Context, venueID string, input SongInput) (*models.QueueItem, error) {
	return s.enqueue(ctx, venueID, input)
}

func (s *Service) enqueue(ctx context.Context, venueID string, input SongInput) (*models.QueueItem, error) {
	uri, spotifyID, albumArt := input.URI, input.SpotifyID, input.AlbumArt
	if uri == "" && spotifyID == "" && s.catalog != nil {
		if t := s.resolveFromCatalog(ctx, input.Title, input.Artist); t != nil {
			uri = t.URI
			spotifyID = t.ID
			if albumArt == "" {
				albumArt = t.AlbumArt()
			}
		}
	}

	item := models.QueueItem{
		ID:        uuid.New().String(),
		Title:     input.Title,
		Artist:    input.Artist,
		AlbumArt:  albumArt,
		URI:       uri,
		SpotifyID: spotifyID,
		Hype:      0,
		AddedAt:   s.nowFn().UnixMilli(),
	}
	if item.URI == "" && item.SpotifyID != "" {
		item.URI = "spotify:track:" + item.SpotifyID
	}

	if err := s.store.Set(ctx, store.QueueKey(venueID, item.ID), item, 0); err != nil {
		return nil, fmt.Errorf("failed to enqueue song: %w", err)
	}

	s.ensureVenue(venueID)
	s.publish(ctx, events.EventTypeSongAdded, venueID, events.SongAddedPayload{
		SongID: item.ID,
		Title:  item.Title,
		Artist: item.Artist,
	})
	return &item, nil
}

// resolveFromCatalog is best-effort: a miss just leaves the song without a
// playable URI, which play-next reports when it gets there.
func (s *Service) resolveFromCatalog(ctx context.Context, title, artist string) *spotify.Track {
	tracks, err := s.catalog.SearchTracks(ctx, title+" "+artist, 1)
	if err != nil {
		s.logger.Warn("catalog fallback search failed", zap.String("title", title), zap.Error(err))
		return nil
	}
	if len(tracks) == 0 || tracks[0].URI == "" || tracks[0].ID == "" {
		return nil
	}
	return &tracks[0]
}

// NowPlaying returns the venue's cached snapshot, if any.
func (s *Service) NowPlaying(ctx context.Context, venueID string) (*models.NowPlaying, error) {
	var now models.NowPlaying
	found, err := s.store.Get(ctx, store.NowPlayingKey(venueID), &now)
	if err != nil {
		return nil, fmt.Errorf("failed to read now playing: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &now, nil
}

func (s *Service) ensureVenue(venueID string) {
	if s.db == nil {
		return
	}
	if err := s.db.EnsureVenue(venueID); err != nil {
		s.logger.Warn("failed to upsert venue row", zap.String("venue_id", venueID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, venueID string, payload any) {
	event, err := events.NewEvent(eventType, venueID, payload)
	if err != nil {
		s.logger.Warn("failed to build event", zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", string(eventType)), zap.Error(err))
	}
}
