package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crowdqueue/internal/queue"
	"github.com/crowdqueue/internal/spotify"
	"github.com/crowdqueue/pkg/database"
	"github.com/crowdqueue/pkg/events"
	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

var (
	ErrNoDeviceSelected = errors.New("playback: no device selected for this venue")
	ErrNoPlayableURI    = errors.New("playback: song has no provider URI or track id")
	// ErrQueueEmptyAutoFillTried tells the caller the queue was empty and
	// recommendation auto-fill was attempted; retry after it lands.
	ErrQueueEmptyAutoFillTried = errors.New("playback: queue empty, tried auto-fill")
	ErrUpstreamPlayback        = errors.New("playback: provider refused to start playback")
)

const (
	recentHistoryLimit = 10
	autoFillSeeds      = 5
	autoFillTracks     = 5
)

// Provider is the slice of the streaming client the orchestrator drives.
type Provider interface {
	Devices(ctx context.Context, venueID string) ([]models.Device, error)
	Transfer(ctx context.Context, venueID, deviceID string, play bool) error
	Play(ctx context.Context, venueID, deviceID string, uris []string, positionMS int64) error
	QueueTrack(ctx context.Context, venueID, uri string) error
	PlayerState(ctx context.Context, venueID string) (*spotify.PlayerState, error)
	Recommendations(ctx context.Context, venueID string, seedTrackIDs []string, limit int) ([]spotify.Track, error)
	GetTrack(ctx context.Context, trackID string) (*spotify.Track, error)
}

// Orchestrator owns the play-next state machine and the guard/ensure
// watchdog. The state (playing, idle with queue, idle empty) is never
// stored; each tick derives it from provider state plus queue state.
type Orchestrator struct {
	store    store.Store
	queue    *queue.Service
	provider Provider
	events   events.Publisher
	db       *database.MySQLDB
	logger   *zap.Logger
	nowFn    func() time.Time
}

func NewOrchestrator(st store.Store, q *queue.Service, provider Provider, pub events.Publisher, db *database.MySQLDB, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		queue:    q,
		provider: provider,
		events:   pub,
		db:       db,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// SetClock overrides the orchestrator clock. Test hook.
func (o *Orchestrator) SetClock(nowFn func() time.Time) { o.nowFn = nowFn }

func (o *Orchestrator) selectedDevice(ctx context.Context, venueID string) (string, error) {
	var deviceID string
	found, err := o.store.Get(ctx, store.DeviceKey(venueID), &deviceID)
	if err != nil {
		return "", fmt.Errorf("failed to read device selection: %w", err)
	}
	if !found || deviceID == "" {
		return "", ErrNoDeviceSelected
	}
	return deviceID, nil
}

// SelectDevice persists the venue's playback device. Reselection overwrites.
func (o *Orchestrator) SelectDevice(ctx context.Context, venueID, deviceID string) error {
	return o.store.Set(ctx, store.DeviceKey(venueID), deviceID, 0)
}

// Devices lists the linked account's playback devices.
func (o *Orchestrator) Devices(ctx context.Context, venueID string) ([]models.Device, error) {
	return o.provider.Devices(ctx, venueID)
}

// PlayNext advances the queue: pick the top-ranked song, start it on the
// selected device, publish the now-playing snapshot, and dequeue it.
func (o *Orchestrator) PlayNext(ctx context.Context, venueID string) (*models.NowPlaying, error) {
	deviceID, err := o.selectedDevice(ctx, venueID)
	if err != nil {
		return nil, err
	}

	next, err := o.queue.SelectNext(ctx, venueID)
	if err != nil {
		if errors.Is(err, queue.ErrEmptyQueue) {
			if fillErr := o.AutoFill(ctx, venueID); fillErr != nil {
				o.logger.Warn("auto-fill after empty queue failed",
					zap.String("venue_id", venueID), zap.Error(fillErr))
			}
			return nil, ErrQueueEmptyAutoFillTried
		}
		return nil, err
	}

	uri := next.PlayableURI()
	if uri == "" {
		return nil, ErrNoPlayableURI
	}

	// Transfer is advisory: the play call names the device explicitly.
	if err := o.provider.Transfer(ctx, venueID, deviceID, false); err != nil {
		o.logger.Warn("transfer before play failed", zap.String("venue_id", venueID), zap.Error(err))
	}

	if err := o.provider.Play(ctx, venueID, deviceID, []string{uri}, 0); err != nil {
		o.logger.Error("play failed", zap.String("venue_id", venueID),
			zap.String("uri", uri), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamPlayback, err)
	}

	now := models.NowPlaying{
		ID:        next.ID,
		Title:     next.Title,
		Artist:    next.Artist,
		AlbumArt:  next.AlbumArt,
		URI:       uri,
		SpotifyID: next.SpotifyID,
		StartedAt: o.nowFn().UnixMilli(),
	}
	now.DurationMS = o.lookupDuration(ctx, next.SpotifyID)

	if err := o.store.Set(ctx, store.NowPlayingKey(venueID), now, 0); err != nil {
		return nil, fmt.Errorf("failed to write now playing: %w", err)
	}

	// The new track starts with a clean skip slate, and the played item
	// leaves the queue only after playback actually started.
	if err := o.store.Delete(ctx, store.SkipVotesKey(venueID, next.ID)); err != nil {
		o.logger.Warn("failed to clear skip tally", zap.String("venue_id", venueID), zap.Error(err))
	}
	if err := o.queue.Remove(ctx, venueID, next.ID); err != nil {
		return nil, fmt.Errorf("failed to dequeue played song: %w", err)
	}

	if next.SpotifyID != "" {
		o.appendRecent(ctx, venueID, next.SpotifyID)
	}
	o.recordHistory(venueID, next)
	o.publishNowPlaying(ctx, venueID, &now)

	return &now, nil
}

// lookupDuration is best-effort; a fresh track simply has no duration yet
// and the live views cope.
func (o *Orchestrator) lookupDuration(ctx context.Context, spotifyID string) int64 {
	if spotifyID == "" {
		return 0
	}
	track, err := o.provider.GetTrack(ctx, spotifyID)
	if err != nil || track == nil {
		o.logger.Debug("duration lookup failed", zap.String("track_id", spotifyID), zap.Error(err))
		return 0
	}
	return track.Duration
}

// appendRecent keeps the venue's bounded played-track history used as
// recommendation seeds.
func (o *Orchestrator) appendRecent(ctx context.Context, venueID, spotifyID string) {
	err := o.store.Update(ctx, store.RecentTracksKey(venueID), func(cur []byte, found bool) ([]byte, error) {
		var recent []string
		if found {
			if err := json.Unmarshal(cur, &recent); err != nil {
				recent = nil
			}
		}
		recent = append(recent, spotifyID)
		if len(recent) > recentHistoryLimit {
			recent = recent[len(recent)-recentHistoryLimit:]
		}
		return json.Marshal(recent)
	})
	if err != nil {
		o.logger.Warn("failed to append recent track", zap.String("venue_id", venueID), zap.Error(err))
	}
}

// AutoFill seeds the provider's native queue with recommendations based on
// recently played tracks, and resumes playback if it was paused. A venue
// with no device or no history is left alone.
func (o *Orchestrator) AutoFill(ctx context.Context, venueID string) error {
	deviceID, err := o.selectedDevice(ctx, venueID)
	if err != nil {
		if errors.Is(err, ErrNoDeviceSelected) {
			return nil
		}
		return err
	}

	var recent []string
	if _, err := o.store.Get(ctx, store.RecentTracksKey(venueID), &recent); err != nil {
		return fmt.Errorf("failed to read recent tracks: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}
	seeds := recent
	if len(seeds) > autoFillSeeds {
		seeds = seeds[len(seeds)-autoFillSeeds:]
	}

	tracks, err := o.provider.Recommendations(ctx, venueID, seeds, autoFillTracks)
	if err != nil {
		return fmt.Errorf("recommendations failed: %w", err)
	}

	for _, t := range tracks {
		if t.URI == "" {
			continue
		}
		if err := o.provider.QueueTrack(ctx, venueID, t.URI); err != nil {
			o.logger.Warn("failed to queue recommended track",
				zap.String("venue_id", venueID), zap.String("uri", t.URI), zap.Error(err))
		}
	}

	state, err := o.provider.PlayerState(ctx, venueID)
	if err != nil {
		o.logger.Warn("player state after auto-fill failed", zap.String("venue_id", venueID), zap.Error(err))
		return nil
	}
	if state == nil || !state.IsPlaying {
		if err := o.provider.Transfer(ctx, venueID, deviceID, true); err != nil {
			o.logger.Warn("resume after auto-fill failed", zap.String("venue_id", venueID), zap.Error(err))
		}
	}
	return nil
}

// GuardResult reports what a watchdog tick saw and did.
type GuardResult struct {
	OK      bool   `json:"ok"`
	Playing bool   `json:"playing,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Tried   string `json:"tried,omitempty"`
	Queue   int    `json:"queue,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// GuardEnsure is the reconciliation tick: a venue with a selected device
// and pending work never sits idle. Failures are reported, not escalated;
// the next tick retries.
func (o *Orchestrator) GuardEnsure(ctx context.Context, venueID string) (*GuardResult, error) {
	if _, err := o.selectedDevice(ctx, venueID); err != nil {
		if errors.Is(err, ErrNoDeviceSelected) {
			return &GuardResult{OK: false, Reason: "no-device"}, nil
		}
		return nil, err
	}

	playing := false
	state, err := o.provider.PlayerState(ctx, venueID)
	if err != nil {
		o.logger.Warn("guard could not read player state", zap.String("venue_id", venueID), zap.Error(err))
	} else if state != nil {
		playing = state.IsPlaying
	}

	items, err := o.queue.List(ctx, venueID)
	if err != nil {
		return nil, err
	}

	if playing {
		return &GuardResult{OK: true, Playing: true, Queue: len(items)}, nil
	}

	if len(items) > 0 {
		if _, err := o.PlayNext(ctx, venueID); err != nil {
			return &GuardResult{OK: false, Tried: "play-next", Detail: err.Error()}, nil
		}
		return &GuardResult{OK: true, Tried: "play-next"}, nil
	}

	if err := o.AutoFill(ctx, venueID); err != nil {
		return &GuardResult{OK: false, Tried: "auto-fill", Detail: err.Error()}, nil
	}
	return &GuardResult{OK: true, Tried: "auto-fill"}, nil
}

// LiveState mirrors the provider's live playback state for polling views.
type LiveState struct {
	IsPlaying  bool      `json:"is_playing"`
	ProgressMS int64     `json:"progress_ms"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  *int64    `json:"startedAt"`
	Item       *LiveItem `json:"item"`
}

type LiveItem struct {
	Name     string `json:"name"`
	Artists  string `json:"artists"`
	AlbumArt string `json:"albumArt"`
	URI      string `json:"uri"`
	ID       string `json:"id"`
}

// Live reads the provider's current playback state for a venue.
func (o *Orchestrator) Live(ctx context.Context, venueID string) (*LiveState, error) {
	state, err := o.provider.PlayerState(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &LiveState{}, nil
	}

	live := &LiveState{
		IsPlaying:  state.IsPlaying,
		ProgressMS: state.ProgressMS,
	}
	if state.Item != nil {
		live.DurationMS = state.Item.Duration
		live.Item = &LiveItem{
			Name:     state.Item.Name,
			Artists:  state.Item.ArtistNames(),
			AlbumArt: state.Item.AlbumArt(),
			URI:      state.Item.URI,
			ID:       state.Item.ID,
		}
	}
	if state.IsPlaying {
		startedAt := o.nowFn().UnixMilli() - state.ProgressMS
		live.StartedAt = &startedAt
	}
	return live, nil
}

// PlayURIs plays an arbitrary URI list on the venue's selected device.
// Admin escape hatch; bypasses the queue entirely.
func (o *Orchestrator) PlayURIs(ctx context.Context, venueID string, uris []string, positionMS int64) error {
	deviceID, err := o.selectedDevice(ctx, venueID)
	if err != nil {
		return err
	}
	if err := o.provider.Transfer(ctx, venueID, deviceID, false); err != nil {
		o.logger.Warn("transfer before play failed", zap.String("venue_id", venueID), zap.Error(err))
	}
	if err := o.provider.Play(ctx, venueID, deviceID, uris, positionMS); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamPlayback, err)
	}
	return nil
}

// History returns the venue's durable play ledger, newest first.
func (o *Orchestrator) History(venueID string, limit int) ([]database.PlayHistory, error) {
	if o.db == nil {
		return nil, nil
	}
	return o.db.RecentPlays(venueID, limit)
}

func (o *Orchestrator) recordHistory(venueID string, item *models.QueueItem) {
	if o.db == nil {
		return
	}
	entry := &database.PlayHistory{
		VenueID:   venueID,
		SongID:    item.ID,
		SpotifyID: item.SpotifyID,
		Title:     item.Title,
		Artist:    item.Artist,
		Hype:      item.Hype,
		PlayedAt:  o.nowFn(),
	}
	if err := o.db.RecordPlay(entry); err != nil {
		o.logger.Warn("failed to record play history", zap.String("venue_id", venueID), zap.Error(err))
	}
}

func (o *Orchestrator) publishNowPlaying(ctx context.Context, venueID string, now *models.NowPlaying) {
	event, err := events.NewEvent(events.EventTypeNowPlayingChanged, venueID, events.NowPlayingPayload{
		SongID: now.ID,
		Title:  now.Title,
		Artist: now.Artist,
	})
	if err != nil {
		return
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.logger.Warn("failed to publish now playing event", zap.Error(err))
	}
}
