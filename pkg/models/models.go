package models

// Timestamps are unix milliseconds throughout; the audience and DJ views
// consume them directly.

// QueueItem is one candidate song waiting in a venue's queue.
type QueueItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	AlbumArt  string `json:"albumArt"`
	URI       string `json:"uri,omitempty"`
	SpotifyID string `json:"spotifyId,omitempty"`
	Hype      int    `json:"hype"`
	AddedAt   int64  `json:"addedAt"`
}

// PlayableURI resolves the URI to hand to the playback provider, or ""
// when the item carries neither a native URI nor a track id.
func (q *QueueItem) PlayableURI() string {
	if q.URI != "" {
		return q.URI
	}
	if q.SpotifyID != "" {
		return "spotify:track:" + q.SpotifyID
	}
	return ""
}

// NowPlaying is the cached snapshot of a venue's current track.
type NowPlaying struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	AlbumArt   string `json:"albumArt"`
	URI        string `json:"uri,omitempty"`
	SpotifyID  string `json:"spotifyId,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	StartedAt  int64  `json:"startedAt,omitempty"`
}

// SubmissionSession tracks one session's last successful add-song.
type SubmissionSession struct {
	VenueID     string `json:"venueId"`
	SessionID   string `json:"sessionId"`
	LastAddedAt int64  `json:"lastAddedAt"`
	LastSongID  string `json:"lastSongId"`
}

// PinRecord is a venue's admin credential. Set once, never rewritten.
type PinRecord struct {
	Hash      string `json:"hash"`
	CreatedAt int64  `json:"createdAt"`
}

// AdminSession is the server-side record behind an admin bearer token.
type AdminSession struct {
	ExpiresAt int64 `json:"exp"`
}

// RefreshTokenRecord holds a venue's provider refresh token.
type RefreshTokenRecord struct {
	RefreshToken string `json:"refresh_token"`
	ObtainedAt   int64  `json:"obtainedAt"`
}

// AppToken is the process-wide client-credentials catalog token.
type AppToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Device is a provider playback device as reported by the devices endpoint.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}
