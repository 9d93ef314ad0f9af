package store

// Key builders for the venue state layout. Every component goes through
// these so the layout lives in one place.

func QueueKey(venueID, songID string) string   { return "queue:" + venueID + ":" + songID }
func QueuePrefix(venueID string) string        { return "queue:" + venueID + ":" }
func VoteKey(venueID, sessionID, songID string) string {
	return "vote:" + venueID + ":" + sessionID + ":" + songID
}
func SessionKey(venueID, sessionID string) string { return "session:" + venueID + ":" + sessionID }
func AdminPinKey(venueID string) string           { return "admin:pin:" + venueID }
func AdminSessionKey(venueID, token string) string {
	return "admin:session:" + venueID + ":" + token
}
func SkipVotesKey(venueID, trackID string) string { return "skip:votes:" + venueID + ":" + trackID }
func SkipVotedKey(venueID, sessionID, trackID string) string {
	return "skip:voted:" + venueID + ":" + sessionID + ":" + trackID
}
func SkipThresholdKey(venueID string) string { return "skip:threshold:" + venueID }
func NowPlayingKey(venueID string) string    { return "nowplaying:" + venueID }
func DeviceKey(venueID string) string        { return "spotify:device:" + venueID }
func RecentTracksKey(venueID string) string  { return "recent:tracks:" + venueID }
