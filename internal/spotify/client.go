package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crowdqueue/pkg/models"
)

type Track struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	URI      string   `json:"uri"`
	Artists  []Artist `json:"artists"`
	Duration int64    `json:"duration_ms"`
	Album    Album    `json:"album"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ArtistNames joins the track's artist names the way the venue views
// display them.
func (t *Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// AlbumArt returns the first album image, or "".
func (t *Track) AlbumArt() string {
	if len(t.Album.Images) > 0 {
		return t.Album.Images[0].URL
	}
	return ""
}

// PlayerState is the provider's live playback state. A nil state means the
// provider reported no active player.
type PlayerState struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMS int64  `json:"progress_ms"`
	Item       *Track `json:"item"`
}

type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

type devicesResponse struct {
	Devices []models.Device `json:"devices"`
}

type recommendationsResponse struct {
	Tracks []Track `json:"tracks"`
}

// Client talks to the streaming provider's catalog and player endpoints.
// Catalog calls are throttled client-side so a burst of venue searches
// cannot trip the provider's API limits.
type Client struct {
	tokens      *TokenManager
	redirectURI string
	httpClient  *http.Client
	apiURL      string
	catalogRate *rate.Limiter
}

func NewClient(tokens *TokenManager, redirectURI string, catalogRequestsPerSec float64) *Client {
	return &Client{
		tokens:      tokens,
		redirectURI: redirectURI,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		apiURL:      "https://api.spotify.com/v1",
		catalogRate: rate.NewLimiter(rate.Limit(catalogRequestsPerSec), int(catalogRequestsPerSec)),
	}
}

// AuthURL builds the authorization-code redirect for linking a venue.
// The venue id rides in the state parameter and comes back on the callback.
func (c *Client) AuthURL(venueID string) string {
	scopes := []string{
		"streaming",
		"user-read-playback-state",
		"user-modify-playback-state",
		"user-read-currently-playing",
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.tokens.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", venueID)
	params.Set("show_dialog", "false")

	return c.tokens.accountsURL + "/authorize?" + params.Encode()
}

// SearchTracks queries the catalog with the app-level token.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if err := c.catalogRate.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.tokens.AppToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprintf("%d", limit))

	var out searchResponse
	status, err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/search?"+params.Encode(), token, nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// Token died before its advertised expiry; start over next call.
		c.tokens.InvalidateAppToken(ctx)
		return nil, fmt.Errorf("spotify: search unauthorized")
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("spotify: search failed with status %d", status)
	}
	return out.Tracks.Items, nil
}

// GetTrack fetches one catalog track, used for best-effort duration lookup.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	if err := c.catalogRate.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.tokens.AppToken(ctx)
	if err != nil {
		return nil, err
	}

	var track Track
	status, err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/tracks/"+trackID, token, nil, &track)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("spotify: track lookup failed with status %d", status)
	}
	return &track, nil
}

// Devices lists the venue account's playback devices.
func (c *Client) Devices(ctx context.Context, venueID string) ([]models.Device, error) {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return nil, err
	}

	var out devicesResponse
	status, err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/me/player/devices", token, nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("spotify: devices failed with status %d", status)
	}
	return out.Devices, nil
}

// Transfer moves playback to a device. play=false leaves it paused.
func (c *Client) Transfer(ctx context.Context, venueID, deviceID string, play bool) error {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return err
	}

	body := map[string]any{"device_ids": []string{deviceID}, "play": play}
	status, err := c.doJSON(ctx, http.MethodPut, c.apiURL+"/me/player", token, body, nil)
	if err != nil {
		return err
	}
	if !playerSuccess(status) {
		return fmt.Errorf("spotify: transfer failed with status %d", status)
	}
	return nil
}

// Play starts the given URIs on a device from positionMS.
func (c *Client) Play(ctx context.Context, venueID, deviceID string, uris []string, positionMS int64) error {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return err
	}

	u := c.apiURL + "/me/player/play"
	if deviceID != "" {
		u += "?device_id=" + url.QueryEscape(deviceID)
	}
	body := map[string]any{"uris": uris, "position_ms": positionMS}
	status, err := c.doJSON(ctx, http.MethodPut, u, token, body, nil)
	if err != nil {
		return err
	}
	if !playerSuccess(status) {
		return fmt.Errorf("spotify: play failed with status %d", status)
	}
	return nil
}

// QueueTrack appends a URI to the provider's native playback queue.
func (c *Client) QueueTrack(ctx context.Context, venueID, uri string) error {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return err
	}

	u := c.apiURL + "/me/player/queue?uri=" + url.QueryEscape(uri)
	status, err := c.doJSON(ctx, http.MethodPost, u, token, nil, nil)
	if err != nil {
		return err
	}
	if !playerSuccess(status) {
		return fmt.Errorf("spotify: queue track failed with status %d", status)
	}
	return nil
}

// SkipToNext advances the venue's player to the next track.
func (c *Client) SkipToNext(ctx context.Context, venueID, deviceID string) error {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return err
	}

	u := c.apiURL + "/me/player/next"
	if deviceID != "" {
		u += "?device_id=" + url.QueryEscape(deviceID)
	}
	status, err := c.doJSON(ctx, http.MethodPost, u, token, nil, nil)
	if err != nil {
		return err
	}
	if !playerSuccess(status) {
		return fmt.Errorf("spotify: skip failed with status %d", status)
	}
	return nil
}

// PlayerState reads the venue's live playback state. Returns (nil, nil)
// when the provider reports no active player (204).
func (c *Client) PlayerState(ctx context.Context, venueID string) (*PlayerState, error) {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return nil, err
	}

	var state PlayerState
	status, err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/me/player", token, nil, &state)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("spotify: player state failed with status %d", status)
	}
	return &state, nil
}

// Recommendations asks the provider for up to limit tracks seeded by
// recently played track ids.
func (c *Client) Recommendations(ctx context.Context, venueID string, seedTrackIDs []string, limit int) ([]Track, error) {
	token, err := c.tokens.VenueToken(ctx, venueID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("seed_tracks", strings.Join(seedTrackIDs, ","))
	params.Set("limit", fmt.Sprintf("%d", limit))

	var out recommendationsResponse
	status, err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/recommendations?"+params.Encode(), token, nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("spotify: recommendations failed with status %d", status)
	}
	return out.Tracks, nil
}

// VenueAccessToken exposes a short-lived venue token for the Web Playback
// SDK running in the DJ view.
func (c *Client) VenueAccessToken(ctx context.Context, venueID string) (string, error) {
	return c.tokens.VenueToken(ctx, venueID)
}

// playerSuccess treats the provider's "ok" and "no content" answers as
// success for player mutations.
func playerSuccess(status int) bool {
	return status == http.StatusOK || status == http.StatusAccepted || status == http.StatusNoContent
}

// doJSON issues a bearer-authorized request, decodes a JSON response into
// out when provided, and always returns the HTTP status.
func (c *Client) doJSON(ctx context.Context, method, rawURL, token string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("spotify: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
