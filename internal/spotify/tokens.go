package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

const (
	appTokenKey      = "spotify:access_token"
	refreshKeyPrefix = "spotify:refresh:"

	// Refresh the catalog token this long before the provider expires it.
	appTokenSafetyMargin = 300 * time.Second
)

// ErrVenueNotLinked means no refresh token is on file for the venue; an
// admin has to run the OAuth linking flow before playback control works.
var ErrVenueNotLinked = errors.New("spotify: venue not linked (no refresh token)")

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// TokenManager mints the two kinds of provider access tokens: a process-wide
// client-credentials token for catalog calls, and short-lived per-venue
// tokens exchanged from each venue's stored refresh token.
type TokenManager struct {
	clientID     string
	clientSecret string
	store        store.Store
	httpClient   *http.Client
	accountsURL  string
	logger       *zap.Logger
}

func NewTokenManager(clientID, clientSecret string, st store.Store, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        st,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		accountsURL:  "https://accounts.spotify.com",
		logger:       logger,
	}
}

// AppToken returns the cached client-credentials token, refreshing it when
// it is within the safety margin of expiry.
func (m *TokenManager) AppToken(ctx context.Context) (string, error) {
	var cached models.AppToken
	found, err := m.store.Get(ctx, appTokenKey, &cached)
	if err != nil {
		return "", err
	}
	if found && cached.Token != "" && cached.ExpiresAt > time.Now().UnixMilli() {
		return cached.Token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	token, err := m.doTokenRequest(ctx, data)
	if err != nil {
		return "", fmt.Errorf("spotify: client credentials grant: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - appTokenSafetyMargin).UnixMilli()
	if err := m.store.Set(ctx, appTokenKey, models.AppToken{Token: token.AccessToken, ExpiresAt: expiresAt}, 0); err != nil {
		m.logger.Warn("failed to cache app token", zap.Error(err))
	}
	return token.AccessToken, nil
}

// InvalidateAppToken drops the cached catalog token so the next call mints
// a fresh one. Called when the provider rejects it early.
func (m *TokenManager) InvalidateAppToken(ctx context.Context) {
	if err := m.store.Delete(ctx, appTokenKey); err != nil {
		m.logger.Warn("failed to invalidate app token", zap.Error(err))
	}
}

// VenueToken exchanges the venue's stored refresh token for an access token.
// If the provider rotates the refresh token, the stored one is replaced.
func (m *TokenManager) VenueToken(ctx context.Context, venueID string) (string, error) {
	key := refreshKeyPrefix + venueID

	var rec models.RefreshTokenRecord
	found, err := m.store.Get(ctx, key, &rec)
	if err != nil {
		return "", err
	}
	if !found || rec.RefreshToken == "" {
		return "", ErrVenueNotLinked
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", rec.RefreshToken)
	token, err := m.doTokenRequest(ctx, data)
	if err != nil {
		return "", fmt.Errorf("spotify: refresh grant for venue %s: %w", venueID, err)
	}

	if token.RefreshToken != "" && token.RefreshToken != rec.RefreshToken {
		rotated := models.RefreshTokenRecord{
			RefreshToken: token.RefreshToken,
			ObtainedAt:   time.Now().UnixMilli(),
		}
		if err := m.store.Set(ctx, key, rotated, 0); err != nil {
			m.logger.Warn("failed to persist rotated refresh token",
				zap.String("venue_id", venueID), zap.Error(err))
		}
	}

	return token.AccessToken, nil
}

// StoreRefreshToken persists the refresh token obtained from the OAuth
// callback exchange.
func (m *TokenManager) StoreRefreshToken(ctx context.Context, venueID, refreshToken string) error {
	rec := models.RefreshTokenRecord{
		RefreshToken: refreshToken,
		ObtainedAt:   time.Now().UnixMilli(),
	}
	return m.store.Set(ctx, refreshKeyPrefix+venueID, rec, 0)
}

// ExchangeCode runs the authorization-code grant from the OAuth callback.
func (m *TokenManager) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	return m.doTokenRequest(ctx, data)
}

func (m *TokenManager) doTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.accountsURL+"/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(m.clientID + ":" + m.clientSecret))
	req.Header.Add("Authorization", "Basic "+auth)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}
