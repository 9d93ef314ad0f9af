package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/crowdqueue/pkg/jwt"
	"github.com/crowdqueue/pkg/models"
	"github.com/crowdqueue/pkg/store"
)

var (
	ErrPinAlreadySet  = errors.New("admin: pin already set for this venue")
	ErrNoPinSet       = errors.New("admin: no pin set for this venue")
	ErrInvalidPin     = errors.New("admin: invalid pin")
	ErrUnauthorized   = errors.New("admin: missing admin token")
	ErrSessionExpired = errors.New("admin: session expired")
)

// Service owns the venue PIN credential and admin bearer sessions.
type Service struct {
	store store.Store
	ttl   time.Duration
	nowFn func() time.Time
}

func NewService(st store.Store, sessionTTL time.Duration) *Service {
	return &Service{store: st, ttl: sessionTTL, nowFn: time.Now}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(nowFn func() time.Time) { s.nowFn = nowFn }

// SetPin establishes a venue's admin PIN. Exactly one call per venue ever
// succeeds; the create-once write makes concurrent first calls safe.
func (s *Service) SetPin(ctx context.Context, venueID, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}

	rec := models.PinRecord{
		Hash:      string(hash),
		CreatedAt: s.nowFn().UnixMilli(),
	}
	created, err := s.store.SetNX(ctx, store.AdminPinKey(venueID), rec, 0)
	if err != nil {
		return fmt.Errorf("failed to store pin: %w", err)
	}
	if !created {
		return ErrPinAlreadySet
	}
	return nil
}

// Login verifies the PIN and issues a new session token bound to the venue.
// bcrypt both salts the hash and compares in constant time.
func (s *Service) Login(ctx context.Context, venueID, pin string) (string, error) {
	var rec models.PinRecord
	found, err := s.store.Get(ctx, store.AdminPinKey(venueID), &rec)
	if err != nil {
		return "", fmt.Errorf("failed to read pin record: %w", err)
	}
	if !found || rec.Hash == "" {
		return "", ErrNoPinSet
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(pin)) != nil {
		return "", ErrInvalidPin
	}

	token, err := jwt.GenerateToken(venueID, s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to mint session token: %w", err)
	}

	session := models.AdminSession{ExpiresAt: s.nowFn().Add(s.ttl).UnixMilli()}
	if err := s.store.Set(ctx, store.AdminSessionKey(venueID, token), session, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// RequireAdmin accepts a token iff its session record exists and has not
// expired. The stored record is authoritative so logout revokes instantly.
func (s *Service) RequireAdmin(ctx context.Context, venueID, token string) error {
	if token == "" {
		return ErrUnauthorized
	}

	claims, err := jwt.ValidateToken(token)
	if err != nil || claims.VenueID != venueID {
		return ErrSessionExpired
	}

	var session models.AdminSession
	found, err := s.store.Get(ctx, store.AdminSessionKey(venueID, token), &session)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if !found || session.ExpiresAt < s.nowFn().UnixMilli() {
		return ErrSessionExpired
	}
	return nil
}

// VenueForToken returns the venue a token claims to belong to, without
// consulting the store. RequireAdmin still decides whether it is valid.
func (s *Service) VenueForToken(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	claims, err := jwt.ValidateToken(token)
	if err != nil {
		return "", ErrSessionExpired
	}
	return claims.VenueID, nil
}

// Logout deletes the session unconditionally. Idempotent.
func (s *Service) Logout(ctx context.Context, venueID, token string) error {
	return s.store.Delete(ctx, store.AdminSessionKey(venueID, token))
}
