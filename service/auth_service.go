package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair is what a successful login or refresh hands out
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.RevocationStore
	eventPub  ports.EventPublisher
	log       logrus.FieldLogger
	now       func() time.Time

	mu    sync.RWMutex
	users map[string][]byte

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures an AuthService
type Option func(*AuthService)

// WithAccessTTL sets the lifetime of access tokens
func WithAccessTTL(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithRefreshTTL sets the lifetime of refresh tokens
func WithRefreshTTL(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithLogger sets the service logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *AuthService) { s.log = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.RevocationStore,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		tokenizer:  tokenizer,
		store:      store,
		eventPub:   eventPub,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		users:      make(map[string][]byte),
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser registers username with a bcrypt hash of password
func (s *AuthService) AddUser(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", core.ErrConfiguration)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	s.users[username] = hash
	s.mu.Unlock()
	return nil
}

// Login checks the password and issues a new grant
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	s.mu.RLock()
	hash, ok := s.users[username]
	s.mu.RUnlock()

	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		s.log.WithField("username", username).Infoln("Rejected login")
		return nil, core.ErrInvalidCredentials
	}

	pair, err := s.issue(username)
	if err != nil {
		return nil, err
	}

	s.log.WithField("username", username).Debugln("Issued tokens")
	return pair, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	grant, err := s.tokenizer.RefreshTokenToGrant(refreshToken)
	if err != nil {
		return nil, err
	}

	if s.now().After(grant.RefreshExpiry) {
		return nil, core.ErrTokenExpired
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, grant.RefreshID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	// the old refresh token stays revoked for as long as it would have been valid
	if err := s.store.InvalidateToken(ctx, grant.RefreshID, grant.RefreshExpiry.Sub(s.now())); err != nil {
		return nil, fmt.Errorf("failed to invalidate old token: %w", err)
	}

	return s.issue(grant.Subject)
}

// Logout revokes a refresh token and every access token derived from it
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	grant, err := s.tokenizer.RefreshTokenToGrant(refreshToken)
	if errors.Is(err, core.ErrTokenExpired) {
		// nothing left to revoke
		return nil
	}
	if err != nil {
		return err
	}

	ttl := grant.RefreshExpiry.Sub(s.now())
	if ttl < time.Hour {
		ttl = time.Hour
	}
	if err := s.store.InvalidateToken(ctx, grant.RefreshID, ttl); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	event := core.Event{
		ID:      uuid.New().String(),
		Kind:    core.EventRevoked,
		Subject: grant.Subject,
		TokenID: grant.RefreshID,
		At:      s.now().UTC(),
	}
	if err := s.eventPub.Publish(ctx, event); err != nil {
		// the token is already revoked in the store
		s.log.WithError(err).WithField("subject", grant.Subject).Warnln("Failed to publish revocation event")
	}

	return nil
}

// ValidateAccessToken returns the grant behind a live access token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Grant, error) {
	grant, err := s.tokenizer.AccessTokenToGrant(accessToken)
	if err != nil {
		return nil, err
	}

	if s.now().After(grant.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	if grant.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, grant.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return grant, nil
}

func (s *AuthService) issue(subject string) (*TokenPair, error) {
	now := s.now()
	grant := &core.Grant{
		ID:            uuid.New().String(),
		Subject:       subject,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.GrantToAccessToken(grant)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.GrantToRefreshToken(grant)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessTTL:    s.accessTTL,
		RefreshTTL:   s.refreshTTL,
	}, nil
}
