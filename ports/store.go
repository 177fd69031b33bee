package ports

import (
	"context"
	"time"
)

// CredentialStore holds the client's current access token in a single slot.
// Get returns core.ErrNoCredential when the slot is empty.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// RevocationStore tracks refresh tokens the server no longer honours
type RevocationStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
