package ports

import "github.com/layer-3/portal/core"

// Tokenizer converts between grants and bearer tokens
type Tokenizer interface {
	GrantToAccessToken(grant *core.Grant) (string, error)
	AccessTokenToGrant(token string) (*core.Grant, error)
	GrantToRefreshToken(grant *core.Grant) (string, error)
	RefreshTokenToGrant(token string) (*core.Grant, error)
}
