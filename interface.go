package portal

import (
	"context"

	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/session"
)

// App is what a UI needs from the session layer. Rendering code reads
// Snapshot or Subscribe and never reaches into the credential store.
type App interface {
	// Snapshot returns the current token and verified flag
	Snapshot() core.Snapshot

	// TakeNotice returns the pending user-facing message once
	TakeNotice() (core.Notice, bool)

	// Subscribe streams snapshots after every transition
	Subscribe() (<-chan core.Snapshot, func())

	// Login exchanges credentials for a pending-verification session
	Login(ctx context.Context, username, password string) error

	// Logout ends the session locally and on the server
	Logout(ctx context.Context) error

	// Verify proves a pending token with one authenticated call
	Verify(ctx context.Context) error

	// Request sends a JSON call with the current token attached
	Request(ctx context.Context, endpoint string, opts session.RequestOptions, out any) error
}
