package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/layer-3/portal/core"
)

// Verify proves a restored or freshly issued token with one authenticated
// call. It does nothing unless the session is pending verification.
// Any failure invalidates the session; a cancelled ctx leaves it pending.
// The result only applies to the session that was checked.
func (c *Client) Verify(ctx context.Context) error {
	snap, epoch := c.state.current()
	if snap.Phase() != core.PhasePendingVerification {
		return nil
	}

	req := &Request{
		Method:    http.MethodGet,
		Path:      c.verifyEndpoint,
		Header:    http.Header{"Accept": []string{"application/json"}},
		verifying: true,
	}

	if err := c.checkToken(ctx, req); err != nil {
		if ctx.Err() != nil {
			// nothing was learned about the token
			return err
		}
		ended, ierr := c.state.invalidate(context.WithoutCancel(ctx), epoch)
		if ierr != nil {
			c.log.WithError(ierr).Errorln("Failed to clear rejected session")
		}
		if !ended {
			c.log.Debugln("Discarding verification result for an ended session")
			return nil
		}
		return fmt.Errorf("%w: %w", core.ErrVerificationFailed, err)
	}

	if !c.state.markVerified(ctx, epoch) {
		c.log.Debugln("Discarding verification result for an ended session")
	}
	return nil
}

func (c *Client) checkToken(ctx context.Context, req *Request) error {
	resp, err := c.do(ctx, c.verifier, req)
	if err != nil {
		return err
	}

	var body json.RawMessage
	return decodeJSON(req, resp, &body)
}
