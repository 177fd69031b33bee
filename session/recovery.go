package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// withRejectionRecovery handles 401 responses for every guarded call.
// The original request is replayed at most once; if that is not possible
// or the replay is rejected too, the session is expired and the original
// 401 is returned.
func (c *Client) withRejectionRecovery(next Doer) Doer {
	return func(ctx context.Context, req *Request) (*Response, error) {
		_, epoch := c.state.current()

		resp, err := next(ctx, req)
		if err != nil || resp.StatusCode != http.StatusUnauthorized || req.anonymous {
			return resp, err
		}

		log := c.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
		})

		snap, now := c.state.current()
		if now != epoch {
			// The session this request was sent under is gone
			log.Debugln("Discarding rejection for an ended session")
			return resp, nil
		}

		token := snap.Token
		if token == "" || token == tokenFromHeader(req.Header) {
			if !c.refresh {
				log.Debugln("Token rejected and refresh is disabled")
				return nil, c.expire(ctx, epoch, req, resp)
			}

			token, err = c.refreshToken(ctx, epoch, snap.Token)
			if err != nil && ctx.Err() != nil {
				// the caller gave up; the shared refresh carries on for the others
				log.WithError(err).Debugln("Abandoned token refresh")
				return nil, err
			}
			if err != nil {
				log.WithError(err).Warnln("Token refresh failed")
				return nil, c.expire(ctx, epoch, req, resp)
			}
		}

		replay := req.clone()
		replay.Header.Set("Authorization", bearer(token))

		replayed, err := next(ctx, replay)
		if err != nil {
			return nil, err
		}
		if replayed.StatusCode == http.StatusUnauthorized {
			log.Warnln("Replayed request rejected")
			return nil, c.expire(ctx, epoch, req, resp)
		}

		return replayed, nil
	}
}

// expire ends the session and returns the original rejection, marked as a
// session expiry when there was a session to end
func (c *Client) expire(ctx context.Context, epoch uint64, req *Request, resp *Response) error {
	rejected := c.statusError(req, resp)

	ended, err := c.state.expire(context.WithoutCancel(ctx), epoch)
	if err != nil {
		c.log.WithError(err).Errorln("Failed to clear expired session")
	}
	if !ended {
		return rejected
	}
	return fmt.Errorf("%w: %w", core.ErrSessionExpired, rejected)
}

// refreshToken obtains and stores a new access token. Concurrent callers
// share a single refresh call, which runs detached from any one caller's
// context. A caller whose context ends stops waiting and gets ctx.Err().
func (c *Client) refreshToken(ctx context.Context, epoch uint64, rejected string) (string, error) {
	ch := c.refreshGroup.DoChan(fmt.Sprint(epoch), func() (any, error) {
		return c.runRefresh(context.WithoutCancel(ctx), epoch, rejected)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("token refresh: %w", ctx.Err())
	}
}

func (c *Client) runRefresh(ctx context.Context, epoch uint64, rejected string) (string, error) {
	snap, now := c.state.current()
	if now != epoch {
		return "", fmt.Errorf("%w: %w", core.ErrRefreshFailed, core.ErrSessionExpired)
	}
	if snap.Token != "" && snap.Token != rejected {
		// an earlier refresh of this session already replaced the token
		return snap.Token, nil
	}

	req := &Request{
		Method:    http.MethodPost,
		Path:      c.refreshEndpoint,
		Header:    http.Header{"Accept": []string{"application/json"}},
		anonymous: true,
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrRefreshFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %w", core.ErrRefreshFailed, c.statusError(req, resp))
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("%w: %w: %w", core.ErrRefreshFailed, core.ErrDecode, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: %w: missing access_token", core.ErrRefreshFailed, core.ErrDecode)
	}

	if err := c.state.rotate(ctx, epoch, body.AccessToken); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrRefreshFailed, err)
	}
	return body.AccessToken, nil
}
