package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/layer-3/portal/core"
)

// Login exchanges credentials for an access token and starts an unverified
// session. A 401 here means bad credentials and never triggers a refresh.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req := &Request{
		Method: http.MethodPost,
		Path:   c.loginEndpoint,
		Header: http.Header{
			"Accept":       []string{"application/json"},
			"Content-Type": []string{"application/x-www-form-urlencoded"},
		},
		Body:      []byte(form.Encode()),
		anonymous: true,
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("%w: %s %s: %w", core.ErrDecode, req.Method, req.Path, err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("%w: %s %s: missing access_token", core.ErrDecode, req.Method, req.Path)
	}

	return c.state.Login(ctx, body.AccessToken)
}

// Logout asks the server to drop its refresh credential, then clears the
// local session. Only the local part can fail.
func (c *Client) Logout(ctx context.Context) error {
	req := &Request{
		Method:    http.MethodPost,
		Path:      c.logoutEndpoint,
		Header:    http.Header{"Accept": []string{"application/json"}},
		anonymous: true,
	}
	if _, err := c.Do(ctx, req); err != nil {
		c.log.WithError(err).Debugln("Server logout failed")
	}

	return c.state.Logout(ctx)
}
