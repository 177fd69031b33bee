package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLoginEndpoint   = "/token"
	DefaultRefreshEndpoint = "/refresh"
	DefaultLogoutEndpoint  = "/logout"
	DefaultVerifyEndpoint  = "/hello"
)

// Request is an outbound call. The body is kept as bytes so the request can
// be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte

	// anonymous requests never carry the session token
	anonymous bool
	// verifying requests may carry a token that is not verified yet
	verifying bool
}

func (r *Request) clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	return &c
}

// Response is a completed HTTP exchange, whatever its status
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer performs one request
type Doer func(ctx context.Context, req *Request) (*Response, error)

// Client sends requests on behalf of the session. Every call reads the token
// from State at call time; 401 responses are recovered centrally.
type Client struct {
	state           *State
	base            string
	http            *resty.Client
	log             logrus.FieldLogger
	refresh         bool
	verifyFirst     bool
	loginEndpoint   string
	refreshEndpoint string
	logoutEndpoint  string
	verifyEndpoint  string
	refreshGroup    singleflight.Group

	dispatch Doer
	verifier Doer
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithRefresh enables or disables silent token refresh on 401
func WithRefresh(enabled bool) ClientOption {
	return func(c *Client) { c.refresh = enabled }
}

// WithVerifyBeforeUse blocks guarded calls until the token is verified
func WithVerifyBeforeUse(enabled bool) ClientOption {
	return func(c *Client) { c.verifyFirst = enabled }
}

// WithVerifyEndpoint sets the endpoint called by Verify
func WithVerifyEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.verifyEndpoint = endpoint
		}
	}
}

// WithTimeout bounds every HTTP round-trip
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithHTTPClient replaces the underlying resty client
func WithHTTPClient(rc *resty.Client) ClientOption {
	return func(c *Client) { c.http = rc }
}

// WithLogger sets the client logger
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the API at baseURL, which must be the output
// of ResolveBaseURL or an equivalent absolute URL.
func NewClient(state *State, baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := parseOrigin(baseURL)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(u.Scheme+"://"+u.Host+u.EscapedPath(), "/")

	c := &Client{
		state:           state,
		base:            base,
		http:            resty.New(),
		log:             logrus.StandardLogger(),
		refresh:         true,
		verifyFirst:     true,
		loginEndpoint:   DefaultLoginEndpoint,
		refreshEndpoint: DefaultRefreshEndpoint,
		logoutEndpoint:  DefaultLogoutEndpoint,
		verifyEndpoint:  DefaultVerifyEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dispatch = c.withAuthHeader(c.withRejectionRecovery(c.send))
	c.verifier = c.withAuthHeader(c.send)

	return c, nil
}

// BaseURL returns the URL endpoints are resolved against
func (c *Client) BaseURL() string {
	return c.base
}

// State returns the session the client reads its token from
func (c *Client) State() *State {
	return c.state
}

// RequestOptions describes a JSON call
type RequestOptions struct {
	Method string
	Body   any
	Header http.Header
}

// Request sends a JSON request to endpoint and decodes the JSON response
// into out when out is non-nil.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	req := &Request{
		Method: opts.Method,
		Path:   endpoint,
		Header: opts.Header.Clone(),
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Accept", "application/json")

	if opts.Body != nil {
		body, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	return decodeJSON(req, resp, out)
}

// Do sends req through header injection and rejection recovery. Non-2xx
// responses are returned as *core.StatusError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, c.dispatch, req)
}

func (c *Client) do(ctx context.Context, doer Doer, req *Request) (*Response, error) {
	resp, err := doer(ctx, req.clone())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(req, resp)
	}
	return resp, nil
}

func (c *Client) statusError(req *Request, resp *Response) *core.StatusError {
	return &core.StatusError{
		Method:     req.Method,
		URL:        JoinEndpoint(c.base, req.Path),
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
}

// send is the raw network call
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	r := c.http.R().SetContext(ctx)
	for key, values := range req.Header {
		for _, value := range values {
			r.Header.Add(key, value)
		}
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	url := JoinEndpoint(c.base, req.Path)
	res, err := r.Execute(req.Method, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", core.ErrNetwork, req.Method, url, err)
	}

	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    url,
		"status": res.StatusCode(),
	}).Debugln("API call")

	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, nil
}

// withAuthHeader attaches the current token. Anonymous requests and an absent
// token get no header at all.
func (c *Client) withAuthHeader(next Doer) Doer {
	return func(ctx context.Context, req *Request) (*Response, error) {
		req.Header.Del("Authorization")
		if req.anonymous {
			return next(ctx, req)
		}

		snap := c.state.Snapshot()
		if snap.Token == "" {
			return next(ctx, req)
		}
		if c.verifyFirst && !snap.Verified && !req.verifying {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, core.ErrSessionUnverified)
		}

		req.Header.Set("Authorization", bearer(snap.Token))
		return next(ctx, req)
	}
}

func bearer(token string) string {
	return "Bearer " + token
}

func tokenFromHeader(h http.Header) string {
	return strings.TrimPrefix(h.Get("Authorization"), "Bearer ")
}

func decodeJSON(req *Request, resp *Response, out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return fmt.Errorf("%w: %s %s: empty body", core.ErrDecode, req.Method, req.Path)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", core.ErrDecode, req.Method, req.Path, err)
	}
	return nil
}
