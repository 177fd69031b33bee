// Package portal wires the session layer from configuration.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/layer-3/portal/adapters/events"
	"github.com/layer-3/portal/adapters/store"
	"github.com/layer-3/portal/config"
	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/ports"
	"github.com/layer-3/portal/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Portal is an opened session: state, client and the resources behind them
type Portal struct {
	state  *session.State
	client *session.Client
	log    logrus.FieldLogger

	credentials ports.CredentialStore
	bus         events.Bus
	topic       string
	redis       redis.UniversalClient
}

var _ App = (*Portal)(nil)

type options struct {
	log         logrus.FieldLogger
	credentials ports.CredentialStore
	http        *resty.Client
}

// Option customises Open
type Option func(*options)

// WithLogger sets the logger for every component
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithCredentialStore bypasses the configured store backend
func WithCredentialStore(s ports.CredentialStore) Option {
	return func(o *options) { o.credentials = s }
}

// WithHTTPClient sets the resty client used for API calls
func WithHTTPClient(c *resty.Client) Option {
	return func(o *options) { o.http = c }
}

// Open resolves the API location, restores the persisted session and
// prepares the client. A bad origin fails here rather than on first use.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Portal, error) {
	o := &options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}

	baseURL, err := session.ResolveBaseURL(session.Target{
		Development: cfg.IsDevelopment(),
		Origin:      cfg.API.Origin,
		DevOrigin:   cfg.API.DevOrigin,
		Prefix:      cfg.API.Prefix,
	})
	if err != nil {
		return nil, err
	}

	p := &Portal{
		log:         o.log,
		credentials: o.credentials,
		topic:       cfg.Events.Topic,
	}

	if err := p.openRedis(cfg); err != nil {
		return nil, err
	}
	if p.credentials == nil {
		if p.credentials, err = p.openStore(cfg, storeProfile(cfg, baseURL)); err != nil {
			p.Close()
			return nil, err
		}
	}

	publisher, err := p.openEvents(cfg)
	if err != nil {
		p.Close()
		return nil, err
	}

	p.state, err = session.NewState(ctx, p.credentials,
		session.WithEvents(publisher),
		session.WithStateLogger(o.log),
	)
	if err != nil {
		p.Close()
		return nil, err
	}

	httpClient := o.http
	if httpClient == nil {
		httpClient = resty.New()
	}
	httpClient.SetLogger(o.log)

	p.client, err = session.NewClient(p.state, baseURL,
		session.WithHTTPClient(httpClient),
		session.WithTimeout(cfg.API.Timeout),
		session.WithRefresh(cfg.Session.Refresh),
		session.WithVerifyBeforeUse(cfg.Session.VerifyBeforeUse),
		session.WithVerifyEndpoint(cfg.Session.VerifyEndpoint),
		session.WithLogger(o.log),
	)
	if err != nil {
		p.Close()
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"api":   baseURL,
		"phase": p.state.Snapshot().Phase(),
	}).Debugln("Portal opened")

	return p, nil
}

func (p *Portal) openRedis(cfg *config.Config) error {
	if cfg.Store.Backend != "redis" && cfg.Events.Backend != "redis" {
		return nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid redis.url: %w", core.ErrConfiguration, err)
	}
	p.redis = redis.NewClient(opts)
	return nil
}

// storeProfile names the credential slot. Without an explicit profile each
// API host gets its own.
func storeProfile(cfg *config.Config, baseURL string) string {
	if cfg.Store.Profile != "" {
		return cfg.Store.Profile
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return strings.ReplaceAll(u.Host, ":", "_")
}

func (p *Portal) openStore(cfg *config.Config, profile string) (ports.CredentialStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryCredentialStore(), nil
	case "redis":
		return store.NewRedisCredentialStore(p.redis, profile+":"+cfg.Store.Key), nil
	case "file", "":
		s, err := store.NewFileCredentialStore(cfg.Store.Dir, profile, cfg.Store.Key,
			store.WithFileLogger(p.log.WithField("component", "store")))
		if err != nil {
			return nil, err
		}
		p.log.WithField("path", s.Path()).Debugln("Using file credential store")
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", core.ErrConfiguration, cfg.Store.Backend)
	}
}

func (p *Portal) openEvents(cfg *config.Config) (ports.EventPublisher, error) {
	logger := events.NewLogrusAdapter(p.log.WithField("component", "events"))

	switch cfg.Events.Backend {
	case "none", "":
		return events.Discard{}, nil
	case "memory":
		p.bus = events.NewMemoryBus(logger)
	case "redis":
		bus, err := events.NewRedisStreamBus(p.redis, "", logger)
		if err != nil {
			return nil, err
		}
		p.bus = bus
	default:
		return nil, fmt.Errorf("%w: unknown events backend %q", core.ErrConfiguration, cfg.Events.Backend)
	}

	return events.NewWatermillPublisher(p.bus, p.topic), nil
}

// Close releases the event bus and redis connection
func (p *Portal) Close() error {
	var errs []error
	if p.bus != nil {
		errs = append(errs, p.bus.Close())
	}
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	return errors.Join(errs...)
}

// State exposes the session for direct mutation
func (p *Portal) State() *session.State { return p.state }

// Client exposes the request client
func (p *Portal) Client() *session.Client { return p.client }

func (p *Portal) Snapshot() core.Snapshot { return p.state.Snapshot() }

func (p *Portal) TakeNotice() (core.Notice, bool) { return p.state.TakeNotice() }

func (p *Portal) Subscribe() (<-chan core.Snapshot, func()) { return p.state.Subscribe() }

func (p *Portal) Login(ctx context.Context, username, password string) error {
	return p.client.Login(ctx, username, password)
}

func (p *Portal) Logout(ctx context.Context) error {
	return p.client.Logout(ctx)
}

func (p *Portal) Verify(ctx context.Context) error {
	return p.client.Verify(ctx)
}

func (p *Portal) Request(ctx context.Context, endpoint string, opts session.RequestOptions, out any) error {
	return p.client.Request(ctx, endpoint, opts, out)
}

// Watch streams session events from the configured bus
func (p *Portal) Watch(ctx context.Context) (<-chan core.Event, error) {
	if p.bus == nil {
		return nil, fmt.Errorf("%w: events backend is disabled", core.ErrConfiguration)
	}
	return events.Watch(ctx, p.bus, p.topic)
}
