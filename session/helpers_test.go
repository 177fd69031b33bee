package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/layer-3/portal/adapters/store"
	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) kinds() []core.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]core.EventKind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

var errStoreDown = errors.New("store down")

type failingStore struct {
	*store.MemoryCredentialStore
	failSet   bool
	failClear bool
}

func (s *failingStore) Set(ctx context.Context, token string) error {
	if s.failSet {
		return errStoreDown
	}
	return s.MemoryCredentialStore.Set(ctx, token)
}

func (s *failingStore) Clear(ctx context.Context) error {
	if s.failClear {
		return errStoreDown
	}
	return s.MemoryCredentialStore.Clear(ctx)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// newTestState returns a state over a memory store, optionally pre-seeded
func newTestState(t *testing.T, token string) (*State, *store.MemoryCredentialStore, *recordingPublisher) {
	t.Helper()
	ctx := context.Background()

	credentials := store.NewMemoryCredentialStore()
	if token != "" {
		require.NoError(t, credentials.Set(ctx, token))
	}

	events := &recordingPublisher{}
	state, err := NewState(ctx, credentials, WithEvents(events), WithStateLogger(quietLogger()))
	require.NoError(t, err)
	return state, credentials, events
}

func storedToken(t *testing.T, s *store.MemoryCredentialStore) string {
	t.Helper()
	token, err := s.Get(context.Background())
	if errors.Is(err, core.ErrNoCredential) {
		return ""
	}
	require.NoError(t, err)
	return token
}

// apiServer is a scripted backend counting calls per path
type apiServer struct {
	*httptest.Server
	mu     sync.Mutex
	calls  map[string]int
	auth   map[string][]string
	routes map[string]http.HandlerFunc
}

func newAPIServer(t *testing.T, routes map[string]http.HandlerFunc) *apiServer {
	t.Helper()
	s := &apiServer{
		calls:  make(map[string]int),
		auth:   make(map[string][]string),
		routes: routes,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.auth[r.URL.Path] = append(s.auth[r.URL.Path], r.Header.Get("Authorization"))
		handler, ok := s.routes[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *apiServer) authHeaders(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth[path]...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// acceptToken answers 200 for the given bearer token and 401 otherwise
func acceptToken(token, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, `{"detail":"Not authenticated"}`)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, code, body)
	}
}

func newTestClient(t *testing.T, state *State, server *apiServer, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{WithLogger(quietLogger())}, opts...)
	client, err := NewClient(state, server.URL+"/api", opts...)
	require.NoError(t, err)
	return client
}
