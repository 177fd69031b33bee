package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/portal/adapters/events"
	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/ports"
	"github.com/sirupsen/logrus"
)

// State is the process-wide session: the token held by the credential store
// plus an in-memory verified flag. All transitions happen under one lock, so
// no reader can observe a cleared token that is still marked verified.
type State struct {
	mu       sync.RWMutex
	store    ports.CredentialStore
	events   ports.EventPublisher
	log      logrus.FieldLogger
	now      func() time.Time
	token    string
	verified bool
	epoch    uint64
	notice   *core.Notice
	subs     map[uint64]chan core.Snapshot
	nextSub  uint64
}

// StateOption configures a State
type StateOption func(*State)

// WithEvents publishes lifecycle events to p
func WithEvents(p ports.EventPublisher) StateOption {
	return func(s *State) { s.events = p }
}

// WithStateLogger sets the logger used for state transitions
func WithStateLogger(l logrus.FieldLogger) StateOption {
	return func(s *State) { s.log = l }
}

// NewState creates the session from whatever token the store currently holds.
// A restored token always starts unverified.
func NewState(ctx context.Context, store ports.CredentialStore, opts ...StateOption) (*State, error) {
	s := &State{
		store:  store,
		events: events.Discard{},
		log:    logrus.StandardLogger(),
		now:    time.Now,
		epoch:  1,
		subs:   make(map[uint64]chan core.Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	token, err := readToken(ctx, store)
	if err != nil {
		return nil, err
	}
	s.token = token

	s.log.WithField("phase", s.snapshotLocked().Phase()).Debugln("Restored session state")
	return s, nil
}

func readToken(ctx context.Context, store ports.CredentialStore) (string, error) {
	token, err := store.Get(ctx)
	if errors.Is(err, core.ErrNoCredential) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	return token, nil
}

// Snapshot returns the current token and verified flag
func (s *State) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() core.Snapshot {
	return core.Snapshot{Token: s.token, Verified: s.verified && s.token != ""}
}

// Login stores token and marks the session unverified
func (s *State) Login(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrEmptyToken
	}

	s.mu.Lock()
	if err := s.store.Set(ctx, token); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to store credential: %w", err)
	}
	s.token = token
	s.verified = false
	s.epoch++
	s.notice = nil
	snap := s.snapshotLocked()
	s.broadcastLocked(snap)
	s.mu.Unlock()

	s.log.Infoln("Session started, awaiting verification")
	s.publish(ctx, core.EventLogin)
	return nil
}

// Logout clears the token. Calling it without a token is a no-op.
func (s *State) Logout(ctx context.Context) error {
	ended, err := s.end(ctx, nil, 0)
	if ended {
		s.log.Infoln("Session ended by user")
		s.publish(ctx, core.EventLogout)
	}
	return err
}

// Invalidate ends a session whose token the server refused during
// verification. The resulting state is the same as Logout.
func (s *State) Invalidate(ctx context.Context) error {
	_, err := s.invalidate(ctx, 0)
	return err
}

// MarkVerified records that the server accepted the current token.
// Without a token it does nothing.
func (s *State) MarkVerified(ctx context.Context) {
	s.markVerified(ctx, 0)
}

// invalidate is Invalidate restricted to the session of epoch. It reports
// false when that session had already ended.
func (s *State) invalidate(ctx context.Context, epoch uint64) (bool, error) {
	ended, err := s.end(ctx, &core.Notice{
		Kind:    core.NoticeSessionInvalid,
		Message: "Your saved session is no longer valid. Please log in again.",
	}, epoch)
	if ended {
		s.log.Warnln("Session invalidated by server")
		s.publish(ctx, core.EventInvalidated)
	}
	return ended, err
}

// markVerified is MarkVerified restricted to the session of epoch.
// It reports whether that session is now verified.
func (s *State) markVerified(ctx context.Context, epoch uint64) bool {
	s.mu.Lock()
	if s.token == "" || (epoch != 0 && s.epoch != epoch) {
		s.mu.Unlock()
		return false
	}
	if s.verified {
		s.mu.Unlock()
		return true
	}
	s.verified = true
	snap := s.snapshotLocked()
	s.broadcastLocked(snap)
	s.mu.Unlock()

	s.log.Debugln("Session verified")
	s.publish(ctx, core.EventVerified)
	return true
}

// Reload re-reads the credential store. A token changed by another process
// starts a new unverified session.
func (s *State) Reload(ctx context.Context) error {
	token, err := readToken(ctx, s.store)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token == s.token {
		return nil
	}
	s.token = token
	s.verified = false
	s.epoch++
	s.broadcastLocked(s.snapshotLocked())
	return nil
}

// TakeNotice returns the pending notice once
func (s *State) TakeNotice() (core.Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notice == nil {
		return core.Notice{}, false
	}
	n := *s.notice
	s.notice = nil
	return n, true
}

// Subscribe delivers the latest snapshot after every change. Slow readers
// only ever see the most recent value. Call cancel to stop.
func (s *State) Subscribe() (<-chan core.Snapshot, func()) {
	ch := make(chan core.Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *State) broadcastLocked(snap core.Snapshot) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// current returns the token together with the epoch it belongs to
func (s *State) current() (core.Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), s.epoch
}

// rotate replaces the token after a refresh, keeping the verified flag.
// It is ignored if the session it was started for has ended.
func (s *State) rotate(ctx context.Context, epoch uint64, token string) error {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return core.ErrSessionExpired
	}
	if err := s.store.Set(ctx, token); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to store credential: %w", err)
	}
	s.token = token
	snap := s.snapshotLocked()
	s.broadcastLocked(snap)
	s.mu.Unlock()

	s.log.Debugln("Session token refreshed")
	s.publish(ctx, core.EventRefreshed)
	return nil
}

// expire forces the session back to anonymous after an unrecoverable
// rejection. It reports false when the session of epoch had already ended.
func (s *State) expire(ctx context.Context, epoch uint64) (bool, error) {
	ended, err := s.end(ctx, &core.Notice{
		Kind:    core.NoticeSessionExpired,
		Message: "Your session has expired. Please log in again.",
	}, epoch)
	if ended {
		s.log.Warnln("Session expired")
		s.publish(ctx, core.EventExpired)
	}
	return ended, err
}

// end clears the session. A non-zero epoch restricts it to that session.
// In-memory state is reset even when the store fails to clear.
func (s *State) end(ctx context.Context, notice *core.Notice, epoch uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || (epoch != 0 && s.epoch != epoch) {
		return false, nil
	}

	err := s.store.Clear(ctx)
	s.token = ""
	s.verified = false
	s.epoch++
	if notice != nil {
		notice.At = s.now()
		s.notice = notice
	}
	s.broadcastLocked(s.snapshotLocked())

	if err != nil {
		return true, fmt.Errorf("failed to clear credential: %w", err)
	}
	return true, nil
}

func (s *State) publish(ctx context.Context, kind core.EventKind) {
	event := core.Event{ID: uuid.New().String(), Kind: kind, At: s.now().UTC()}
	if err := s.events.Publish(ctx, event); err != nil {
		// The transition already happened; a lost event is only logged
		s.log.WithError(err).WithField("kind", kind).Warnln("Failed to publish session event")
	}
}
