package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/layer-3/portal/adapters/store"
	"github.com/layer-3/portal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantErr  bool
		wantSnap core.Snapshot
		notice   bool
	}{
		{
			name:     "accepted token becomes verified",
			handler:  acceptToken("abc", `{"message":"Hello alice!"}`),
			wantSnap: core.Snapshot{Token: "abc", Verified: true},
		},
		{
			name:    "rejected token is dropped",
			handler: status(http.StatusUnauthorized, `{"detail":"Not authenticated"}`),
			wantErr: true,
			notice:  true,
		},
		{
			name:    "server error is treated as unproven",
			handler: status(http.StatusInternalServerError, `{}`),
			wantErr: true,
			notice:  true,
		},
		{
			name:    "malformed body is treated as unproven",
			handler: status(http.StatusOK, `<html>`),
			wantErr: true,
			notice:  true,
		},
		{
			name:    "empty body is treated as unproven",
			handler: status(http.StatusOK, ``),
			wantErr: true,
			notice:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newAPIServer(t, map[string]http.HandlerFunc{
				"/api/hello":   tt.handler,
				"/api/refresh": status(http.StatusOK, `{"access_token":"xyz"}`),
			})
			state, credentials, _ := newTestState(t, "abc")
			client := newTestClient(t, state, server)

			err := client.Verify(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrVerificationFailed)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.wantSnap, state.Snapshot())
			assert.Equal(t, tt.wantSnap.Token, storedToken(t, credentials))
			assert.Zero(t, server.count("/api/refresh"), "verification never refreshes")
			assert.Equal(t, []string{"Bearer abc"}, server.authHeaders("/api/hello"))

			notice, ok := state.TakeNotice()
			assert.Equal(t, tt.notice, ok)
			if tt.notice {
				assert.Equal(t, core.NoticeSessionInvalid, notice.Kind)
			}
		})
	}
}

func TestVerifyNetworkErrorInvalidatesSession(t *testing.T) {
	server := newAPIServer(t, nil)
	state, credentials, events := newTestState(t, "abc")
	client := newTestClient(t, state, server)
	server.Close()

	err := client.Verify(context.Background())

	assert.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.Equal(t, core.PhaseAnonymous, state.Snapshot().Phase())
	assert.Empty(t, storedToken(t, credentials))
	assert.Contains(t, events.kinds(), core.EventInvalidated)
}

func TestVerifyIsNoopOutsidePendingPhase(t *testing.T) {
	server := newAPIServer(t, map[string]http.HandlerFunc{
		"/api/hello": acceptToken("abc", `{}`),
	})

	anonymous, _, _ := newTestState(t, "")
	require.NoError(t, newTestClient(t, anonymous, server).Verify(context.Background()))

	verified, _ := verifiedState(t, "abc")
	require.NoError(t, newTestClient(t, verified, server).Verify(context.Background()))

	assert.Zero(t, server.count("/api/hello"))
}

func TestVerifyUnlocksGuardedCalls(t *testing.T) {
	ctx := context.Background()
	server := newAPIServer(t, map[string]http.HandlerFunc{
		"/api/hello":   acceptToken("abc", `{"message":"hi"}`),
		"/api/predict": acceptToken("abc", `{"prediction":"sample"}`),
	})
	state, _, _ := newTestState(t, "abc")
	client := newTestClient(t, state, server)

	assert.ErrorIs(t, client.Request(ctx, "/predict", RequestOptions{Method: http.MethodPost}, nil), core.ErrSessionUnverified)

	require.NoError(t, client.Verify(ctx))
	assert.NoError(t, client.Request(ctx, "/predict", RequestOptions{Method: http.MethodPost}, nil))
	assert.Equal(t, 1, server.count("/api/predict"))
}

func TestVerifyResultIsDiscardedAfterLogout(t *testing.T) {
	var state *State
	server := newAPIServer(t, map[string]http.HandlerFunc{
		"/api/hello": func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, state.Logout(context.Background()))
			writeJSON(w, http.StatusOK, `{"message":"late"}`)
		},
	})
	state, _, _ = newTestState(t, "abc")
	client := newTestClient(t, state, server)

	require.NoError(t, client.Verify(context.Background()))
	assert.Equal(t, core.Snapshot{}, state.Snapshot())
}

func TestVerifyUsesConfiguredEndpoint(t *testing.T) {
	server := newAPIServer(t, map[string]http.HandlerFunc{
		"/api/me": acceptToken("abc", `{"username":"alice"}`),
	})
	state, _, _ := newTestState(t, "abc")
	client := newTestClient(t, state, server, WithVerifyEndpoint("/me"))

	require.NoError(t, client.Verify(context.Background()))
	assert.Equal(t, core.PhaseVerified, state.Snapshot().Phase())
}

func TestVerifyOutcomeNeverAppliesToANewLogin(t *testing.T) {
	for name, code := range map[string]int{
		"accepted": http.StatusOK,
		"rejected": http.StatusUnauthorized,
	} {
		t.Run(name, func(t *testing.T) {
			var state *State
			server := newAPIServer(t, map[string]http.HandlerFunc{
				"/api/hello": func(w http.ResponseWriter, r *http.Request) {
					// another login replaces the token under check
					assert.NoError(t, state.Login(context.Background(), "t2"))
					writeJSON(w, code, `{}`)
				},
			})
			var credentials *store.MemoryCredentialStore
			state, credentials, _ = newTestState(t, "abc")
			client := newTestClient(t, state, server)

			require.NoError(t, client.Verify(context.Background()))
			assert.Equal(t, core.Snapshot{Token: "t2"}, state.Snapshot())
			assert.Equal(t, "t2", storedToken(t, credentials))
		})
	}
}

func TestCancelledVerifyLeavesSessionPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newAPIServer(t, map[string]http.HandlerFunc{
		"/api/hello": func(w http.ResponseWriter, r *http.Request) {
			cancel()
			select {
			case <-r.Context().Done():
			case <-time.After(defaultWait):
			}
			writeJSON(w, http.StatusUnauthorized, `{}`)
		},
	})
	state, credentials, events := newTestState(t, "abc")
	client := newTestClient(t, state, server)

	err := client.Verify(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrVerificationFailed)
	assert.Equal(t, core.Snapshot{Token: "abc"}, state.Snapshot())
	assert.Equal(t, "abc", storedToken(t, credentials))
	assert.NotContains(t, events.kinds(), core.EventInvalidated)
}
