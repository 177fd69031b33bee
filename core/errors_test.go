package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusErrorMatchesAuthRejectedOnlyFor401(t *testing.T) {
	unauthorized := &StatusError{Method: http.MethodGet, URL: "/api/hello", StatusCode: http.StatusUnauthorized}
	forbidden := &StatusError{Method: http.MethodGet, URL: "/api/hello", StatusCode: http.StatusForbidden}

	assert.ErrorIs(t, unauthorized, ErrAuthRejected)
	assert.NotErrorIs(t, forbidden, ErrAuthRejected)

	wrapped := fmt.Errorf("%w: %w", ErrSessionExpired, unauthorized)
	assert.ErrorIs(t, wrapped, ErrAuthRejected)
	assert.ErrorIs(t, wrapped, ErrSessionExpired)

	var statusErr *StatusError
	assert.True(t, errors.As(wrapped, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "GET /api/hello: 401 Unauthorized", unauthorized.Error())
}

func TestSnapshotPhase(t *testing.T) {
	tests := []struct {
		name          string
		snapshot      Snapshot
		phase         Phase
		authenticated bool
	}{
		{name: "no token", snapshot: Snapshot{}, phase: PhaseAnonymous},
		{name: "verified without token", snapshot: Snapshot{Verified: true}, phase: PhaseAnonymous},
		{name: "unverified token", snapshot: Snapshot{Token: "abc"}, phase: PhasePendingVerification},
		{name: "verified token", snapshot: Snapshot{Token: "abc", Verified: true}, phase: PhaseVerified, authenticated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.phase, tt.snapshot.Phase())
			assert.Equal(t, tt.authenticated, tt.snapshot.Authenticated())
		})
	}
}
