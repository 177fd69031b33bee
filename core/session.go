package core

import "time"

// Phase is the authentication phase derived from a Snapshot
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhasePendingVerification
	PhaseVerified
)

func (p Phase) String() string {
	switch p {
	case PhasePendingVerification:
		return "pending-verification"
	case PhaseVerified:
		return "verified"
	default:
		return "anonymous"
	}
}

// Snapshot is a consistent read of the client session
type Snapshot struct {
	Token    string
	Verified bool
}

// Phase reports which state of the session lifecycle the snapshot is in
func (s Snapshot) Phase() Phase {
	switch {
	case s.Token == "":
		return PhaseAnonymous
	case s.Verified:
		return PhaseVerified
	default:
		return PhasePendingVerification
	}
}

// Authenticated is true only for a token the server has accepted.
// A stored but unverified token grants nothing.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.Verified
}

// NoticeKind classifies a user-facing notice
type NoticeKind string

const (
	NoticeSessionExpired NoticeKind = "session_expired"
	NoticeSessionInvalid NoticeKind = "session_invalid"
)

// Notice is a one-time message for the user explaining why they were signed out
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// EventKind classifies a session lifecycle event
type EventKind string

const (
	EventLogin       EventKind = "login"
	EventLogout      EventKind = "logout"
	EventInvalidated EventKind = "invalidated"
	EventExpired     EventKind = "expired"
	EventVerified    EventKind = "verified"
	EventRefreshed   EventKind = "refreshed"
	EventRevoked     EventKind = "revoked"
)

// Event records a session lifecycle transition
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	TokenID string    `json:"token_id,omitempty"`
	At      time.Time `json:"at"`
}
