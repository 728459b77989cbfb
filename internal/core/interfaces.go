package core

import (
	"time"

	"github.com/dkeye/rendezvous/internal/domain"
)

// Clock abstracts time so expiry can be driven deterministically in tests.
//
//go:generate mockgen -destination=mocks/mock_clock.go -package=mocks github.com/dkeye/rendezvous/internal/core Clock
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// SessionStore is the only owner of session memory. Every operation re-fetches
// the session by id under the store's lock; callers never retain the live
// record, only snapshots.
type SessionStore interface {
	// CreateOrJoin creates the session with the caller as initiator, or
	// admits the caller as joiner. Role assignment is atomic with creation.
	CreateOrJoin(id domain.SessionID, token, name string) (domain.Admission, error)
	// Get returns a snapshot of the session.
	Get(id domain.SessionID) (*domain.Session, error)
	// Delete removes the session if token matches.
	Delete(id domain.SessionID, token string) (*domain.Session, error)
	// Update runs fn on the live session under its lock after the token check.
	Update(id domain.SessionID, token string, fn func(*domain.Session) error) error
	// View is Update for read-only callers.
	View(id domain.SessionID, token string, fn func(*domain.Session) error) error
	// Sweep removes sessions idle longer than idle or older than maxAge
	// (maxAge <= 0 disables the age cap) and returns their final snapshots.
	Sweep(now time.Time, idle, maxAge time.Duration) []*domain.Session
	// List returns snapshots of all live sessions.
	List() []domain.Info
	// Open returns ids of sessions still waiting for a joiner.
	Open() []domain.SessionID
	Len() int
}

// Validator checks peer-supplied signaling payloads before they are stored.
type Validator interface {
	ValidateDescription(role domain.Role, sdp string) error
	ValidateCandidate(c domain.ICECandidate) error
}
