// Package domain contains the session entities and their invariants, without
// locking or transport concerns.
package domain

import (
	"fmt"
	"time"
)

type SessionID string

type State int

const (
	StateAwaitingJoiner State = iota
	StateAwaitingAnswer
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingJoiner:
		return "awaiting_joiner"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Session is the rendezvous record of two peers.
type Session struct {
	ID              SessionID
	Token           string
	CreatedAt       time.Time
	LastKeepAliveAt time.Time
	Initiator       *Peer
	Joiner          *Peer
	Closed          bool
}

// NewSession builds a session with the creator already in the initiator slot.
func NewSession(id SessionID, token, name string, now time.Time) *Session {
	return &Session{
		ID:              id,
		Token:           token,
		CreatedAt:       now,
		LastKeepAliveAt: now,
		Initiator:       &Peer{Name: name, JoinedAt: now},
	}
}

func (s *Session) State() State {
	switch {
	case s.Closed:
		return StateClosed
	case s.Joiner == nil:
		return StateAwaitingJoiner
	case s.Initiator.HasDescription() && s.Joiner.HasDescription():
		return StateActive
	default:
		return StateAwaitingAnswer
	}
}

// Peer returns the record for role, nil if nobody holds it yet.
func (s *Session) Peer(r Role) *Peer {
	if r == RoleJoiner {
		return s.Joiner
	}
	return s.Initiator
}

// Clone returns a deep copy safe to hand out of the store.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Initiator = s.Initiator.clone()
	cp.Joiner = s.Joiner.clone()
	return &cp
}

// Info is the read-only view of a session for APIs (no token, no SDP bodies).
type Info struct {
	ID                  SessionID `json:"id"`
	State               State     `json:"state"`
	CreatedAt           time.Time `json:"created_at"`
	LastKeepAliveAt     time.Time `json:"last_keepalive_at"`
	Initiator           *Peer     `json:"initiator,omitempty"`
	Joiner              *Peer     `json:"joiner,omitempty"`
	InitiatorCandidates int       `json:"initiator_candidates"`
	JoinerCandidates    int       `json:"joiner_candidates"`
}

func (s *Session) Info() Info {
	info := Info{
		ID:              s.ID,
		State:           s.State(),
		CreatedAt:       s.CreatedAt,
		LastKeepAliveAt: s.LastKeepAliveAt,
		Initiator:       s.Initiator.clone(),
		Joiner:          s.Joiner.clone(),
	}
	if s.Initiator != nil {
		info.InitiatorCandidates = len(s.Initiator.Candidates)
	}
	if s.Joiner != nil {
		info.JoinerCandidates = len(s.Joiner.Candidates)
	}
	return info
}

// Admission is the outcome of a create-or-join call.
type Admission struct {
	Role    Role
	Session *Session
}
