package domain

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	MaxSessionIDLen = 128
	MaxTokenLen     = 256
	MaxNameLen      = 64
)

// ICECandidate is the browser's RTCIceCandidateInit as sent over the wire.
type ICECandidate = webrtc.ICECandidateInit

// Peer is one side of a session. No transport or lifecycle logic here.
type Peer struct {
	Name        string         `json:"name"`
	Description string         `json:"-"`
	Candidates  []ICECandidate `json:"-"`
	JoinedAt    time.Time      `json:"joined_at"`
}

// HasDescription reports whether the peer published its SDP.
func (p *Peer) HasDescription() bool { return p != nil && p.Description != "" }

func (p *Peer) clone() *Peer {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Candidates != nil {
		cp.Candidates = append([]ICECandidate(nil), p.Candidates...)
	}
	return &cp
}

// ValidateName keeps display names printable and short.
func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidArgument, MaxNameLen)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: name contains %q", ErrInvalidArgument, r)
		}
	}
	return nil
}

func ValidateSessionID(id SessionID) error {
	if len(id) == 0 {
		return fmt.Errorf("%w: empty session id", ErrInvalidArgument)
	}
	if len(id) > MaxSessionIDLen {
		return fmt.Errorf("%w: session id longer than %d bytes", ErrInvalidArgument, MaxSessionIDLen)
	}
	for _, r := range id {
		if r == '/' || r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: session id contains %q", ErrInvalidArgument, r)
		}
	}
	return nil
}

func ValidateToken(token string) error {
	if len(token) == 0 {
		return fmt.Errorf("%w: empty token", ErrInvalidArgument)
	}
	if len(token) > MaxTokenLen {
		return fmt.Errorf("%w: token longer than %d bytes", ErrInvalidArgument, MaxTokenLen)
	}
	return nil
}
