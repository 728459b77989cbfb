package domain

import (
	"fmt"
	"net/http"
)

// Role is the fixed position of a participant in a session.
// The initiator always offers, the joiner always answers.
type Role int

const (
	RoleInitiator Role = iota
	RoleJoiner
)

// Wire names of the description slots.
const (
	SlotOffer  = "offer"
	SlotAnswer = "answer"
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleJoiner:
		return "joiner"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Slot is the description kind this role produces.
func (r Role) Slot() string {
	if r == RoleJoiner {
		return SlotAnswer
	}
	return SlotOffer
}

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleJoiner {
		return RoleInitiator
	}
	return RoleJoiner
}

// Status is the legacy HTTP status that encoded the role before the explicit
// role field existed: 201 for the creator, 200 for the joiner.
func (r Role) Status() int {
	if r == RoleInitiator {
		return http.StatusCreated
	}
	return http.StatusOK
}

// RoleForSlot maps "offer" / "answer" to the role that produces it.
func RoleForSlot(slot string) (Role, error) {
	switch slot {
	case SlotOffer:
		return RoleInitiator, nil
	case SlotAnswer:
		return RoleJoiner, nil
	}
	return 0, fmt.Errorf("%w: invalid SDP type %q", ErrInvalidArgument, slot)
}
