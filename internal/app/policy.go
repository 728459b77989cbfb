package app

import (
	"github.com/dkeye/rendezvous/internal/domain"
)

// RolePolicy decides which role a create-or-join caller receives. It runs
// inside the store's critical section and must not block.
type RolePolicy interface {
	Assign(existing *domain.Session) (domain.Role, error)
}

// FirstComePolicy makes the first caller the initiator, the second the
// joiner, and rejects everyone after that.
type FirstComePolicy struct{}

func (FirstComePolicy) Assign(existing *domain.Session) (domain.Role, error) {
	switch {
	case existing == nil:
		return domain.RoleInitiator, nil
	case existing.Joiner == nil:
		return domain.RoleJoiner, nil
	default:
		return 0, domain.ErrSessionFull
	}
}
