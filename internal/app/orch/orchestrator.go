package orch

import (
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
)

// Orchestrator is the signaling exchange: it moves descriptions and ICE
// candidates between the two roles of a session. It keeps no state of its own;
// every call goes through the store.
type Orchestrator struct {
	Store     core.SessionStore
	Clock     core.Clock
	Validator core.Validator
	// MaxCandidates caps the candidates kept per role; 0 means unlimited.
	MaxCandidates int
}

func (o *Orchestrator) clock() core.Clock {
	if o.Clock == nil {
		return core.RealClock{}
	}
	return o.Clock
}

// SessionExpired is the monitor hook keeping metrics in line with sweeps.
func (o *Orchestrator) SessionExpired(_ *domain.Session, reason string) {
	metrics.SessionsClosed.WithLabelValues(reason).Inc()
	metrics.SessionsActive.Set(float64(o.Store.Len()))
}
