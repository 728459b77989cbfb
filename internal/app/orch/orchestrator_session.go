package orch

import (
	"fmt"
	"math/rand"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Join creates the session with the caller as initiator, or admits the caller
// as joiner.
func (o *Orchestrator) Join(id domain.SessionID, token, name string) (domain.Admission, error) {
	adm, err := o.Store.CreateOrJoin(id, token, name)
	metrics.Observe(metrics.OpJoin, err)
	if err != nil {
		return adm, err
	}
	if adm.Role == domain.RoleInitiator {
		metrics.SessionsCreated.Inc()
	} else {
		metrics.SessionsJoined.Inc()
	}
	metrics.SessionsActive.Set(float64(o.Store.Len()))
	return adm, nil
}

// KeepAlive refreshes the session's expiry clock.
func (o *Orchestrator) KeepAlive(id domain.SessionID, token string) error {
	err := o.Store.Update(id, token, func(s *domain.Session) error {
		s.LastKeepAliveAt = o.clock().Now()
		return nil
	})
	metrics.Observe(metrics.OpKeepAlive, err)
	return err
}

// Leave deletes the session on behalf of a participant.
func (o *Orchestrator) Leave(id domain.SessionID, token string) error {
	s, err := o.Store.Delete(id, token)
	metrics.Observe(metrics.OpLeave, err)
	if err != nil {
		return err
	}
	metrics.SessionsClosed.WithLabelValues("deleted").Inc()
	metrics.SessionsActive.Set(float64(o.Store.Len()))
	log.Info().Str("module", "orch").Str("session", string(s.ID)).Str("state", s.State().String()).Msg("session left")
	return nil
}

// Info returns the token-protected view of a session.
func (o *Orchestrator) Info(id domain.SessionID, token string) (domain.Info, error) {
	var info domain.Info
	err := o.Store.View(id, token, func(s *domain.Session) error {
		info = s.Info()
		return nil
	})
	return info, err
}

// List returns every live session, for the admin API.
func (o *Orchestrator) List() []domain.Info {
	return o.Store.List()
}

// Random picks a session still waiting for its joiner.
func (o *Orchestrator) Random() (domain.SessionID, error) {
	open := o.Store.Open()
	if len(open) == 0 {
		return "", fmt.Errorf("%w: no open session", domain.ErrNotFound)
	}
	return open[rand.Intn(len(open))], nil
}
