package orch

import (
	"fmt"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

// PublishDescription stores the caller's SDP in its role's slot. Re-publishing
// the same SDP is a no-op; a different SDP overwrites until both descriptions
// are present, after which re-negotiation is refused.
func (o *Orchestrator) PublishDescription(id domain.SessionID, token string, role domain.Role, name, sdp string) (err error) {
	defer func() { metrics.Observe(metrics.OpPublishDesc, err) }()

	if sdp == "" {
		return fmt.Errorf("%w: empty %s", domain.ErrInvalidArgument, role.Slot())
	}
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if o.Validator != nil {
		if err := o.Validator.ValidateDescription(role, sdp); err != nil {
			return err
		}
	}

	return o.Store.Update(id, token, func(s *domain.Session) error {
		p := s.Peer(role)
		if p == nil {
			return fmt.Errorf("%w: no %s in session %s", domain.ErrConflict, role, id)
		}
		if p.Description == sdp {
			return nil
		}
		if p.Description != "" && s.State() == domain.StateActive {
			return fmt.Errorf("%w: session %s already active, re-negotiation unsupported", domain.ErrConflict, id)
		}
		p.Description = sdp
		if name != "" {
			p.Name = name
		}
		log.Info().
			Str("module", "orch").
			Str("session", string(id)).
			Str("slot", role.Slot()).
			Str("state", s.State().String()).
			Msg("description published")
		return nil
	})
}

// PeerDescription is the other side's description as returned to a poller.
type PeerDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FetchDescription returns the description published by the caller's peer,
// or ErrNotReady if there is none yet. It never waits.
func (o *Orchestrator) FetchDescription(id domain.SessionID, token string, role domain.Role) (PeerDescription, error) {
	var out PeerDescription
	err := o.Store.View(id, token, func(s *domain.Session) error {
		p := s.Peer(role.Peer())
		if !p.HasDescription() {
			return fmt.Errorf("%w: no %s yet", domain.ErrNotReady, role.Peer().Slot())
		}
		out = PeerDescription{Name: p.Name, Description: p.Description}
		return nil
	})
	metrics.Observe(metrics.OpFetchDesc, err)
	return out, err
}

// PublishCandidates appends the caller's trickled candidates and returns the
// role's total. Empty candidate strings mark end-of-candidates locally and are
// dropped.
func (o *Orchestrator) PublishCandidates(id domain.SessionID, token string, role domain.Role, candidates []domain.ICECandidate) (total int, err error) {
	defer func() { metrics.Observe(metrics.OpPublishCandidates, err) }()

	accepted := make([]domain.ICECandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Candidate == "" {
			continue
		}
		if o.Validator != nil {
			if err := o.Validator.ValidateCandidate(c); err != nil {
				return 0, err
			}
		}
		accepted = append(accepted, c)
	}

	err = o.Store.Update(id, token, func(s *domain.Session) error {
		p := s.Peer(role)
		if p == nil {
			return fmt.Errorf("%w: no %s in session %s", domain.ErrConflict, role, id)
		}
		if o.MaxCandidates > 0 && len(p.Candidates)+len(accepted) > o.MaxCandidates {
			return fmt.Errorf("%w: more than %d candidates for %s", domain.ErrInvalidArgument, o.MaxCandidates, role.Slot())
		}
		p.Candidates = append(p.Candidates, accepted...)
		total = len(p.Candidates)
		return nil
	})
	if err == nil {
		log.Debug().
			Str("module", "orch").
			Str("session", string(id)).
			Str("slot", role.Slot()).
			Int("added", len(accepted)).
			Int("total", total).
			Msg("candidates published")
	}
	return total, err
}

// FetchCandidates returns the peer's accumulated candidates starting at since.
// ErrNotReady means the peer has not published any candidate yet.
func (o *Orchestrator) FetchCandidates(id domain.SessionID, token string, role domain.Role, since int) ([]domain.ICECandidate, error) {
	if since < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", domain.ErrInvalidArgument, since)
	}
	var out []domain.ICECandidate
	err := o.Store.View(id, token, func(s *domain.Session) error {
		p := s.Peer(role.Peer())
		if p == nil || len(p.Candidates) == 0 {
			return fmt.Errorf("%w: no %s candidates yet", domain.ErrNotReady, role.Peer().Slot())
		}
		if since >= len(p.Candidates) {
			out = []domain.ICECandidate{}
			return nil
		}
		out = p.Candidates[since:]
		return nil
	})
	metrics.Observe(metrics.OpFetchCandidates, err)
	return out, err
}
