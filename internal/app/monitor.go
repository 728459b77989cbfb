package app

import (
	"context"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// MonitorConfig holds the liveness thresholds.
type MonitorConfig struct {
	Interval         time.Duration
	KeepAliveTimeout time.Duration
	MaxAge           time.Duration
}

// Monitor periodically removes sessions that stopped sending keep-alives or
// outlived the age cap. Removal needs no token; the peers find out through
// NotFound on their next call.
type Monitor struct {
	store     core.SessionStore
	clock     core.Clock
	cfg       MonitorConfig
	onExpired func(s *domain.Session, reason string)
}

func NewMonitor(store core.SessionStore, clock core.Clock, cfg MonitorConfig) *Monitor {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Monitor{store: store, clock: clock, cfg: cfg}
}

// OnExpired registers a hook called for each swept session.
func (m *Monitor) OnExpired(fn func(s *domain.Session, reason string)) { m.onExpired = fn }

// Sweep runs one pass and returns how many sessions were removed.
func (m *Monitor) Sweep() int {
	now := m.clock.Now()
	expired := m.store.Sweep(now, m.cfg.KeepAliveTimeout, m.cfg.MaxAge)
	for _, s := range expired {
		reason := ReasonKeepAlive
		if m.cfg.MaxAge > 0 && now.Sub(s.CreatedAt) > m.cfg.MaxAge {
			reason = ReasonMaxAge
		}
		log.Warn().
			Str("module", "app.monitor").
			Str("session", string(s.ID)).
			Str("reason", reason).
			Dur("idle", now.Sub(s.LastKeepAliveAt)).
			Msg("session expired")
		if m.onExpired != nil {
			m.onExpired(s, reason)
		}
	}
	return len(expired)
}

const (
	ReasonKeepAlive = "keepalive_timeout"
	ReasonMaxAge    = "max_age"
)

// Run sweeps on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	log.Info().
		Str("module", "app.monitor").
		Dur("interval", m.cfg.Interval).
		Dur("keepalive_timeout", m.cfg.KeepAliveTimeout).
		Dur("max_age", m.cfg.MaxAge).
		Msg("liveness monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.monitor").Msg("liveness monitor stopped")
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}
