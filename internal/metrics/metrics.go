package metrics

import (
	"errors"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rendezvous_sessions_active",
		Help: "The current number of live signaling sessions.",
	})
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_sessions_created_total",
		Help: "The total number of sessions created by an initiator.",
	})
	SessionsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_sessions_joined_total",
		Help: "The total number of sessions a joiner entered.",
	})
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rendezvous_sessions_closed_total",
		Help: "The total number of sessions removed, by reason.",
	}, []string{"reason"})
	SignalingOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rendezvous_signaling_operations_total",
		Help: "The total number of signaling operations, by operation and result.",
	}, []string{"op", "result"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_rate_limited_total",
		Help: "The total number of create-or-join requests rejected by the rate limiter.",
	})
)

// Operation labels.
const (
	OpJoin              = "join"
	OpKeepAlive         = "keepalive"
	OpPublishDesc       = "publish_description"
	OpFetchDesc         = "fetch_description"
	OpPublishCandidates = "publish_candidates"
	OpFetchCandidates   = "fetch_candidates"
	OpLeave             = "leave"
)

// Result maps an operation error onto a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrSessionFull):
		return "session_full"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	}
	return "error"
}

// Observe counts one operation outcome.
func Observe(op string, err error) {
	SignalingOps.WithLabelValues(op, Result(err)).Inc()
}
