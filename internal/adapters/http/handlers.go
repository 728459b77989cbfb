package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type handlers struct {
	orch    *orch.Orchestrator
	cfg     *config.Config
	limiter *RateLimiter
}

// DescriptionBody is one side's SDP as posted by a peer.
type DescriptionBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SessionRequest is the body of POST /sessions/:id. Without offer or answer
// it is a create-or-join request; with one of them it publishes a description.
type SessionRequest struct {
	Token  string           `json:"token"`
	Name   string           `json:"name"`
	Offer  *DescriptionBody `json:"offer,omitempty"`
	Answer *DescriptionBody `json:"answer,omitempty"`
}

// JoinResponse tells the caller which role it got. The HTTP status (201 for
// the initiator, 200 for the joiner) carries the same information.
type JoinResponse struct {
	Role                domain.Role `json:"role"`
	Slot                string      `json:"slot"`
	PeerSlot            string      `json:"peer_slot"`
	Session             domain.Info `json:"session"`
	KeepAliveIntervalMS int64       `json:"keepalive_interval_ms"`
}

// CandidatesBody is the body of POST /sessions/:id/:slot.
type CandidatesBody struct {
	ICECandidates []domain.ICECandidate `json:"ice_candidates"`
}

func sessionID(c *gin.Context) domain.SessionID {
	return domain.SessionID(c.Param("id"))
}

func slotRole(c *gin.Context) (domain.Role, error) {
	return domain.RoleForSlot(c.Param("slot"))
}

func (h *handlers) createOrPublish(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: failed to unmarshal request: %v", domain.ErrInvalidArgument, err))
		return
	}
	switch {
	case req.Offer != nil && req.Answer != nil:
		abortWithError(c, fmt.Errorf("%w: both offer and answer in one request", domain.ErrInvalidArgument))
	case req.Offer != nil:
		h.publishDescription(c, domain.RoleInitiator, req.Offer)
	case req.Answer != nil:
		h.publishDescription(c, domain.RoleJoiner, req.Answer)
	default:
		h.createOrJoin(c, req)
	}
}

func (h *handlers) createOrJoin(c *gin.Context, req SessionRequest) {
	if !h.limiter.Allow(c.ClientIP()) {
		metrics.RateLimited.Inc()
		abortWithStatus(c, http.StatusTooManyRequests, CodeRateLimited, "Too many create or join attempts")
		return
	}
	token := req.Token
	if token == "" {
		token = c.Query("token")
	}
	id := sessionID(c)
	adm, err := h.orch.Join(id, token, req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	zerolog.Ctx(c.Request.Context()).Info().
		Str("session", string(id)).
		Str("role", adm.Role.String()).
		Str("client", c.GetString(clientIDKey)).
		Msg("admitted")
	c.JSON(adm.Role.Status(), JoinResponse{
		Role:                adm.Role,
		Slot:                adm.Role.Slot(),
		PeerSlot:            adm.Role.Peer().Slot(),
		Session:             adm.Session.Info(),
		KeepAliveIntervalMS: h.cfg.KeepAliveInterval.Milliseconds(),
	})
}

func (h *handlers) publishDescription(c *gin.Context, role domain.Role, body *DescriptionBody) {
	err := h.orch.PublishDescription(sessionID(c), c.Query("token"), role, body.Name, body.Description)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *handlers) sessionInfo(c *gin.Context) {
	info, err := h.orch.Info(sessionID(c), c.Query("token"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handlers) keepAlive(c *gin.Context) {
	if err := h.orch.KeepAlive(sessionID(c), c.Query("token")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *handlers) deleteSession(c *gin.Context) {
	if err := h.orch.Leave(sessionID(c), c.Query("token")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// fetchDescription serves GET /sessions/:id/:slot, where slot names the
// description wanted. The caller is therefore the slot's peer role.
func (h *handlers) fetchDescription(c *gin.Context) {
	want, err := slotRole(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	desc, err := h.orch.FetchDescription(sessionID(c), c.Query("token"), want.Peer())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

// publishCandidates serves POST /sessions/:id/:slot, where slot is the
// caller's own description kind.
func (h *handlers) publishCandidates(c *gin.Context) {
	role, err := slotRole(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var body CandidatesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, fmt.Errorf("%w: failed to extract ICE candidates from request body: %v", domain.ErrInvalidArgument, err))
		return
	}
	total, err := h.orch.PublishCandidates(sessionID(c), c.Query("token"), role, body.ICECandidates)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total})
}

func (h *handlers) fetchCandidates(c *gin.Context) {
	want, err := slotRole(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	since := 0
	if raw := c.Query("since"); raw != "" {
		if since, err = strconv.Atoi(raw); err != nil {
			abortWithError(c, fmt.Errorf("%w: invalid since %q", domain.ErrInvalidArgument, raw))
			return
		}
	}
	candidates, err := h.orch.FetchCandidates(sessionID(c), c.Query("token"), want.Peer(), since)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

func (h *handlers) random(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	id, err := h.orch.Random()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *handlers) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.orch.List()})
}
