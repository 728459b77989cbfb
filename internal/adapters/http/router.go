package http

import (
	"net/http"
	"path/filepath"

	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SetupRouter wires the signaling API, probes, metrics and the optional
// static peer UI.
func SetupRouter(cfg *config.Config, o *orch.Orchestrator, probes *Probes, limiter *RateLimiter) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = true
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = false
	r.ForwardedByClientIP = true
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(RequestLogger())
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{orch: o, cfg: cfg, limiter: limiter}

	r.GET("/alive", func(c *gin.Context) { probeStatus(c, probes.Alive.Load()) })
	r.GET("/ready", func(c *gin.Context) { probeStatus(c, probes.Ready.Load()) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticPath, "index.html"))
		})
		log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("serving static peer UI")
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})

	api := r.Group("/")
	api.Use(sessions.Sessions("RendezvousClient", store), ClientIdentity())

	api.GET("/random", h.random)

	admin := api.Group("/admin")
	if cfg.AdminLoopbackOnly {
		admin.Use(LoopbackOnly())
	}
	admin.GET("/sessions", h.listSessions)

	s := api.Group("/sessions")
	s.POST("/:id", h.createOrPublish)
	s.GET("/:id", h.sessionInfo)
	s.PATCH("/:id", h.keepAlive)
	s.DELETE("/:id", h.deleteSession)
	s.GET("/:id/:slot", h.fetchDescription)
	s.POST("/:id/:slot", h.publishCandidates)
	s.GET("/:id/:slot/ice_candidates", h.fetchCandidates)

	return r
}

func probeStatus(c *gin.Context, ok bool) {
	if ok {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
}
