package http

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	clientIDKey     = "client_id"
	requestIDHeader = "X-Request-ID"
)

// Probe and scrape endpoints are hit constantly and never logged.
var quietPaths = map[string]struct{}{
	"/alive":   {},
	"/ready":   {},
	"/metrics": {},
}

// Probes carries the liveness and readiness flags served on /alive and /ready.
type Probes struct {
	Alive atomic.Bool
	Ready atomic.Bool
}

// RequestLogger attaches a request-scoped zerolog logger to the request
// context and logs each request once it completes. Query strings carry
// tokens and are never logged.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, quiet := quietPaths[path]; quiet {
			c.Next()
			return
		}

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := log.With().Str("module", "adapters.http").Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			ev = logger.Error()
		case c.Request.Method == http.MethodGet:
			ev = logger.Debug()
		default:
			ev = logger.Info()
		}
		ev.Str("client_ip", c.ClientIP()).
			Str("client", c.GetString(clientIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// ClientIdentity keeps a stable per-browser id in the signed session cookie so
// the two halves of a rendezvous can be told apart in logs.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, _ := session.Get(clientIDKey).(string)
		if id == "" {
			id = uuid.NewString()
			session.Set(clientIDKey, id)
			if err := session.Save(); err != nil {
				zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to save client session")
			}
		}
		c.Set(clientIDKey, id)
		c.Next()
	}
}

// LoopbackOnly rejects requests whose peer address is not a loopback address.
func LoopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			abortWithStatus(c, http.StatusForbidden, CodeForbidden, "Access to admin API is forbidden")
			return
		}
		c.Next()
	}
}
