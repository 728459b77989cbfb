// Package client speaks the rendezvous wire protocol from the peer side.
// Waiting for the other peer is done by polling with exponential backoff; the
// server never holds a request open.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rendezvous/internal/domain"
)

// Client is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	backoff func() backoff.BackOff
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackoff replaces the polling policy used by the Wait* calls.
func WithBackoff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.backoff = fn }
}

func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 3 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		backoff: DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is the caller's handle on one rendezvous.
type Session struct {
	c                 *Client
	ID                domain.SessionID
	Token             string
	Role              domain.Role
	KeepAliveInterval time.Duration
}

type joinRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type joinResponse struct {
	Role                string `json:"role"`
	KeepAliveIntervalMS int64  `json:"keepalive_interval_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var codeErrors = map[string]error{
	"not_found":        domain.ErrNotFound,
	"unauthorized":     domain.ErrUnauthorized,
	"session_full":     domain.ErrSessionFull,
	"not_ready":        domain.ErrNotReady,
	"conflict":         domain.ErrConflict,
	"invalid_argument": domain.ErrInvalidArgument,
}

// ErrRateLimited is returned when the server throttles create-or-join.
var ErrRateLimited = errors.New("rate limited")

// Join creates the session or joins it. The returned role decides who offers.
func (c *Client) Join(ctx context.Context, id domain.SessionID, token, name string) (*Session, error) {
	var resp joinResponse
	status, err := c.do(ctx, http.MethodPost, c.sessionPath(id), nil, joinRequest{Token: token, Name: name}, &resp)
	if err != nil {
		return nil, err
	}
	role := domain.RoleJoiner
	if resp.Role == domain.RoleInitiator.String() || (resp.Role == "" && status == http.StatusCreated) {
		role = domain.RoleInitiator
	}
	return &Session{
		c:                 c,
		ID:                id,
		Token:             token,
		Role:              role,
		KeepAliveInterval: time.Duration(resp.KeepAliveIntervalMS) * time.Millisecond,
	}, nil
}

func (c *Client) sessionPath(id domain.SessionID, parts ...string) string {
	p := "/sessions/" + url.PathEscape(string(id))
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (s *Session) query(extra ...string) url.Values {
	q := url.Values{"token": {s.Token}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

func (s *Session) KeepAlive(ctx context.Context) error {
	_, err := s.c.do(ctx, http.MethodPatch, s.c.sessionPath(s.ID), s.query(), struct{}{}, nil)
	return err
}

// RunKeepAlive sends keep-alives until ctx is done or three in a row fail,
// mirroring the browser client.
func (s *Session) RunKeepAlive(ctx context.Context) error {
	interval := s.KeepAliveInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.KeepAlive(ctx); err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) {
					return err
				}
				failures++
				log.Warn().Str("module", "client").Err(err).Int("failures", failures).Msg("keep-alive failed")
				if failures >= 3 {
					return fmt.Errorf("keep-alive: %w", err)
				}
				continue
			}
			failures = 0
		}
	}
}

func (s *Session) PublishDescription(ctx context.Context, name, sdp string) error {
	body := map[string]any{s.Role.Slot(): map[string]string{"name": name, "description": sdp}}
	_, err := s.c.do(ctx, http.MethodPost, s.c.sessionPath(s.ID), s.query(), body, nil)
	return err
}

// PeerDescription is the other peer's published SDP.
type PeerDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FetchDescription makes a single attempt; domain.ErrNotReady means poll again.
func (s *Session) FetchDescription(ctx context.Context) (PeerDescription, error) {
	var out PeerDescription
	_, err := s.c.do(ctx, http.MethodGet, s.c.sessionPath(s.ID, s.Role.Peer().Slot()), s.query(), nil, &out)
	return out, err
}

// WaitDescription polls until the peer's description is available.
func (s *Session) WaitDescription(ctx context.Context) (PeerDescription, error) {
	var out PeerDescription
	err := s.poll(ctx, func() error {
		var err error
		out, err = s.FetchDescription(ctx)
		return err
	})
	return out, err
}

func (s *Session) PublishCandidates(ctx context.Context, candidates []domain.ICECandidate) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	body := map[string]any{"ice_candidates": candidates}
	_, err := s.c.do(ctx, http.MethodPost, s.c.sessionPath(s.ID, s.Role.Slot()), s.query(), body, &resp)
	return resp.Count, err
}

// FetchCandidates returns the peer's candidates from index since onwards.
func (s *Session) FetchCandidates(ctx context.Context, since int) ([]domain.ICECandidate, error) {
	var out []domain.ICECandidate
	q := s.query("since", strconv.Itoa(since))
	_, err := s.c.do(ctx, http.MethodGet, s.c.sessionPath(s.ID, s.Role.Peer().Slot(), "ice_candidates"), q, nil, &out)
	return out, err
}

// WaitCandidates polls until the peer has published at least one candidate
// beyond since.
func (s *Session) WaitCandidates(ctx context.Context, since int) ([]domain.ICECandidate, error) {
	var out []domain.ICECandidate
	err := s.poll(ctx, func() error {
		var err error
		out, err = s.FetchCandidates(ctx, since)
		if err == nil && len(out) == 0 {
			return domain.ErrNotReady
		}
		return err
	})
	return out, err
}

func (s *Session) Leave(ctx context.Context) error {
	_, err := s.c.do(ctx, http.MethodDelete, s.c.sessionPath(s.ID), s.query(), nil, nil)
	return err
}

// poll retries op while it reports domain.ErrNotReady.
func (s *Session) poll(ctx context.Context, op func() error) error {
	b := backoff.WithContext(s.c.backoff(), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrNotReady) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, next time.Duration) {
		log.Debug().Str("module", "client").Str("session", string(s.ID)).Dur("next", next).Msg("peer not ready")
	})
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (int, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

const maxErrorBody = 512

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == "" {
		// Not ours, most likely a proxy page.
		e.Error = strings.TrimSpace(string(raw))
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, e.Error)
	}
	if sentinel, ok := codeErrors[e.Code]; ok {
		return fmt.Errorf("%w: %s", sentinel, e.Error)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, e.Error)
}
