package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/dkeye/rendezvous/internal/adapters/http"
	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/domain"
)

const (
	offerSDP  = "v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	answerSDP = "v=0\r\no=- 1129837465298374652 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{Mode: "test", Secret: "client-test-secret", KeepAliveInterval: 50 * time.Millisecond}
	o := &orch.Orchestrator{Store: app.NewStore(app.FirstComePolicy{}, nil), Validator: rtc.Validator{}, MaxCandidates: 16}
	srv := httptest.NewServer(httpadapter.SetupRouter(cfg, o, &httpadapter.Probes{}, nil))
	t.Cleanup(srv.Close)

	return New(srv.URL, WithHTTPClient(srv.Client()), WithBackoff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 400)
	}))
}

func candidate(s string) domain.ICECandidate {
	mid := "0"
	idx := uint16(0)
	return domain.ICECandidate{Candidate: s, SDPMid: &mid, SDPMLineIndex: &idx}
}

func TestClient_Rendezvous(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := c.Join(ctx, "room1", "T1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInitiator, alice.Role)
	assert.Equal(t, 50*time.Millisecond, alice.KeepAliveInterval)

	bob, err := c.Join(ctx, "room1", "T1", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleJoiner, bob.Role)

	_, err = bob.FetchDescription(ctx)
	require.ErrorIs(t, err, domain.ErrNotReady)

	offers := make(chan PeerDescription, 1)
	errs := make(chan error, 1)
	go func() {
		d, err := bob.WaitDescription(ctx)
		if err != nil {
			errs <- err
			return
		}
		offers <- d
	}()

	require.NoError(t, alice.PublishDescription(ctx, "alice", offerSDP))
	select {
	case d := <-offers:
		assert.Equal(t, PeerDescription{Name: "alice", Description: offerSDP}, d)
	case err := <-errs:
		t.Fatalf("wait offer: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for offer")
	}

	require.NoError(t, bob.PublishDescription(ctx, "bob", answerSDP))
	answer, err := alice.WaitDescription(ctx)
	require.NoError(t, err)
	assert.Equal(t, answerSDP, answer.Description)

	c1 := candidate("candidate:1 1 udp 2130706431 192.168.1.10 54321 typ host")
	c2 := candidate("candidate:2 1 udp 2130706430 192.168.1.10 54322 typ host")
	n, err := alice.PublishCandidates(ctx, []domain.ICECandidate{c1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = alice.PublishCandidates(ctx, []domain.ICECandidate{c2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := bob.WaitCandidates(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ICECandidate{c1, c2}, got)

	got, err = bob.FetchCandidates(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, alice.KeepAlive(ctx))
	require.NoError(t, alice.Leave(ctx))

	err = bob.KeepAlive(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "room1", "T1", "a")
	require.NoError(t, err)
	_, err = c.Join(ctx, "room1", "T2", "b")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = c.Join(ctx, "room1", "", "b")
	require.NoError(t, err)
	_, err = c.Join(ctx, "room1", "T1", "c")
	assert.ErrorIs(t, err, domain.ErrSessionFull)

	intruder := &Session{c: c, ID: "room1", Token: "T2", Role: domain.RoleJoiner}
	assert.ErrorIs(t, intruder.Leave(ctx), domain.ErrUnauthorized)

	bad := &Session{c: c, ID: "room1", Token: "T1", Role: domain.RoleInitiator}
	assert.ErrorIs(t, bad.PublishDescription(ctx, "a", "not sdp"), domain.ErrInvalidArgument)
}

func TestClient_WaitGivesUp(t *testing.T) {
	c := newTestClient(t)
	c.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	ctx := context.Background()

	s, err := c.Join(ctx, "lonely", "T1", "a")
	require.NoError(t, err)
	_, err = s.WaitDescription(ctx)
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestClient_RunKeepAliveStopsWhenSessionGone(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := c.Join(ctx, "room1", "T1", "a")
	require.NoError(t, err)
	s.KeepAliveInterval = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- s.RunKeepAlive(ctx) }()

	require.NoError(t, s.Leave(ctx))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrNotFound)
	case <-ctx.Done():
		t.Fatal("keep-alive loop did not stop")
	}
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"proxy page", http.StatusBadGateway, "<html>502 Bad Gateway</html>\n", "502 Bad Gateway"},
		{"empty body", http.StatusServiceUnavailable, "", http.StatusText(http.StatusServiceUnavailable)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, WithHTTPClient(srv.Client())).Join(context.Background(), "room1", "T1", "a")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Contains(t, err.Error(), fmt.Sprintf("unexpected status %d", tc.status))
		})
	}
}
