// Command peer is a reference Go peer for the rendezvous coordinator. It
// creates or joins a session, negotiates a WebRTC data channel through the
// signaling API and exchanges one text message with the other side.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/client"
	"github.com/dkeye/rendezvous/internal/domain"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	server := pflag.String("server", "http://localhost:8080", "coordinator base URL")
	sessionID := pflag.String("session", "", "session id to create or join")
	token := pflag.StringP("token", "t", "", "session token shared by both peers (generated if empty)")
	name := pflag.String("name", "gopher", "display name")
	message := pflag.String("message", "hello from Go", "text sent over the data channel")
	stun := pflag.StringSlice("stun", nil, "STUN server URLs")
	timeout := pflag.Duration("timeout", 2*time.Minute, "give up after this long")
	pflag.Parse()

	if *sessionID == "" {
		log.Fatal().Msg("--session is required")
	}
	if *token == "" {
		*token = uuid.NewString()
		log.Info().Str("token", *token).Msg("generated token, pass it to the other peer")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	if err := run(ctx, client.New(*server), domain.SessionID(*sessionID), *token, *name, *message, *stun); err != nil {
		log.Fatal().Err(err).Msg("rendezvous failed")
	}
}

func run(ctx context.Context, c *client.Client, id domain.SessionID, token, name, message string, stun []string) error {
	sess, err := c.Join(ctx, id, token, name)
	if err != nil {
		return err
	}
	log.Info().Str("session", string(id)).Str("role", sess.Role.String()).Msg("joined")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := sess.RunKeepAlive(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("keep-alive stopped")
			cancel()
		}
	}()

	conn, err := rtc.NewConnection(rtc.DefaultWebRTCConfig(stun...), id, sess.Role)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Candidates are trickled in gathering order by a single sender.
	outgoing := make(chan webrtc.ICECandidateInit, 64)
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		select {
		case outgoing <- ci:
		case <-ctx.Done():
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ci := <-outgoing:
				if _, err := sess.PublishCandidates(ctx, []domain.ICECandidate{ci}); err != nil {
					log.Warn().Err(err).Msg("publish candidate")
				}
			}
		}
	}()

	received := make(chan string, 1)
	conn.OnOpen(func(dc *webrtc.DataChannel) {
		if err := dc.SendText(message); err != nil {
			log.Error().Err(err).Msg("send message")
		}
	})
	conn.OnMessage(func(text string) {
		select {
		case received <- text:
		default:
		}
	})

	if err := negotiate(ctx, sess, conn, name); err != nil {
		return err
	}
	go pullCandidates(ctx, sess, conn)

	select {
	case text := <-received:
		log.Info().Str("message", text).Msg("received from peer")
	case <-conn.Done():
		return errors.New("peer connection closed before a message arrived")
	case <-ctx.Done():
		return ctx.Err()
	}

	if sess.Role == domain.RoleInitiator {
		// Give the joiner a moment to read our message before tearing down.
		time.Sleep(time.Second)
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer leaveCancel()
		if err := sess.Leave(leaveCtx); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

func negotiate(ctx context.Context, sess *client.Session, conn *rtc.Connection, name string) error {
	if sess.Role == domain.RoleInitiator {
		offer, err := conn.CreateOffer()
		if err != nil {
			return err
		}
		if err := sess.PublishDescription(ctx, name, offer); err != nil {
			return err
		}
		answer, err := sess.WaitDescription(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("peer", answer.Name).Msg("answer received")
		return conn.AcceptAnswer(answer.Description)
	}

	offer, err := sess.WaitDescription(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("peer", offer.Name).Msg("offer received")
	answer, err := conn.AcceptOffer(offer.Description)
	if err != nil {
		return err
	}
	return sess.PublishDescription(ctx, name, answer)
}

func pullCandidates(ctx context.Context, sess *client.Session, conn *rtc.Connection) {
	since := 0
	for ctx.Err() == nil {
		candidates, err := sess.WaitCandidates(ctx, since)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("fetch candidates")
			}
			return
		}
		for _, ci := range candidates {
			if err := conn.AddICECandidate(ci); err != nil {
				log.Warn().Err(err).Msg("add remote candidate")
			}
		}
		since += len(candidates)
	}
}
