package rtc

import (
	"context"
	"errors"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const dataChannelLabel = "rendezvous"

// Connection is the peer side of a rendezvous: a PeerConnection carrying one
// data channel. The initiator opens the channel and offers; the joiner answers.
type Connection struct {
	pc   *webrtc.PeerConnection
	role domain.Role
	sid  domain.SessionID

	onICE     func(webrtc.ICECandidateInit)
	onMessage func(string)
	onOpen    func(*webrtc.DataChannel)

	closed context.Context
	cancel context.CancelFunc
}

func DefaultWebRTCConfig(stunURLs ...string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

func NewConnection(cfg webrtc.Configuration, sid domain.SessionID, role domain.Role) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{pc: pc, role: role, sid: sid, closed: ctx, cancel: cancel}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("session", string(sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.bind(dc)
	})
	return c, nil
}

func (c *Connection) bind(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		log.Info().Str("module", "webrtc").Str("session", string(c.sid)).Str("label", dc.Label()).Msg("data channel open")
		if c.onOpen != nil {
			c.onOpen(dc)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.onMessage != nil {
			c.onMessage(string(msg.Data))
		}
	})
}

// OnICECandidate sets the callback for locally gathered candidates.
func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnMessage sets the callback for text received on the data channel.
func (c *Connection) OnMessage(fn func(string)) { c.onMessage = fn }

// OnOpen sets the callback run once the data channel is usable.
func (c *Connection) OnOpen(fn func(*webrtc.DataChannel)) { c.onOpen = fn }

// Done is closed once the peer connection failed or was closed.
func (c *Connection) Done() <-chan struct{} { return c.closed.Done() }

// CreateOffer opens the data channel and returns the local offer SDP.
func (c *Connection) CreateOffer() (string, error) {
	if c.role != domain.RoleInitiator {
		return "", errors.New("only the initiator offers")
	}
	dc, err := c.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return "", err
	}
	c.bind(dc)
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// AcceptOffer applies the remote offer and returns the local answer SDP.
func (c *Connection) AcceptOffer(sdp string) (string, error) {
	if c.role != domain.RoleJoiner {
		return "", errors.New("only the joiner answers")
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// AcceptAnswer applies the joiner's answer on the initiator side.
func (c *Connection) AcceptAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) Close() {
	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("session", string(c.sid)).Msg("close error")
		return
	}
	log.Info().Str("module", "webrtc").Str("session", string(c.sid)).Msg("closed")
}
