// Package peer is the direct transport: a WebRTC data channel between the
// two players, negotiated by copying an offer token to the guest and an
// answer token back to the host. No server is involved once the tokens
// have been exchanged.
package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/protocol"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

type Provider struct {
	cfg    Config
	logger zerolog.Logger
}

func NewProvider(cfg Config, logger zerolog.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		logger: logger.With().Str("component", "peer").Logger(),
	}
}

func (p *Provider) Kind() transport.Kind { return transport.KindPeer }

func (p *Provider) Check() error {
	return p.cfg.Validate()
}

func (p *Provider) Open(h transport.Handler) (transport.Transport, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	return newConn(p.cfg, h, p.logger)
}

// Conn is one peer connection attempt. Handler calls are made from a
// dedicated goroutine, one at a time, in the order the events happened.
type Conn struct {
	cfg     Config
	pc      *webrtc.PeerConnection
	handler transport.Handler
	logger  zerolog.Logger
	events  chan func()
	done    chan struct{}

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	connected bool
	ended     bool
	closed    bool
	recvSeq   uint64

	sendMu  sync.Mutex
	sendSeq uint64
}

func newConn(cfg Config, h transport.Handler, logger zerolog.Logger) (*Conn, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.iceServers()})
	if err != nil {
		return nil, transport.Fail("open", fmt.Errorf("%w: %v", transport.ErrNegotiation, err))
	}
	c := &Conn{
		cfg:     cfg,
		pc:      pc,
		handler: h,
		logger:  logger,
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
	}

	pc.OnConnectionStateChange(c.connectionState)
	// the guest learns about the channel from the host
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != cfg.label() {
			c.logger.Warn().Str("label", dc.Label()).Msg("ignoring unexpected data channel")
			return
		}
		c.bindChannel(dc)
	})

	go c.pump()
	return c, nil
}

func (c *Conn) Kind() transport.Kind { return transport.KindPeer }

func (c *Conn) pump() {
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Conn) post(fn func()) {
	select {
	case <-c.done:
	case c.events <- fn:
	}
}

func (c *Conn) bindChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		c.connected = true
		c.mu.Unlock()
		c.logger.Info().Msg("data channel open")
		c.post(c.handler.OnConnected)
	})
	dc.OnClose(c.linkLost)
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		c.receive(m.Data)
	})
}

// linkLost reports the end of the link once. Before the channel opened it
// is a failed negotiation, afterwards a disconnect.
// connectionState ends the link on failed or closed. Disconnected is left
// alone since ICE may still recover from it.
func (c *Conn) connectionState(state webrtc.PeerConnectionState) {
	c.logger.Debug().Str("state", state.String()).Msg("peer connection state")
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		c.linkLost()
	}
}

func (c *Conn) linkLost() {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	wasConnected := c.connected
	c.mu.Unlock()

	if wasConnected {
		c.post(c.handler.OnDisconnected)
		return
	}
	c.post(func() {
		c.handler.OnError(transport.Fail("connect", transport.ErrNegotiation))
	})
}

func (c *Conn) receive(data []byte) {
	seq, msg, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping undecodable message")
		c.post(func() { c.handler.OnError(transport.Fail("receive", err)) })
		return
	}

	c.mu.Lock()
	last := c.recvSeq
	if seq <= last {
		c.mu.Unlock()
		c.logger.Debug().Uint64("seq", seq).Msg("dropping duplicate")
		return
	}
	c.recvSeq = seq
	c.mu.Unlock()

	if seq != last+1 {
		gap := fmt.Errorf("%w: expected %d, got %d", transport.ErrOutOfOrder, last+1, seq)
		c.post(func() { c.handler.OnError(transport.Fail("receive", gap)) })
		return
	}
	c.post(func() { c.handler.OnMessage(msg) })
}

// awaitLocal waits for ICE gathering so the token carries every candidate.
func (c *Conn) awaitLocal(ctx context.Context, op string, gathered <-chan struct{}) (string, error) {
	select {
	case <-ctx.Done():
		return "", transport.Fail(op, ctx.Err())
	case <-c.done:
		return "", transport.Fail(op, transport.ErrClosed)
	case <-gathered:
	}
	desc := c.pc.LocalDescription()
	if desc == nil {
		return "", transport.Fail(op, transport.ErrNegotiation)
	}
	token, err := EncodeToken(*desc)
	if err != nil {
		return "", transport.Fail(op, err)
	}
	return token, nil
}

func negotiation(op string, err error) error {
	return transport.Fail(op, fmt.Errorf("%w: %v", transport.ErrNegotiation, err))
}

func (c *Conn) InitiateSession(ctx context.Context) (string, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(c.cfg.label(), &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return "", negotiation("initiate", err)
	}
	c.bindChannel(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", negotiation("initiate", err)
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", negotiation("initiate", err)
	}
	return c.awaitLocal(ctx, "initiate", gathered)
}

func (c *Conn) JoinSession(ctx context.Context, token string) (string, error) {
	offer, err := DecodeToken(token, webrtc.SDPTypeOffer)
	if err != nil {
		return "", transport.Fail("join", err)
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return "", negotiation("join", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", negotiation("join", err)
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", negotiation("join", err)
	}
	return c.awaitLocal(ctx, "join", gathered)
}

func (c *Conn) CompleteSession(ctx context.Context, reply string) error {
	answer, err := DecodeToken(reply, webrtc.SDPTypeAnswer)
	if err != nil {
		return transport.Fail("complete", err)
	}
	if err := ctx.Err(); err != nil {
		return transport.Fail("complete", err)
	}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return negotiation("complete", err)
	}
	return nil
}

func (c *Conn) Send(msg protocol.Message) bool {
	c.mu.Lock()
	dc := c.dc
	usable := dc != nil && c.connected && !c.ended && !c.closed
	c.mu.Unlock()
	if !usable || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return false
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	b, err := protocol.EncodeEnvelope(c.sendSeq+1, msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode failed")
		return false
	}
	if err := dc.SendText(string(b)); err != nil {
		c.logger.Warn().Err(err).Msg("send failed")
		c.post(func() {
			c.handler.OnError(transport.Fail("send", fmt.Errorf("%w: %v", transport.ErrSendFailed, err)))
		})
		return false
	}
	c.sendSeq++
	return true
}

func (c *Conn) Teardown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dc := c.dc
	c.mu.Unlock()
	close(c.done)

	if dc != nil {
		_ = dc.Close()
	}
	if err := c.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}
