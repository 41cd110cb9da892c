// Package relay is the hosted transport: both players read and write one
// shared record on relayd and follow its change stream. The host creates
// the record and shares its id; the guest joins with that id.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/protocol"
	relaysvc "github.com/iamasit07/connect4-remote/internal/service/relay"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

const writeTimeout = 10 * time.Second

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Validate reports a missing relay URL or API key, with what to set.
func (c Config) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "RELAY_URL")
	}
	if c.APIKey == "" {
		missing = append(missing, "RELAY_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s (see .env.example) to enable relay games",
			transport.ErrNotConfigured, strings.Join(missing, " and "))
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: RELAY_URL must start with http:// or https://", transport.ErrNotConfigured)
	}
	return nil
}

type Provider struct {
	cfg    Config
	logger zerolog.Logger
}

func NewProvider(cfg Config, logger zerolog.Logger) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{cfg: cfg, logger: logger.With().Str("component", "relay").Logger()}
}

func (p *Provider) Kind() transport.Kind { return transport.KindRelay }

func (p *Provider) Check() error {
	return p.cfg.Validate()
}

func (p *Provider) Open(h transport.Handler) (transport.Transport, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	life, cancel := context.WithCancel(context.Background())
	c := &Conn{
		api:     &api{base: p.cfg.BaseURL, key: p.cfg.APIKey, client: p.cfg.HTTPClient},
		handler: h,
		logger:  p.logger,
		events:  make(chan func(), 64),
		writes:  make(chan func(), 8),
		done:    make(chan struct{}),
		life:    life,
		cancel:  cancel,
		written: make(map[int64]struct{}),
	}
	go c.pump()
	go c.writer()
	return c, nil
}

// Conn follows one relay record.
type Conn struct {
	api     *api
	handler transport.Handler
	logger  zerolog.Logger
	events  chan func()
	writes  chan func()
	done    chan struct{}
	life    context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	gameID    string
	isHost    bool
	version   int64
	// versions produced by our own writes
	written   map[int64]struct{}
	ws        *websocket.Conn
	connected bool
	ended     bool
	closed    bool
}

func (c *Conn) Kind() transport.Kind { return transport.KindRelay }

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

// writer runs record writes one at a time so they reach relayd in the
// order they were sent.
func (c *Conn) writer() {
	for {
		select {
		case fn := <-c.writes:
			fn()
		case <-c.done:
			return
		}
	}
}

// State converts a record into the message the session adopts.
func State(g *relaysvc.Game) protocol.State {
	st := protocol.State{
		Board:         g.Board,
		CurrentPlayer: g.Turn,
		LastMove:      g.LastMove,
		Version:       g.Version,
	}
	if g.Winner != nil {
		w := *g.Winner
		st.Winner = &w
	}
	if !st.CurrentPlayer.Valid() {
		st.CurrentPlayer = domain.Player1
	}
	return st
}

// adopt records g as seen and returns whether it is newer than anything
// delivered so far.
func (c *Conn) adopt(g *relaysvc.Game) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || g.Version <= c.version {
		return false
	}
	c.version = g.Version
	return true
}

func (c *Conn) deliver(g *relaysvc.Game) {
	if c.adopt(g) {
		st := State(g)
		c.post(func() { c.handler.OnMessage(st) })
	}
}

func (c *Conn) InitiateSession(ctx context.Context) (string, error) {
	g, err := c.api.create(ctx)
	if err != nil {
		return "", transport.Fail("create", err)
	}
	c.mu.Lock()
	c.gameID = g.ID
	c.isHost = true
	c.version = g.Version
	c.mu.Unlock()

	if err := c.follow(ctx, g.ID); err != nil {
		return "", transport.Fail("subscribe", err)
	}
	c.logger.Info().Str("game", g.ID).Msg("game created")
	return g.ID, nil
}

func (c *Conn) JoinSession(ctx context.Context, token string) (string, error) {
	id := strings.TrimSpace(token)
	if id == "" {
		return "", transport.Fail("join", transport.ErrSessionNotFound)
	}
	c.mu.Lock()
	c.gameID = id
	c.mu.Unlock()

	// subscribe first so nothing written after the join is missed
	if err := c.follow(ctx, id); err != nil {
		return "", transport.Fail("join", err)
	}
	g, err := c.api.join(ctx, id)
	if errors.Is(err, transport.ErrConflict) {
		err = transport.ErrSessionFull
	}
	if err != nil {
		return "", transport.Fail("join", err)
	}

	c.deliver(g)
	c.markConnected()
	c.logger.Info().Str("game", id).Msg("joined game")
	return "", nil
}

// CompleteSession has nothing to do: the relay handshake is one step.
func (c *Conn) CompleteSession(ctx context.Context, reply string) error {
	return nil
}

func (c *Conn) markConnected() {
	c.mu.Lock()
	if c.connected || c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = true
	c.mu.Unlock()
	c.post(c.handler.OnConnected)
}

// follow opens the change stream and reads it until the transport is torn
// down or the stream breaks.
func (c *Conn) follow(ctx context.Context, id string) error {
	ws, err := c.api.subscribe(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return transport.ErrClosed
	}
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		var ev relaysvc.Event
		if err := ws.ReadJSON(&ev); err != nil {
			c.streamLost(err)
			return
		}
		switch ev.Type {
		case relaysvc.EventUpdate, relaysvc.EventInsert:
			if ev.New == nil {
				continue
			}
			c.deliver(ev.New)
			c.mu.Lock()
			host := c.isHost
			c.mu.Unlock()
			if host && ev.New.Status == relaysvc.StatusPlaying {
				c.markConnected()
			}
		case relaysvc.EventDelete:
			c.logger.Info().Msg("game deleted on relay")
			c.streamLost(nil)
			return
		}
	}
}

// streamLost ends the link once: a disconnect if the game had started, an
// error otherwise.
func (c *Conn) streamLost(err error) {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	wasConnected := c.connected
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("subscription lost")
	}
	if wasConnected {
		c.post(c.handler.OnDisconnected)
		return
	}
	if err == nil {
		err = transport.ErrSessionNotFound
	}
	c.post(func() { c.handler.OnError(transport.Fail("subscribe", err)) })
}

// Send turns State and Reset into record writes. Move and Ready have no
// meaning on the relay and are refused.
func (c *Conn) Send(msg protocol.Message) bool {
	c.mu.Lock()
	usable := c.connected && !c.ended && !c.closed && c.gameID != ""
	id := c.gameID
	c.mu.Unlock()
	if !usable {
		return false
	}

	var write func(ctx context.Context) (*relaysvc.Game, error)
	switch m := msg.(type) {
	case protocol.State:
		seen := m.Version
		if seen == 0 {
			c.mu.Lock()
			seen = c.version
			c.mu.Unlock()
		}
		write = func(ctx context.Context) (*relaysvc.Game, error) {
			return c.api.update(ctx, id, relaysvc.Update{
				Board:    m.Board,
				Turn:     m.CurrentPlayer,
				Winner:   m.Winner,
				LastMove: m.LastMove,
				Version:  c.baseFor(seen),
			})
		}
	case protocol.Reset:
		write = func(ctx context.Context) (*relaysvc.Game, error) {
			return c.api.reset(ctx, id)
		}
	default:
		return false
	}

	op := func() {
		ctx, cancel := context.WithTimeout(c.life, writeTimeout)
		defer cancel()
		g, err := write(ctx)
		if err == nil {
			c.wrote(g.Version)
			c.deliver(g)
			return
		}
		c.writeFailed(ctx, id, err)
	}
	select {
	case c.writes <- op:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn().Msg("write queue full")
		return false
	}
}

// baseFor returns the version a write built on seen must expect. Versions
// that came from our own earlier writes are stepped over, so a reset
// followed by a move does not conflict with itself.
func (c *Conn) baseFor(seen int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := seen
	for {
		if _, ok := c.written[base+1]; !ok {
			break
		}
		base++
	}
	for v := range c.written {
		if v <= base {
			delete(c.written, v)
		}
	}
	return base
}

func (c *Conn) wrote(version int64) {
	c.mu.Lock()
	c.written[version] = struct{}{}
	c.mu.Unlock()
}

// writeFailed reports a rejected write. On a version conflict the record is
// re-read so the session adopts whatever won.
func (c *Conn) writeFailed(ctx context.Context, id string, err error) {
	c.logger.Warn().Err(err).Str("game", id).Msg("write failed")
	if errors.Is(err, transport.ErrConflict) {
		if g, gerr := c.api.get(ctx, id); gerr == nil {
			c.deliver(g)
		}
	}
	wrapped := fmt.Errorf("%w: %w", transport.ErrSendFailed, err)
	c.post(func() { c.handler.OnError(transport.Fail("update", wrapped)) })
}

func (c *Conn) Teardown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return ws.Close()
	}
	return nil
}
