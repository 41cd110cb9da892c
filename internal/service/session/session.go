// Package session is the synchronization state machine for one remote
// game. It takes user intents and transport events, validates them against
// the rules engine and the turn order, and keeps the local view of the
// shared game consistent with the opponent's.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/protocol"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

const (
	DefaultMoveDelay      = 300 * time.Millisecond
	DefaultConnectTimeout = 30 * time.Second
)

type Options struct {
	// MoveDelay separates accepting a move from committing it so the drop
	// animation can play. Zero commits immediately.
	MoveDelay time.Duration
	// ConnectTimeout bounds each connection establishment step.
	ConnectTimeout time.Duration
	// OnChange receives a snapshot after every transition, in order. It must
	// not call mutating Session methods synchronously.
	OnChange func(Snapshot)
	Logger   *zerolog.Logger
}

// Session owns the transport for its current connection attempt and every
// piece of game state. All events run to completion under mu.
type Session struct {
	provider transport.Provider
	opts     Options
	logger   zerolog.Logger

	// configErr is set when the provider is misconfigured; the session then
	// stays in PhaseError.
	configErr error

	mu     sync.Mutex
	emitMu sync.Mutex

	phase         Phase
	isHost        bool
	localPlayer   domain.PlayerID
	board         domain.Board
	currentPlayer domain.PlayerID
	result        domain.Result
	token         string
	lastError     string
	version       int64

	tr            transport.Transport
	gen           uint64
	cancelConnect context.CancelFunc
	connectTimer  *time.Timer
	pending       *pendingMove
}

type pendingMove struct {
	board  domain.Board
	cell   domain.Cell
	player domain.PlayerID
	result domain.Result
	timer  *time.Timer
}

func New(provider transport.Provider, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MoveDelay < 0 {
		opts.MoveDelay = 0
	}
	logger := log.With().Str("component", "session").Str("transport", string(provider.Kind())).Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "session").Logger()
	}

	s := &Session{
		provider: provider,
		opts:     opts,
		logger:   logger,
	}
	s.resetLocked()

	if err := provider.Check(); err != nil {
		s.configErr = err
		s.phase = PhaseError
		s.lastError = err.Error()
		s.logger.Error().Err(err).Msg("multiplayer disabled")
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:         s.phase,
		Kind:          s.provider.Kind(),
		IsHost:        s.isHost,
		LocalPlayer:   s.localPlayer,
		Board:         s.board,
		CurrentPlayer: s.currentPlayer,
		Result:        s.result,
		Token:         s.token,
		LastError:     s.lastError,
	}
	if len(s.result.Cells) > 0 {
		snap.Result.Cells = append([]domain.Cell(nil), s.result.Cells...)
	}
	if s.pending != nil {
		cell := s.pending.cell
		snap.Animating = &cell
	}
	return snap
}

// update runs fn under the session lock and, when fn reports a change,
// publishes the resulting snapshot. Snapshots are published in the order
// the changes happened.
func (s *Session) update(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return false
	}
	snap := s.snapshotLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}
	s.emitMu.Unlock()
	return true
}

// resetLocked restores every field to its lobby value. It does not touch
// the transport.
func (s *Session) resetLocked() {
	s.phase = PhaseLobby
	s.isHost = false
	s.localPlayer = domain.Empty
	s.board = domain.NewBoard()
	s.currentPlayer = domain.Player1
	s.result = domain.Result{}
	s.token = ""
	s.lastError = ""
	s.version = 0
	s.stopPendingLocked()
	s.stopConnectTimerLocked()
}

// detachLocked disowns the current transport and cancels any in-flight
// connection step. The caller must tear the returned transport down after
// releasing the lock.
func (s *Session) detachLocked() transport.Transport {
	if s.cancelConnect != nil {
		s.cancelConnect()
		s.cancelConnect = nil
	}
	s.stopConnectTimerLocked()
	tr := s.tr
	s.tr = nil
	s.gen++
	return tr
}

func (s *Session) teardown(tr transport.Transport) {
	if tr == nil {
		return
	}
	if err := tr.Teardown(); err != nil {
		s.logger.Warn().Err(err).Msg("transport teardown failed")
	}
}

// ReturnToLobby abandons whatever is in progress, releases the transport
// and clears all session state.
func (s *Session) ReturnToLobby() {
	var tr transport.Transport
	s.update(func() bool {
		tr = s.detachLocked()
		s.resetLocked()
		if s.configErr != nil {
			s.phase = PhaseError
			s.lastError = s.configErr.Error()
		}
		return true
	})
	s.teardown(tr)
}

// Close releases the transport. The session must not be used afterwards.
func (s *Session) Close() {
	s.ReturnToLobby()
}

// open creates a transport bound to a fresh generation. Events from older
// transports are ignored from then on.
func (s *Session) openLocked() (transport.Transport, uint64, error) {
	s.gen++
	gen := s.gen
	tr, err := s.provider.Open(binding{s: s, gen: gen})
	if err != nil {
		return nil, 0, err
	}
	s.tr = tr
	return tr, gen, nil
}

func (s *Session) connectContextLocked() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ConnectTimeout)
	s.cancelConnect = cancel
	return ctx
}

func (s *Session) relay() bool {
	return s.provider.Kind() == transport.KindRelay
}

// failConnectLocked handles an establishment failure: the user sees why,
// and the session goes back to the lobby (peer) or into PhaseError (relay).
func (s *Session) failConnectLocked(what string, err error) transport.Transport {
	s.logger.Warn().Err(err).Str("step", what).Msg("connection failed")
	tr := s.detachLocked()
	s.resetLocked()
	s.lastError = fmt.Sprintf("%s: %v", what, err)
	if s.relay() {
		s.phase = PhaseError
	}
	return tr
}

// CreateRoom starts hosting a game. It returns immediately; the token to
// share appears in a later snapshot.
func (s *Session) CreateRoom() bool {
	var stale transport.Transport
	ok := s.update(func() bool {
		if s.phase != PhaseLobby {
			return false
		}
		s.lastError = ""
		tr, gen, err := s.openLocked()
		if err != nil {
			stale = s.failConnectLocked("could not create the game", err)
			return true
		}
		s.isHost = true
		s.localPlayer = domain.Player1
		s.phase = PhaseConnecting
		if s.relay() {
			s.phase = PhaseCreating
		}
		ctx := s.connectContextLocked()
		go func() {
			token, err := tr.InitiateSession(ctx)
			s.onInitiated(gen, token, err)
		}()
		s.logger.Info().Msg("creating game")
		return true
	})
	s.teardown(stale)
	return ok
}

func (s *Session) onInitiated(gen uint64, token string, err error) {
	var stale transport.Transport
	s.update(func() bool {
		if gen != s.gen {
			return false
		}
		if s.cancelConnect != nil {
			s.cancelConnect()
			s.cancelConnect = nil
		}
		if err != nil {
			stale = s.failConnectLocked("could not create the game", err)
			return true
		}
		s.token = token
		if s.phase == PhaseConnecting || s.phase == PhaseCreating {
			s.phase = PhaseWaitingForOpponent
		}
		s.logger.Info().Msg("waiting for opponent")
		return true
	})
	s.teardown(stale)
}

// CompleteConnection hands the guest's answer to the peer transport. Only
// the peer host needs it.
func (s *Session) CompleteConnection(answer string) bool {
	return s.update(func() bool {
		if s.phase != PhaseWaitingForOpponent || !s.isHost || s.relay() || s.tr == nil {
			return false
		}
		tr, gen := s.tr, s.gen
		s.phase = PhaseConnecting
		ctx := s.connectContextLocked()
		s.connectTimer = time.AfterFunc(s.opts.ConnectTimeout, func() {
			s.onConnectTimeout(gen)
		})
		go func() {
			err := tr.CompleteSession(ctx, answer)
			s.onCompleted(gen, err)
		}()
		return true
	})
}

func (s *Session) onCompleted(gen uint64, err error) {
	if err == nil {
		return
	}
	var stale transport.Transport
	s.update(func() bool {
		if gen != s.gen {
			return false
		}
		stale = s.failConnectLocked("could not complete the connection", err)
		return true
	})
	s.teardown(stale)
}

func (s *Session) onConnectTimeout(gen uint64) {
	var stale transport.Transport
	s.update(func() bool {
		if gen != s.gen || !s.phase.establishing() {
			return false
		}
		stale = s.failConnectLocked("could not connect", transport.Fail("connect", transport.ErrTimeout))
		return true
	})
	s.teardown(stale)
}

func (s *Session) stopConnectTimerLocked() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
}

// JoinRoom joins the game identified by token as the second player.
func (s *Session) JoinRoom(token string) bool {
	var stale transport.Transport
	ok := s.update(func() bool {
		if s.phase != PhaseLobby {
			return false
		}
		s.lastError = ""
		tr, gen, err := s.openLocked()
		if err != nil {
			stale = s.failConnectLocked("could not join the game", err)
			return true
		}
		s.isHost = false
		s.localPlayer = domain.Player2
		s.phase = PhaseConnecting
		if s.relay() {
			s.phase = PhaseJoining
		}
		ctx := s.connectContextLocked()
		go func() {
			reply, err := tr.JoinSession(ctx, token)
			s.onJoined(gen, reply, err)
		}()
		s.logger.Info().Msg("joining game")
		return true
	})
	s.teardown(stale)
	return ok
}

func (s *Session) onJoined(gen uint64, reply string, err error) {
	var stale transport.Transport
	s.update(func() bool {
		if gen != s.gen {
			return false
		}
		if s.cancelConnect != nil {
			s.cancelConnect()
			s.cancelConnect = nil
		}
		if err != nil {
			msg := "could not join the game"
			if s.relay() {
				msg = "could not join the game, check the game id"
			}
			stale = s.failConnectLocked(msg, err)
			return true
		}
		if reply == "" {
			return false
		}
		s.token = reply
		return true
	})
	s.teardown(stale)
}

// StartGame is the peer host's explicit go signal.
func (s *Session) StartGame() bool {
	return s.update(func() bool {
		if s.phase != PhaseReady || !s.isHost || s.tr == nil {
			return false
		}
		if !s.tr.Send(protocol.Ready{}) {
			return false
		}
		s.tr.Send(s.stateLocked())
		s.phase = PhasePlaying
		s.logger.Info().Msg("game started")
		return true
	})
}

func (s *Session) stateLocked() protocol.State {
	st := protocol.State{
		Board:         s.board,
		CurrentPlayer: s.currentPlayer,
		Version:       s.version,
	}
	switch s.result.Outcome {
	case domain.OutcomeWin:
		st.Winner = protocol.Won(s.result.Winner)
	case domain.OutcomeDraw:
		st.Winner = protocol.Draw()
	}
	return st
}

// MakeMove plays column for the local player. Moves out of turn, into a
// full or unknown column, or while the previous move is still animating
// are ignored and report false.
func (s *Session) MakeMove(column int) bool {
	return s.update(func() bool {
		if s.phase != PhasePlaying || s.pending != nil || s.tr == nil ||
			s.currentPlayer != s.localPlayer || !domain.IsValidMove(s.board, column) {
			return false
		}

		next, row, err := domain.ApplyMove(s.board, column, s.localPlayer)
		if err != nil {
			s.divergeLocked(err)
			return true
		}
		cell := domain.Cell{Row: row, Column: column}
		result := domain.Evaluate(next, row, column, s.localPlayer)

		var msg protocol.Message = protocol.Move{Column: column, Player: s.localPlayer}
		if s.relay() {
			st := protocol.State{
				Board:         next,
				CurrentPlayer: domain.Other(s.localPlayer),
				LastMove:      &cell,
				Version:       s.version,
			}
			switch result.Outcome {
			case domain.OutcomeWin:
				st.CurrentPlayer = s.localPlayer
				st.Winner = protocol.Won(s.localPlayer)
			case domain.OutcomeDraw:
				st.Winner = protocol.Draw()
			}
			msg = st
		}
		if !s.tr.Send(msg) {
			return false
		}

		s.scheduleLocked(&pendingMove{board: next, cell: cell, player: s.localPlayer, result: result})
		return true
	})
}

// scheduleLocked commits p after the move delay.
func (s *Session) scheduleLocked(p *pendingMove) {
	s.pending = p
	if s.opts.MoveDelay <= 0 {
		s.commitLocked()
		return
	}
	gen := s.gen
	p.timer = time.AfterFunc(s.opts.MoveDelay, func() {
		s.update(func() bool {
			if gen != s.gen || s.pending != p {
				return false
			}
			s.commitLocked()
			return true
		})
	})
}

// commitLocked applies the pending move: board, turn and result change
// together.
func (s *Session) commitLocked() {
	p := s.pending
	if p == nil {
		return
	}
	s.stopPendingLocked()
	s.board = p.board
	if p.result.Terminal() {
		s.result = p.result
		s.phase = PhaseFinished
		s.logger.Info().Int("winner", int(p.result.Winner)).Msg("game finished")
		return
	}
	s.currentPlayer = domain.Other(p.player)
}

func (s *Session) stopPendingLocked() {
	if s.pending == nil {
		return
	}
	if s.pending.timer != nil {
		s.pending.timer.Stop()
	}
	s.pending = nil
}

// Reset clears the board for a new game. Only the host may reset.
func (s *Session) Reset() bool {
	return s.update(func() bool {
		if !s.phase.InGame() || !s.isHost || s.tr == nil {
			return false
		}
		if !s.tr.Send(protocol.Reset{}) {
			return false
		}
		s.clearBoardLocked()
		s.logger.Info().Msg("game reset")
		return true
	})
}

func (s *Session) clearBoardLocked() {
	s.stopPendingLocked()
	s.board = domain.NewBoard()
	s.currentPlayer = domain.Player1
	s.result = domain.Result{}
	s.phase = PhasePlaying
}

func (s *Session) divergeLocked(err error) {
	s.stopPendingLocked()
	s.phase = PhaseError
	s.lastError = fmt.Sprintf("%v: %v", ErrDiverged, err)
	s.logger.Error().Err(err).Msg("boards diverged")
}

func (s *Session) onConnected(gen uint64) {
	s.update(func() bool {
		if gen != s.gen {
			return false
		}
		s.stopConnectTimerLocked()
		if s.relay() {
			switch s.phase {
			case PhaseCreating, PhaseWaitingForOpponent, PhaseJoining:
				s.token = s.tokenForRelayLocked()
				s.phase = PhasePlaying
				if s.result.Terminal() {
					s.phase = PhaseFinished
				}
				s.logger.Info().Msg("opponent connected")
				return true
			}
			return false
		}
		if !s.phase.establishing() {
			return false
		}
		s.token = ""
		s.phase = PhaseReady
		s.logger.Info().Msg("peer connected")
		return true
	})
}

// the relay game id stays visible to the host during play
func (s *Session) tokenForRelayLocked() string {
	if s.isHost {
		return s.token
	}
	return ""
}

func (s *Session) onDisconnected(gen uint64) {
	s.update(func() bool {
		if gen != s.gen || s.phase == PhaseLobby || s.phase.Terminal() {
			return false
		}
		s.commitLocked()
		s.stopConnectTimerLocked()
		s.phase = PhaseDisconnected
		s.lastError = "opponent disconnected"
		s.logger.Info().Msg("transport disconnected")
		return true
	})
}

func (s *Session) onError(gen uint64, err error) {
	var stale transport.Transport
	s.update(func() bool {
		if gen != s.gen {
			return false
		}
		if errors.Is(err, transport.ErrSendFailed) {
			s.lastError = err.Error()
			s.logger.Warn().Err(err).Msg("write failed")
			return true
		}
		if s.phase == PhaseLobby || s.phase.Terminal() {
			return false
		}
		if s.phase.establishing() && !s.relay() {
			stale = s.failConnectLocked("connection error", err)
			return true
		}
		s.commitLocked()
		s.stopConnectTimerLocked()
		s.phase = PhaseError
		s.lastError = fmt.Sprintf("connection error: %v", err)
		s.logger.Error().Err(err).Msg("transport error")
		return true
	})
	s.teardown(stale)
}

func (s *Session) onMessage(gen uint64, msg protocol.Message) {
	s.update(func() bool {
		if gen != s.gen || s.phase == PhaseLobby || s.phase.Terminal() {
			return false
		}
		// the board must reflect our own accepted move before anything else
		s.commitLocked()

		switch m := msg.(type) {
		case protocol.Move:
			s.remoteMoveLocked(m)
		case protocol.State:
			s.adoptLocked(m)
		case protocol.Reset:
			if s.phase != PhaseReady && !s.phase.InGame() {
				return false
			}
			s.clearBoardLocked()
		case protocol.Ready:
			if s.phase != PhaseReady {
				return false
			}
			s.phase = PhasePlaying
		default:
			s.logger.Warn().Str("type", string(msg.Type())).Msg("unhandled message")
			return false
		}
		return true
	})
}

// remoteMoveLocked runs an opponent's move through the same pipeline as a
// local one. An illegal move means the boards no longer agree.
func (s *Session) remoteMoveLocked(m protocol.Move) {
	if s.phase != PhasePlaying {
		s.divergeLocked(fmt.Errorf("move received while %s", s.phase))
		return
	}
	if m.Player == s.localPlayer || m.Player != s.currentPlayer {
		s.divergeLocked(fmt.Errorf("player %d moved out of turn", m.Player))
		return
	}
	next, row, err := domain.ApplyMove(s.board, m.Column, m.Player)
	if err != nil {
		s.divergeLocked(fmt.Errorf("column %d: %w", m.Column, err))
		return
	}
	s.scheduleLocked(&pendingMove{
		board:  next,
		cell:   domain.Cell{Row: row, Column: m.Column},
		player: m.Player,
		result: domain.Evaluate(next, row, m.Column, m.Player),
	})
}

// adoptLocked takes an authoritative snapshot verbatim.
func (s *Session) adoptLocked(st protocol.State) {
	s.board = st.Board
	s.currentPlayer = st.CurrentPlayer
	s.version = st.Version

	switch {
	case st.Winner == nil && domain.IsBoardFull(st.Board):
		s.result = domain.Result{Outcome: domain.OutcomeDraw}
	case st.Winner == nil:
		s.result = domain.Result{}
	case *st.Winner == domain.Empty:
		s.result = domain.Result{Outcome: domain.OutcomeDraw}
	default:
		s.result = domain.Result{Outcome: domain.OutcomeWin, Winner: *st.Winner}
		if st.LastMove != nil {
			s.result.Cells = domain.WinningCells(st.Board, st.LastMove.Row, st.LastMove.Column, *st.Winner)
		}
	}

	if s.phase.InGame() {
		s.phase = PhasePlaying
		if s.result.Terminal() {
			s.phase = PhaseFinished
		}
	}
}

// binding routes transport events into the session, tagged with the
// generation of the transport that produced them.
type binding struct {
	s   *Session
	gen uint64
}

func (b binding) OnConnected()                   { b.s.onConnected(b.gen) }
func (b binding) OnDisconnected()                { b.s.onDisconnected(b.gen) }
func (b binding) OnMessage(msg protocol.Message) { b.s.onMessage(b.gen, msg) }
func (b binding) OnError(err error)              { b.s.onError(b.gen, err) }
