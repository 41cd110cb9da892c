package session

import (
	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

type Phase string

const (
	PhaseLobby              Phase = "lobby"
	PhaseConnecting         Phase = "connecting"
	PhaseCreating           Phase = "creating"
	PhaseJoining            Phase = "joining"
	PhaseWaitingForOpponent Phase = "waiting_for_opponent"
	PhaseReady              Phase = "ready"
	PhasePlaying            Phase = "playing"
	PhaseFinished           Phase = "finished"
	PhaseDisconnected       Phase = "disconnected"
	PhaseError              Phase = "error"
)

// establishing reports whether p is one of the phases before the link is up.
func (p Phase) establishing() bool {
	switch p {
	case PhaseConnecting, PhaseCreating, PhaseJoining, PhaseWaitingForOpponent:
		return true
	}
	return false
}

// InGame reports whether a board is being played or was just finished.
func (p Phase) InGame() bool {
	return p == PhasePlaying || p == PhaseFinished
}

// Terminal phases only leave through ReturnToLobby.
func (p Phase) Terminal() bool {
	return p == PhaseDisconnected || p == PhaseError
}

// Snapshot is a copy of every session field, safe to keep and read from any
// goroutine.
type Snapshot struct {
	Phase         Phase
	Kind          transport.Kind
	IsHost        bool
	LocalPlayer   domain.PlayerID
	Board         domain.Board
	CurrentPlayer domain.PlayerID
	Result        domain.Result
	// Animating is the cell of a move accepted but not yet committed.
	Animating *domain.Cell
	// Token is the value to hand to the opponent out of band: the offer or
	// game id for the host, the answer for a peer guest.
	Token     string
	LastError string
}

// MyTurn reports whether the local player may move now.
func (s Snapshot) MyTurn() bool {
	return s.Phase == PhasePlaying && s.Animating == nil && s.CurrentPlayer == s.LocalPlayer
}

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrDiverged means the two boards can no longer be reconciled.
	ErrDiverged Error = "game state diverged from opponent"
)
