package protocol

import (
	"github.com/iamasit07/connect4-remote/internal/domain"
)

type Type string

const (
	TypeMove  Type = "move"
	TypeState Type = "state"
	TypeReset Type = "reset"
	TypeReady Type = "ready"
)

// Message is the closed set of messages two sessions exchange. Only the
// types in this package implement it; switch on the concrete type.
type Message interface {
	Type() Type
	isMessage()
}

// Move announces that Player dropped a disk into Column.
type Move struct {
	Column int
	Player domain.PlayerID
}

// State is a full authoritative snapshot. Winner is nil while the game is
// in progress; a pointer to domain.Empty means draw.
type State struct {
	Board         domain.Board
	CurrentPlayer domain.PlayerID
	Winner        *domain.PlayerID
	LastMove      *domain.Cell
	// Version is set by the relay store; zero on the peer link.
	Version int64
}

// Reset tells the other side to clear the board and start over.
type Reset struct{}

// Ready tells the guest that the host started the game.
type Ready struct{}

func (Move) Type() Type  { return TypeMove }
func (State) Type() Type { return TypeState }
func (Reset) Type() Type { return TypeReset }
func (Ready) Type() Type { return TypeReady }

func (Move) isMessage()  {}
func (State) isMessage() {}
func (Reset) isMessage() {}
func (Ready) isMessage() {}

// Draw and Won build the Winner field of a State.
func Draw() *domain.PlayerID {
	p := domain.Empty
	return &p
}

func Won(p domain.PlayerID) *domain.PlayerID {
	return &p
}

// Finished reports whether the snapshot describes a terminal position.
func (s State) Finished() bool {
	return s.Winner != nil
}
