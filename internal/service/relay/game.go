// Package relay is the record service behind relayd: one small mutable
// record per remote game, compare-and-swap updates on a version counter,
// and change notifications fanned out to every subscriber of a game.
package relay

import (
	"fmt"
	"time"

	"github.com/iamasit07/connect4-remote/internal/domain"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
)

// Game is the relay record. Winner is nil while the game is open, 0 for a
// draw, or the winning player.
type Game struct {
	ID        string           `json:"id"`
	Board     domain.Board     `json:"board"`
	Turn      domain.PlayerID  `json:"turn"`
	Winner    *domain.PlayerID `json:"winner"`
	Status    Status           `json:"status"`
	LastMove  *domain.Cell     `json:"last_move,omitempty"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newGame(id string, now time.Time) *Game {
	return &Game{
		ID:        id,
		Board:     domain.NewBoard(),
		Turn:      domain.Player1,
		Status:    StatusWaiting,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	if g.Winner != nil {
		w := *g.Winner
		c.Winner = &w
	}
	if g.LastMove != nil {
		m := *g.LastMove
		c.LastMove = &m
	}
	return &c
}

// Update is a client write. Version is the record version the client last
// saw; the write only lands if the record still has it.
type Update struct {
	Board    domain.Board     `json:"board"`
	Turn     domain.PlayerID  `json:"turn"`
	Winner   *domain.PlayerID `json:"winner"`
	LastMove *domain.Cell     `json:"last_move,omitempty"`
	Version  int64            `json:"version"`
}

func (u Update) Validate() error {
	if !u.Board.Settled() {
		return fmt.Errorf("%w: %v", ErrInvalidGame, domain.ErrInvalidBoard)
	}
	for r := range u.Board {
		for _, cell := range u.Board[r] {
			if cell != domain.Empty && !cell.Valid() {
				return fmt.Errorf("%w: cell value %d", ErrInvalidGame, cell)
			}
		}
	}
	if !u.Turn.Valid() {
		return fmt.Errorf("%w: turn %d", ErrInvalidGame, u.Turn)
	}
	if u.Winner != nil && *u.Winner != domain.Empty && !u.Winner.Valid() {
		return fmt.Errorf("%w: winner %d", ErrInvalidGame, *u.Winner)
	}
	if m := u.LastMove; m != nil {
		if m.Row < 0 || m.Row >= domain.Rows || m.Column < 0 || m.Column >= domain.Columns {
			return fmt.Errorf("%w: last move off the board", ErrInvalidGame)
		}
	}
	if u.Version < 1 {
		return fmt.Errorf("%w: version %d", ErrInvalidGame, u.Version)
	}
	return nil
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is a change notification. New is nil for deletes.
type Event struct {
	Type EventType `json:"event"`
	New  *Game     `json:"new,omitempty"`
	Old  *Game     `json:"old,omitempty"`
}

// GameID returns the id of the record the event is about.
func (e Event) GameID() string {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNotFound    Error = "game not found"
	ErrExists      Error = "game id already taken"
	ErrConflict    Error = "game was updated by someone else"
	ErrFull        Error = "game already has two players"
	ErrInvalidGame Error = "invalid game"
)
