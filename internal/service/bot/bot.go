// Package bot picks moves for a computer opponent in local games.
package bot

import (
	"fmt"
	"math/rand/v2"

	"github.com/iamasit07/connect4-remote/internal/domain"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNoMoves           Error = "no playable column"
	ErrUnknownDifficulty Error = "unknown difficulty"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(s); d {
	case Easy, Medium, Hard:
		return d, nil
	}
	return "", fmt.Errorf("%w %q, want easy, medium or hard", ErrUnknownDifficulty, s)
}

// Bot plays one side of a game.
type Bot struct {
	Player     domain.PlayerID
	Difficulty Difficulty
	rng        *rand.Rand
}

func New(player domain.PlayerID, d Difficulty) *Bot {
	return &Bot{Player: player, Difficulty: d, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Move returns the column to play on board.
func (b *Bot) Move(board domain.Board) (int, error) {
	valid := domain.ValidMoves(board)
	if len(valid) == 0 {
		return -1, ErrNoMoves
	}
	switch b.Difficulty {
	case Easy:
		return b.easy(board, valid), nil
	case Hard:
		return minimaxMove(board, valid, b.Player), nil
	default:
		return mediumMove(board, valid, b.Player), nil
	}
}

// easy takes a win, blocks a loss, and otherwise plays at random.
func (b *Bot) easy(board domain.Board, valid []int) int {
	if col, ok := winningColumn(board, valid, b.Player); ok {
		return col
	}
	if col, ok := winningColumn(board, valid, domain.Other(b.Player)); ok {
		return col
	}
	return valid[b.rng.IntN(len(valid))]
}

// winningColumn finds a column where player wins immediately.
func winningColumn(board domain.Board, valid []int, player domain.PlayerID) (int, bool) {
	for _, col := range valid {
		if wins(board, col, player) {
			return col, true
		}
	}
	return -1, false
}

func wins(board domain.Board, col int, player domain.PlayerID) bool {
	next, row, err := domain.ApplyMove(board, col, player)
	return err == nil && domain.CheckWin(next, row, col, player)
}
