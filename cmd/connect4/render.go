package main

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/service/session"
)

var disks = map[domain.PlayerID]string{
	domain.Empty:   ".",
	domain.Player1: "X",
	domain.Player2: "O",
}

// renderBoard draws the board top row first with 1-based column numbers.
// Highlighted cells are bracketed.
func renderBoard(board domain.Board, highlight []domain.Cell) string {
	marked := make(map[domain.Cell]bool, len(highlight))
	for _, c := range highlight {
		marked[c] = true
	}

	var b strings.Builder
	for col := 1; col <= domain.Columns; col++ {
		fmt.Fprintf(&b, " %d ", col)
	}
	b.WriteString("\n")
	for row := 0; row < domain.Rows; row++ {
		for col := 0; col < domain.Columns; col++ {
			disk := disks[board[row][col]]
			if marked[domain.Cell{Row: row, Column: col}] {
				fmt.Fprintf(&b, "[%s]", disk)
			} else {
				fmt.Fprintf(&b, " %s ", disk)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// describe is the one-line status shown under the board.
func describe(snap session.Snapshot) string {
	you := disks[snap.LocalPlayer]
	switch snap.Phase {
	case session.PhaseLobby:
		if snap.LastError != "" {
			return "back in the lobby: " + snap.LastError
		}
		return "in the lobby"
	case session.PhaseConnecting, session.PhaseCreating, session.PhaseJoining:
		return "connecting..."
	case session.PhaseWaitingForOpponent:
		if snap.IsHost {
			return "waiting for the opponent to join"
		}
		return "waiting for the host to accept your answer"
	case session.PhaseReady:
		if snap.IsHost {
			return "opponent connected, type 'start' to begin"
		}
		return "connected, waiting for the host to start"
	case session.PhasePlaying:
		if snap.Animating != nil {
			return "dropping..."
		}
		if snap.MyTurn() {
			return fmt.Sprintf("your turn (%s), pick a column 1-%d", you, domain.Columns)
		}
		return fmt.Sprintf("opponent's turn (%s)", disks[snap.CurrentPlayer])
	case session.PhaseFinished:
		switch {
		case snap.Result.Outcome == domain.OutcomeDraw:
			return "draw"
		case snap.Result.Winner == snap.LocalPlayer:
			return "you win"
		default:
			return "you lose"
		}
	case session.PhaseDisconnected:
		return "opponent disconnected, type 'lobby' to go back"
	case session.PhaseError:
		return "error: " + snap.LastError
	}
	return string(snap.Phase)
}

func renderQR(token string) (string, error) {
	q, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
