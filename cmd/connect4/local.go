package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/service/bot"
)

// playLocal runs a hot-seat game on one terminal. With a computer opponent
// the bot answers every move of the human.
func playLocal(in io.Reader, out io.Writer, opponent *bot.Bot) error {
	game := domain.NewGame()
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, renderBoard(game.Board, nil))
	fmt.Fprintln(out, localStatus(game))
	for scanner.Scan() {
		cmd, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		switch cmd.verb {
		case verbNone:
			continue
		case verbQuit:
			return nil
		case verbHelp:
			fmt.Fprintf(out, "type a column 1-%d, 'reset' or 'quit'\n", domain.Columns)
			continue
		case verbReset:
			game.Reset()
		case verbMove:
			if _, err := game.MakeMove(cmd.column); err != nil {
				fmt.Fprintf(out, "illegal move: %v\n", err)
				continue
			}
			if opponent != nil && !game.IsFinished() && game.CurrentPlayer == opponent.Player {
				col, err := opponent.Move(game.Board)
				if err != nil {
					return err
				}
				if _, err := game.MakeMove(col); err != nil {
					return err
				}
				fmt.Fprintf(out, "computer plays %d\n", col+1)
			}
		default:
			fmt.Fprintln(out, "only moves, 'reset' and 'quit' work in a local game")
			continue
		}
		fmt.Fprint(out, "\n"+renderBoard(game.Board, game.WinningCells))
		fmt.Fprintln(out, localStatus(game))
	}
	return scanner.Err()
}

func localStatus(game *domain.Game) string {
	switch game.Status {
	case domain.StatusWon:
		return fmt.Sprintf("%s wins, 'reset' to play again", disks[game.Winner])
	case domain.StatusDraw:
		return "draw, 'reset' to play again"
	}
	return fmt.Sprintf("%s to move", disks[game.CurrentPlayer])
}
