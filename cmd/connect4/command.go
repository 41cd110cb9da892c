package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iamasit07/connect4-remote/internal/domain"
)

type verb string

const (
	verbNone   verb = ""
	verbMove   verb = "move"
	verbStart  verb = "start"
	verbAnswer verb = "answer"
	verbReset  verb = "reset"
	verbLobby  verb = "lobby"
	verbCreate verb = "create"
	verbJoin   verb = "join"
	verbHelp   verb = "help"
	verbQuit   verb = "quit"
)

type command struct {
	verb verb
	// column is 0-based.
	column int
	token  string
}

var errUnknownCommand = errors.New("unknown command, type 'help'")

const helpText = `commands:
  1-7 | move N     drop a disk in column N
  start            begin the game (host)
  answer TOKEN     finish a peer connection with the guest's answer (host)
  reset            clear the board (host)
  lobby            leave the current game
  create           host a new game from the lobby
  join TOKEN       join a game from the lobby
  quit             exit
`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{verb: verbNone}, nil
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	if col, ok := parseColumn(name); ok && len(args) == 0 {
		return command{verb: verbMove, column: col}, nil
	}

	switch name {
	case "move", "m":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: move 1-%d", domain.Columns)
		}
		col, ok := parseColumn(args[0])
		if !ok {
			return command{}, fmt.Errorf("column must be 1-%d", domain.Columns)
		}
		return command{verb: verbMove, column: col}, nil
	case "start", "s":
		return command{verb: verbStart}, nil
	case "answer", "complete":
		if len(args) != 1 {
			return command{}, errors.New("usage: answer TOKEN")
		}
		return command{verb: verbAnswer, token: args[0]}, nil
	case "reset", "r":
		return command{verb: verbReset}, nil
	case "lobby", "leave":
		return command{verb: verbLobby}, nil
	case "create", "host":
		return command{verb: verbCreate}, nil
	case "join":
		if len(args) != 1 {
			return command{}, errors.New("usage: join TOKEN")
		}
		return command{verb: verbJoin, token: args[0]}, nil
	case "help", "?":
		return command{verb: verbHelp}, nil
	case "quit", "q", "exit":
		return command{verb: verbQuit}, nil
	}
	return command{}, errUnknownCommand
}

// parseColumn reads a 1-based column number.
func parseColumn(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > domain.Columns {
		return 0, false
	}
	return n - 1, true
}
