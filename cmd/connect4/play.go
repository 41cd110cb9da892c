package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/iamasit07/connect4-remote/internal/service/session"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

// console prints session changes. Output from the change printer and the
// input loop is serialized through mu.
type console struct {
	mu   sync.Mutex
	w    io.Writer
	qr   bool
	last *session.Snapshot
}

func newConsole(w io.Writer, qr bool) *console {
	return &console{w: w, qr: qr}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// show prints whatever differs from the previously shown snapshot.
func (c *console) show(snap session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.last
	c.last = &snap

	if snap.Token != "" && (prev == nil || prev.Token != snap.Token) {
		c.showToken(snap)
	}

	boardChanged := prev == nil || prev.Board != snap.Board ||
		(prev.Animating == nil) != (snap.Animating == nil) || prev.Phase != snap.Phase
	if snap.Phase.InGame() && boardChanged {
		board := snap.Board
		if snap.Animating != nil {
			board[snap.Animating.Row][snap.Animating.Column] = snap.CurrentPlayer
		}
		fmt.Fprint(c.w, "\n"+renderBoard(board, snap.Result.Cells))
	}

	if prev == nil || prev.Phase != snap.Phase || prev.LastError != snap.LastError ||
		prev.CurrentPlayer != snap.CurrentPlayer || boardChanged {
		fmt.Fprintln(c.w, describe(snap))
	}
}

func (c *console) showToken(snap session.Snapshot) {
	switch {
	case snap.Kind == transport.KindRelay:
		fmt.Fprintf(c.w, "game id: %s\n", snap.Token)
	case snap.IsHost:
		fmt.Fprintf(c.w, "send this offer to your opponent, then paste their answer with 'answer TOKEN':\n%s\n", snap.Token)
	default:
		fmt.Fprintf(c.w, "send this answer back to the host:\n%s\n", snap.Token)
	}
	if !c.qr {
		return
	}
	code, err := renderQR(snap.Token)
	if err != nil {
		fmt.Fprintf(c.w, "(token too long for a QR code: %v)\n", err)
		return
	}
	fmt.Fprint(c.w, code)
}

// play runs the interactive loop until quit, end of input or ctx ends.
func play(ctx context.Context, s *session.Session, in io.Reader, out *console, changed <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		// peer tokens are long
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	out.show(s.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			out.show(s.Snapshot())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				out.printf("%v\n", err)
				continue
			}
			if cmd.verb == verbQuit {
				return nil
			}
			if !execute(s, cmd, out) {
				out.printf("not possible right now: %s\n", describe(s.Snapshot()))
			}
		}
	}
}

// execute applies cmd and reports whether the session accepted it.
func execute(s *session.Session, cmd command, out *console) bool {
	switch cmd.verb {
	case verbNone:
		return true
	case verbHelp:
		out.printf("%s", helpText)
		return true
	case verbMove:
		return s.MakeMove(cmd.column)
	case verbStart:
		return s.StartGame()
	case verbAnswer:
		return s.CompleteConnection(cmd.token)
	case verbReset:
		return s.Reset()
	case verbLobby:
		s.ReturnToLobby()
		return true
	case verbCreate:
		return s.CreateRoom()
	case verbJoin:
		return s.JoinRoom(cmd.token)
	}
	return false
}
