package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/protocol"
	"github.com/iamasit07/connect4-remote/internal/transport"
	"github.com/iamasit07/connect4-remote/internal/transport/inproc"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// drawSequence fills the board with alternating players, starting with
// Player1, without anyone connecting four.
var drawSequence = []int{2, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 6, 4, 4, 4, 4, 4, 4, 5, 5, 5, 5, 5, 5, 6, 6, 6, 6, 6}

func waitPhase(t *testing.T, s *Session, want Phase) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Phase == want
	}, waitFor, tick, "want phase %s", want)
	return s.Snapshot()
}

// connectPeers runs the full offer/answer handshake and starts the game.
func connectPeers(t *testing.T, opts Options) (*inproc.Network, *Session, *Session) {
	t.Helper()
	net := inproc.NewNetwork(transport.KindPeer)
	host := New(net.Provider(), opts)
	guest := New(net.Provider(), opts)
	t.Cleanup(host.Close)
	t.Cleanup(guest.Close)

	require.True(t, host.CreateRoom())
	offer := waitPhase(t, host, PhaseWaitingForOpponent).Token
	require.NotEmpty(t, offer)

	require.True(t, guest.JoinRoom(offer))
	require.Eventually(t, func() bool { return guest.Snapshot().Token != "" }, waitFor, tick)
	answer := guest.Snapshot().Token

	require.True(t, host.CompleteConnection(answer))
	waitPhase(t, host, PhaseReady)
	waitPhase(t, guest, PhaseReady)
	assert.Empty(t, host.Snapshot().Token)

	require.True(t, host.StartGame())
	waitPhase(t, host, PhasePlaying)
	waitPhase(t, guest, PhasePlaying)
	return net, host, guest
}

func connectRelay(t *testing.T, opts Options) (*inproc.Network, *Session, *Session) {
	t.Helper()
	net := inproc.NewNetwork(transport.KindRelay)
	host := New(net.Provider(), opts)
	guest := New(net.Provider(), opts)
	t.Cleanup(host.Close)
	t.Cleanup(guest.Close)

	require.True(t, host.CreateRoom())
	assert.Equal(t, PhaseCreating, host.Snapshot().Phase)
	gameID := waitPhase(t, host, PhaseWaitingForOpponent).Token

	require.True(t, guest.JoinRoom(gameID))
	waitPhase(t, host, PhasePlaying)
	waitPhase(t, guest, PhasePlaying)
	return net, host, guest
}

func TestPeerRolesAfterHandshake(t *testing.T) {
	_, host, guest := connectPeers(t, Options{})

	hs, gs := host.Snapshot(), guest.Snapshot()
	assert.True(t, hs.IsHost)
	assert.Equal(t, domain.Player1, hs.LocalPlayer)
	assert.True(t, hs.MyTurn())
	assert.False(t, gs.IsHost)
	assert.Equal(t, domain.Player2, gs.LocalPlayer)
	assert.False(t, gs.MyTurn())
	assert.Equal(t, transport.KindPeer, gs.Kind)
}

func TestPeerWinPropagates(t *testing.T) {
	_, host, guest := connectPeers(t, Options{})

	// host stacks column 3, guest plays column 4
	for i := 0; i < 7; i++ {
		mover, col := host, 3
		if i%2 == 1 {
			mover, col = guest, 4
		}
		require.Eventually(t, func() bool { return mover.Snapshot().MyTurn() }, waitFor, tick, "move %d", i)
		require.True(t, mover.MakeMove(col), "move %d", i)
	}

	hs := waitPhase(t, host, PhaseFinished)
	gs := waitPhase(t, guest, PhaseFinished)
	want := []domain.Cell{{Row: 2, Column: 3}, {Row: 3, Column: 3}, {Row: 4, Column: 3}, {Row: 5, Column: 3}}
	for _, snap := range []Snapshot{hs, gs} {
		assert.Equal(t, domain.OutcomeWin, snap.Result.Outcome)
		assert.Equal(t, domain.Player1, snap.Result.Winner)
		assert.ElementsMatch(t, want, snap.Result.Cells)
		assert.Equal(t, domain.Player1, snap.Board[2][3])
	}
	assert.Equal(t, hs.Board, gs.Board)
	assert.False(t, guest.MakeMove(0))
}

func TestPeerDrawFinishesBothSides(t *testing.T) {
	_, host, guest := connectPeers(t, Options{})

	for i, col := range drawSequence {
		mover := host
		if i%2 == 1 {
			mover = guest
		}
		require.Eventually(t, func() bool { return mover.Snapshot().MyTurn() }, waitFor, tick, "move %d", i)
		require.True(t, mover.MakeMove(col), "move %d column %d", i, col)
	}

	hs := waitPhase(t, host, PhaseFinished)
	gs := waitPhase(t, guest, PhaseFinished)
	for _, snap := range []Snapshot{hs, gs} {
		assert.Equal(t, domain.OutcomeDraw, snap.Result.Outcome)
		assert.Equal(t, domain.Empty, snap.Result.Winner)
		assert.True(t, domain.IsBoardFull(snap.Board))
	}
	assert.Equal(t, hs.Board, gs.Board)
}

func TestMoveOutOfTurnIsIgnored(t *testing.T) {
	net, host, guest := connectPeers(t, Options{})
	hostEnd := net.Endpoints()[0]

	require.True(t, host.MakeMove(3))
	require.Eventually(t, func() bool { return guest.Snapshot().MyTurn() }, waitFor, tick)
	sent := len(hostEnd.Sent())
	before := host.Snapshot()

	assert.False(t, host.MakeMove(5))
	assert.Equal(t, before, host.Snapshot())
	assert.Len(t, hostEnd.Sent(), sent)
}

func TestInvalidColumnIsIgnored(t *testing.T) {
	_, host, _ := connectPeers(t, Options{})
	for _, col := range []int{-1, domain.Columns} {
		assert.False(t, host.MakeMove(col))
	}
	assert.Zero(t, host.Snapshot().Board.Count())
}

func TestDisconnectMidGame(t *testing.T) {
	net, host, guest := connectPeers(t, Options{})
	require.True(t, host.MakeMove(0))
	require.Eventually(t, func() bool { return guest.Snapshot().MyTurn() }, waitFor, tick)

	net.Endpoints()[0].Drop()

	hs := waitPhase(t, host, PhaseDisconnected)
	gs := waitPhase(t, guest, PhaseDisconnected)
	assert.NotEmpty(t, hs.LastError)
	assert.Equal(t, 1, gs.Board.Count())
	assert.False(t, guest.MakeMove(1))
	assert.False(t, host.Reset())
	assert.Equal(t, gs.Board, guest.Snapshot().Board)

	host.ReturnToLobby()
	assert.Equal(t, PhaseLobby, host.Snapshot().Phase)
	assert.True(t, net.Endpoints()[0].Closed())
}

func TestIllegalRemoteMoveIsFatal(t *testing.T) {
	net, host, _ := connectPeers(t, Options{})

	// Player2 cannot move first
	net.Endpoints()[0].Deliver(protocol.Move{Column: 0, Player: domain.Player2})

	snap := waitPhase(t, host, PhaseError)
	assert.Contains(t, snap.LastError, string(ErrDiverged))
	assert.False(t, host.MakeMove(0))
}

func TestFullColumnIsRejected(t *testing.T) {
	_, host, guest := connectPeers(t, Options{})
	for i := 0; i < domain.Rows; i++ {
		mover := host
		if i%2 == 1 {
			mover = guest
		}
		require.Eventually(t, func() bool { return mover.Snapshot().MyTurn() }, waitFor, tick)
		require.True(t, mover.MakeMove(6))
	}
	require.Eventually(t, func() bool { return host.Snapshot().MyTurn() }, waitFor, tick)
	assert.False(t, host.MakeMove(6))
}

func TestResetIsIdempotent(t *testing.T) {
	_, host, guest := connectPeers(t, Options{})
	require.True(t, host.MakeMove(2))
	require.Eventually(t, func() bool { return guest.Snapshot().Board.Count() == 1 }, waitFor, tick)

	assert.False(t, guest.Reset(), "only the host resets")
	require.True(t, host.Reset())
	require.True(t, host.Reset())

	hs := host.Snapshot()
	assert.Equal(t, PhasePlaying, hs.Phase)
	assert.Equal(t, domain.NewBoard(), hs.Board)
	assert.Equal(t, domain.Player1, hs.CurrentPlayer)

	require.Eventually(t, func() bool { return guest.Snapshot().Board.Count() == 0 }, waitFor, tick)
	assert.Equal(t, domain.Player1, guest.Snapshot().CurrentPlayer)
}

func TestResetAfterFinish(t *testing.T) {
	_, host, guest := connectPeers(t, Options{})
	for i := 0; i < 7; i++ {
		mover, col := host, 0
		if i%2 == 1 {
			mover, col = guest, 1
		}
		require.Eventually(t, func() bool { return mover.Snapshot().MyTurn() }, waitFor, tick)
		require.True(t, mover.MakeMove(col))
	}
	waitPhase(t, guest, PhaseFinished)

	require.True(t, host.Reset())
	gs := waitPhase(t, guest, PhasePlaying)
	assert.False(t, gs.Result.Terminal())
	assert.Zero(t, gs.Board.Count())
}

func TestMoveDelayHoldsTurn(t *testing.T) {
	_, host, guest := connectPeers(t, Options{MoveDelay: 50 * time.Millisecond})

	require.True(t, host.MakeMove(4))
	snap := host.Snapshot()
	require.NotNil(t, snap.Animating)
	assert.Equal(t, domain.Cell{Row: domain.Rows - 1, Column: 4}, *snap.Animating)
	assert.Equal(t, domain.Player1, snap.CurrentPlayer)
	assert.False(t, snap.MyTurn())
	assert.False(t, host.MakeMove(4), "second move during animation")

	require.Eventually(t, func() bool {
		s := host.Snapshot()
		return s.Animating == nil && s.CurrentPlayer == domain.Player2
	}, waitFor, tick)
	require.Eventually(t, func() bool { return guest.Snapshot().MyTurn() }, waitFor, tick)
	assert.Equal(t, host.Snapshot().Board, guest.Snapshot().Board)
}

func TestReturnToLobbyDisconnectsPeer(t *testing.T) {
	net, host, guest := connectPeers(t, Options{})

	host.ReturnToLobby()
	hs := host.Snapshot()
	assert.Equal(t, PhaseLobby, hs.Phase)
	assert.Zero(t, hs.Board.Count())
	assert.Equal(t, domain.Empty, hs.LocalPlayer)
	assert.True(t, net.Endpoints()[0].Closed())

	waitPhase(t, guest, PhaseDisconnected)

	// a fresh attempt works from the lobby
	assert.True(t, host.CreateRoom())
	waitPhase(t, host, PhaseWaitingForOpponent)
}

func TestJoinWithBadTokenReturnsToLobby(t *testing.T) {
	net := inproc.NewNetwork(transport.KindPeer)
	guest := New(net.Provider(), Options{})
	t.Cleanup(guest.Close)

	require.True(t, guest.JoinRoom("garbage"))
	require.Eventually(t, func() bool {
		s := guest.Snapshot()
		return s.Phase == PhaseLobby && s.LastError != ""
	}, waitFor, tick)
	require.Eventually(t, net.Endpoints()[0].Closed, waitFor, tick)
}

func TestCompleteWithWrongAnswer(t *testing.T) {
	net := inproc.NewNetwork(transport.KindPeer)
	host := New(net.Provider(), Options{})
	t.Cleanup(host.Close)

	assert.False(t, host.CompleteConnection("answer"), "nothing to complete in the lobby")
	require.True(t, host.CreateRoom())
	waitPhase(t, host, PhaseWaitingForOpponent)

	require.True(t, host.CompleteConnection("answer-room-99"))
	require.Eventually(t, func() bool {
		s := host.Snapshot()
		return s.Phase == PhaseLobby && s.LastError != ""
	}, waitFor, tick)
}

func TestCreateRoomOpenFailure(t *testing.T) {
	net := inproc.NewNetwork(transport.KindRelay)
	net.FailOpen(transport.ErrNegotiation)
	host := New(net.Provider(), Options{})

	require.True(t, host.CreateRoom())
	snap := host.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Contains(t, snap.LastError, string(transport.ErrNegotiation))
}

func TestTransportErrorDuringGame(t *testing.T) {
	net, host, _ := connectPeers(t, Options{})

	net.Endpoints()[0].Fail(transport.ErrSendFailed)
	require.Eventually(t, func() bool { return host.Snapshot().LastError != "" }, waitFor, tick)
	assert.Equal(t, PhasePlaying, host.Snapshot().Phase)

	net.Endpoints()[0].Fail(transport.ErrOutOfOrder)
	snap := waitPhase(t, host, PhaseError)
	assert.Contains(t, snap.LastError, string(transport.ErrOutOfOrder))
}

type unconfigured struct {
	transport.Provider
}

func (unconfigured) Check() error {
	return transport.ErrNotConfigured
}

func TestMisconfiguredProviderStaysInError(t *testing.T) {
	net := inproc.NewNetwork(transport.KindRelay)
	s := New(unconfigured{net.Provider()}, Options{})

	snap := s.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, string(transport.ErrNotConfigured), snap.LastError)
	assert.False(t, s.CreateRoom())
	assert.False(t, s.JoinRoom("room-1"))

	s.ReturnToLobby()
	assert.Equal(t, PhaseError, s.Snapshot().Phase)
	assert.Empty(t, net.Endpoints())
}

func TestRelayGameFlow(t *testing.T) {
	_, host, guest := connectRelay(t, Options{})

	hs := host.Snapshot()
	assert.Equal(t, domain.Player1, hs.LocalPlayer)
	assert.NotEmpty(t, hs.Token, "host keeps the game id")
	assert.Empty(t, guest.Snapshot().Token)

	require.True(t, host.MakeMove(3))
	require.Eventually(t, func() bool { return guest.Snapshot().MyTurn() }, waitFor, tick)
	assert.Equal(t, domain.Player1, guest.Snapshot().Board[domain.Rows-1][3])

	require.True(t, guest.MakeMove(3))
	require.Eventually(t, func() bool { return host.Snapshot().MyTurn() }, waitFor, tick)
	assert.Equal(t, host.Snapshot().Board, guest.Snapshot().Board)

	require.True(t, host.Reset())
	require.Eventually(t, func() bool {
		return guest.Snapshot().Board.Count() == 0 && host.Snapshot().Board.Count() == 0
	}, waitFor, tick)
	assert.Equal(t, PhasePlaying, guest.Snapshot().Phase)
}

func TestRelayWinRecomputesCells(t *testing.T) {
	_, host, guest := connectRelay(t, Options{})
	for i := 0; i < 7; i++ {
		mover, col := host, 6
		if i%2 == 1 {
			mover, col = guest, 5
		}
		require.Eventually(t, func() bool { return mover.Snapshot().MyTurn() }, waitFor, tick, "move %d", i)
		require.True(t, mover.MakeMove(col))
	}

	gs := waitPhase(t, guest, PhaseFinished)
	assert.Equal(t, domain.Player1, gs.Result.Winner)
	assert.Len(t, gs.Result.Cells, domain.ToWin)
	waitPhase(t, host, PhaseFinished)
}

func TestRelayJoinUnknownGame(t *testing.T) {
	net := inproc.NewNetwork(transport.KindRelay)
	guest := New(net.Provider(), Options{})
	t.Cleanup(guest.Close)

	require.True(t, guest.JoinRoom("missing"))
	assert.Equal(t, PhaseJoining, guest.Snapshot().Phase)
	snap := waitPhase(t, guest, PhaseError)
	assert.Contains(t, snap.LastError, "check the game id")
}

func TestRelayThirdPlayerRejected(t *testing.T) {
	net, host, _ := connectRelay(t, Options{})
	third := New(net.Provider(), Options{})
	t.Cleanup(third.Close)

	require.True(t, third.JoinRoom(host.Snapshot().Token))
	waitPhase(t, third, PhaseError)
}

func TestOnChangeSeesEveryTransitionInOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		phases []Phase
	)
	net := inproc.NewNetwork(transport.KindRelay)
	host := New(net.Provider(), Options{OnChange: func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}})
	guest := New(net.Provider(), Options{})
	t.Cleanup(host.Close)
	t.Cleanup(guest.Close)

	require.True(t, host.CreateRoom())
	gameID := waitPhase(t, host, PhaseWaitingForOpponent).Token
	require.True(t, guest.JoinRoom(gameID))
	waitPhase(t, host, PhasePlaying)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseCreating, PhaseWaitingForOpponent, PhasePlaying}, phases)
}
