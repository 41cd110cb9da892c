package relay

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/protocol"
	relaysvc "github.com/iamasit07/connect4-remote/internal/service/relay"
	"github.com/iamasit07/connect4-remote/internal/transport"
	relayhttp "github.com/iamasit07/connect4-remote/internal/transport/http"
	"github.com/iamasit07/connect4-remote/internal/transport/websocket"
	"github.com/iamasit07/connect4-remote/pkg/auth"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type recorder struct {
	mu        sync.Mutex
	connected int
	lost      int
	states    []protocol.State
	errs      []error
}

func (r *recorder) OnConnected() {
	r.mu.Lock()
	r.connected++
	r.mu.Unlock()
}

func (r *recorder) OnDisconnected() {
	r.mu.Lock()
	r.lost++
	r.mu.Unlock()
}

func (r *recorder) OnMessage(msg protocol.Message) {
	r.mu.Lock()
	if st, ok := msg.(protocol.State); ok {
		r.states = append(r.states, st)
	}
	r.mu.Unlock()
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected, r.lost
}

func (r *recorder) last() (protocol.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return protocol.State{}, false
	}
	return r.states[len(r.states)-1], true
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type relayd struct {
	svc      *relaysvc.Service
	provider *Provider
}

func startRelayd(t *testing.T) relayd {
	t.Helper()
	gin.SetMode(gin.TestMode)
	keys := auth.NewKeys("relay-transport-test")
	key, err := keys.Issue("test", 0)
	require.NoError(t, err)

	svc := relaysvc.NewService(relaysvc.NewMemoryStore(), relaysvc.NewLocalBus(), zerolog.Nop())
	cm := websocket.NewConnectionManager()
	srv := httptest.NewServer(relayhttp.NewRouter(relayhttp.RouterConfig{
		Service:     svc,
		Keys:        keys,
		ConnManager: cm,
		Logger:      zerolog.Nop(),
	}))
	t.Cleanup(func() {
		cm.CloseAll()
		srv.Close()
	})
	return relayd{svc: svc, provider: NewProvider(Config{BaseURL: srv.URL + "/", APIKey: key}, zerolog.Nop())}
}

func (d relayd) open(t *testing.T) (*Conn, *recorder) {
	t.Helper()
	rec := &recorder{}
	tr, err := d.provider.Open(rec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Teardown() })
	return tr.(*Conn), rec
}

func (d relayd) pair(t *testing.T) (*Conn, *recorder, *Conn, *recorder, string) {
	t.Helper()
	host, hostRec := d.open(t)
	guest, guestRec := d.open(t)

	id, err := host.InitiateSession(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	reply, err := guest.JoinSession(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, reply)

	require.Eventually(t, func() bool {
		h, _ := hostRec.counts()
		g, _ := guestRec.counts()
		return h == 1 && g == 1
	}, waitFor, tick)
	return host, hostRec, guest, guestRec, id
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), transport.ErrNotConfigured)
	assert.ErrorContains(t, Config{APIKey: "k"}.Validate(), "RELAY_URL")
	assert.ErrorContains(t, Config{BaseURL: "http://x"}.Validate(), "RELAY_API_KEY")
	assert.ErrorIs(t, Config{BaseURL: "relay.local", APIKey: "k"}.Validate(), transport.ErrNotConfigured)
	assert.NoError(t, Config{BaseURL: "https://relay.local", APIKey: "k"}.Validate())

	_, err := NewProvider(Config{}, zerolog.Nop()).Open(&recorder{})
	assert.ErrorIs(t, err, transport.ErrNotConfigured)
}

func TestHostAndGuestConnect(t *testing.T) {
	d := startRelayd(t)
	_, hostRec, _, guestRec, _ := d.pair(t)

	st, ok := guestRec.last()
	require.True(t, ok)
	assert.Equal(t, domain.NewBoard(), st.Board)
	assert.Equal(t, domain.Player1, st.CurrentPlayer)
	assert.Nil(t, st.Winner)
	assert.Equal(t, int64(2), st.Version)

	require.Eventually(t, func() bool {
		st, ok := hostRec.last()
		return ok && st.Version == 2
	}, waitFor, tick)
}

func TestStateWriteReachesOpponent(t *testing.T) {
	d := startRelayd(t)
	host, hostRec, _, guestRec, _ := d.pair(t)

	board, row, err := domain.ApplyMove(domain.NewBoard(), 3, domain.Player1)
	require.NoError(t, err)
	cell := domain.Cell{Row: row, Column: 3}
	require.True(t, host.Send(protocol.State{Board: board, CurrentPlayer: domain.Player2, LastMove: &cell}))

	for _, rec := range []*recorder{hostRec, guestRec} {
		require.Eventually(t, func() bool {
			st, ok := rec.last()
			return ok && st.Version == 3
		}, waitFor, tick)
		st, _ := rec.last()
		assert.Equal(t, board, st.Board)
		assert.Equal(t, domain.Player2, st.CurrentPlayer)
		require.NotNil(t, st.LastMove)
		assert.Equal(t, cell, *st.LastMove)
	}
	assert.Empty(t, hostRec.errors())
}

func TestResetClearsRecord(t *testing.T) {
	d := startRelayd(t)
	host, _, _, guestRec, id := d.pair(t)

	board, _, err := domain.ApplyMove(domain.NewBoard(), 0, domain.Player1)
	require.NoError(t, err)
	require.True(t, host.Send(protocol.State{Board: board, CurrentPlayer: domain.Player2}))
	require.True(t, host.Send(protocol.Reset{}))

	require.Eventually(t, func() bool {
		st, ok := guestRec.last()
		return ok && st.Version == 4
	}, waitFor, tick)
	st, _ := guestRec.last()
	assert.Equal(t, domain.NewBoard(), st.Board)
	assert.Equal(t, domain.Player1, st.CurrentPlayer)

	g, err := d.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.Version)
}

func TestSendRefusesPeerMessages(t *testing.T) {
	d := startRelayd(t)
	host, _, _, _, _ := d.pair(t)

	assert.False(t, host.Send(protocol.Move{Column: 1, Player: domain.Player1}))
	assert.False(t, host.Send(protocol.Ready{}))
}

func TestSendBeforeConnected(t *testing.T) {
	d := startRelayd(t)
	host, _ := d.open(t)
	assert.False(t, host.Send(protocol.State{Board: domain.NewBoard(), CurrentPlayer: domain.Player1}))

	_, err := host.InitiateSession(context.Background())
	require.NoError(t, err)
	assert.False(t, host.Send(protocol.Reset{}))
}

func TestJoinUnknownGame(t *testing.T) {
	d := startRelayd(t)
	guest, rec := d.open(t)

	_, err := guest.JoinSession(context.Background(), "nosuchgame")
	assert.ErrorIs(t, err, transport.ErrSessionNotFound)
	var cerr *transport.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "join", cerr.Op)

	_, err = guest.JoinSession(context.Background(), "  ")
	assert.ErrorIs(t, err, transport.ErrSessionNotFound)

	connected, _ := rec.counts()
	assert.Zero(t, connected)
}

func TestThirdPlayerIsRejected(t *testing.T) {
	d := startRelayd(t)
	_, _, _, _, id := d.pair(t)

	third, _ := d.open(t)
	_, err := third.JoinSession(context.Background(), id)
	assert.ErrorIs(t, err, transport.ErrSessionFull)
}

func TestStaleWriteAdoptsServerRecord(t *testing.T) {
	d := startRelayd(t)
	host, hostRec, _, _, id := d.pair(t)

	// another writer moves the record on
	board, _, err := domain.ApplyMove(domain.NewBoard(), 6, domain.Player1)
	require.NoError(t, err)
	_, err = d.svc.Update(context.Background(), id, relaysvc.Update{Board: board, Turn: domain.Player2, Version: 2})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, ok := hostRec.last()
		return ok && st.Version == 3
	}, waitFor, tick)

	// a move built on version 2, which the session has not moved past
	other, _, err := domain.ApplyMove(domain.NewBoard(), 0, domain.Player1)
	require.NoError(t, err)
	require.True(t, host.Send(protocol.State{Board: other, CurrentPlayer: domain.Player2, Version: 2}))

	require.Eventually(t, func() bool {
		for _, err := range hostRec.errors() {
			if errors.Is(err, transport.ErrSendFailed) && errors.Is(err, transport.ErrConflict) {
				return true
			}
		}
		return false
	}, waitFor, tick)

	st, _ := hostRec.last()
	assert.Equal(t, board, st.Board)
	assert.Equal(t, int64(3), st.Version)

	g, err := d.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), g.Version)
	assert.Equal(t, board, g.Board)
}

func TestMoveOverStaleResetConflicts(t *testing.T) {
	d := startRelayd(t)
	host, _, guest, guestRec, id := d.pair(t)

	board, _, err := domain.ApplyMove(domain.NewBoard(), 0, domain.Player1)
	require.NoError(t, err)
	require.True(t, host.Send(protocol.State{Board: board, CurrentPlayer: domain.Player2, Version: 2}))
	require.True(t, host.Send(protocol.Reset{}))
	require.Eventually(t, func() bool {
		st, ok := guestRec.last()
		return ok && st.Version == 4
	}, waitFor, tick)

	// the guest answers the board at version 3, before adopting the reset
	answer, _, err := domain.ApplyMove(board, 2, domain.Player2)
	require.NoError(t, err)
	require.True(t, guest.Send(protocol.State{Board: answer, CurrentPlayer: domain.Player1, Version: 3}))

	require.Eventually(t, func() bool {
		for _, err := range guestRec.errors() {
			if errors.Is(err, transport.ErrConflict) {
				return true
			}
		}
		return false
	}, waitFor, tick)

	g, err := d.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.Version)
	assert.Equal(t, domain.NewBoard(), g.Board)
}

func TestMoveAfterOwnResetIsAccepted(t *testing.T) {
	d := startRelayd(t)
	host, hostRec, _, guestRec, id := d.pair(t)

	require.True(t, host.Send(protocol.Reset{}))
	// built on version 2; version 3 is the host's own reset
	board, _, err := domain.ApplyMove(domain.NewBoard(), 3, domain.Player1)
	require.NoError(t, err)
	require.True(t, host.Send(protocol.State{Board: board, CurrentPlayer: domain.Player2, Version: 2}))

	require.Eventually(t, func() bool {
		st, ok := guestRec.last()
		return ok && st.Version == 4
	}, waitFor, tick)
	st, _ := guestRec.last()
	assert.Equal(t, board, st.Board)
	assert.Empty(t, hostRec.errors())

	g, err := d.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.Version)
}

func TestDeletedGameDisconnects(t *testing.T) {
	d := startRelayd(t)
	_, hostRec, _, guestRec, id := d.pair(t)

	require.NoError(t, d.svc.Delete(context.Background(), id))
	require.Eventually(t, func() bool {
		_, h := hostRec.counts()
		_, g := guestRec.counts()
		return h == 1 && g == 1
	}, waitFor, tick)
	assert.Empty(t, hostRec.errors())
}

func TestDeleteBeforeJoinIsAnError(t *testing.T) {
	d := startRelayd(t)
	host, rec := d.open(t)
	id, err := host.InitiateSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.svc.Delete(context.Background(), id))
	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, waitFor, tick)
	assert.ErrorIs(t, rec.errors()[0], transport.ErrSessionNotFound)
	_, lost := rec.counts()
	assert.Zero(t, lost)
}

func TestTeardownIsQuiet(t *testing.T) {
	d := startRelayd(t)
	host, hostRec, _, _, _ := d.pair(t)

	require.NoError(t, host.Teardown())
	require.NoError(t, host.Teardown())
	assert.False(t, host.Send(protocol.Reset{}))

	time.Sleep(50 * time.Millisecond)
	_, lost := hostRec.counts()
	assert.Zero(t, lost)
	assert.Empty(t, hostRec.errors())
}
