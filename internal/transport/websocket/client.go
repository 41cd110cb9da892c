package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Subscriber is one open websocket. Writes are serialized because
// gorilla connections allow a single concurrent writer.
type Subscriber struct {
	ID     string
	GameID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (s *Subscriber) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *Subscriber) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame with reason and closes the socket.
func (s *Subscriber) Close(code int, reason string) {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	s.mu.Unlock()
	s.conn.Close()
}

// ConnectionManager tracks open subscriber sockets per game.
type ConnectionManager struct {
	mu    sync.RWMutex
	games map[string]map[string]*Subscriber
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{games: make(map[string]map[string]*Subscriber)}
}

func (cm *ConnectionManager) Add(gameID string, conn *websocket.Conn) *Subscriber {
	s := &Subscriber{ID: uuid.NewString(), GameID: gameID, conn: conn}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.games[gameID] == nil {
		cm.games[gameID] = make(map[string]*Subscriber)
	}
	cm.games[gameID][s.ID] = s
	return s
}

func (cm *ConnectionManager) Remove(s *Subscriber) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.games[s.GameID], s.ID)
	if len(cm.games[s.GameID]) == 0 {
		delete(cm.games, s.GameID)
	}
}

// Count returns the number of open sockets for gameID.
func (cm *ConnectionManager) Count(gameID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.games[gameID])
}

// CloseAll closes every socket, used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Subscriber
	for _, subs := range cm.games {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	cm.mu.RUnlock()
	for _, s := range all {
		s.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
