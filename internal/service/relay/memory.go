package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in a map. relayd uses it when no database is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]*Game
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]*Game)}
}

func (m *MemoryStore) Create(_ context.Context, g *Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return ErrExists
	}
	m.games[g.ID] = g.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, g *Game, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[g.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrConflict
	}
	m.games[g.ID] = g.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; !ok {
		return ErrNotFound
	}
	delete(m.games, id)
	return nil
}

func (m *MemoryStore) DeleteStale(_ context.Context, before time.Time) ([]*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []*Game
	for id, g := range m.games {
		if g.UpdatedAt.Before(before) {
			removed = append(removed, g)
			delete(m.games, id)
		}
	}
	return removed, nil
}

// LocalBus fans events out to subscribers in this process.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan Event
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[string]chan Event)}
}

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// events to it are dropped.
const subscriberBuffer = 32

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.GameID()] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, gameID string) (<-chan Event, func(), error) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[string]chan Event)
	}
	b.subs[gameID][id] = ch
	b.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			delete(b.subs[gameID], id)
			if len(b.subs[gameID]) == 0 {
				delete(b.subs, gameID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ch, cancel, nil
}

// Subscribers reports how many subscriptions are open for gameID.
func (b *LocalBus) Subscribers(gameID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[gameID])
}
