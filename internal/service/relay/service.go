package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/pkg/uid"
)

// Store persists game records. Update must only succeed while the stored
// version equals expected.
type Store interface {
	Create(ctx context.Context, g *Game) error
	Get(ctx context.Context, id string) (*Game, error)
	Update(ctx context.Context, g *Game, expected int64) error
	Delete(ctx context.Context, id string) error
	// DeleteStale removes records untouched since before and returns them.
	DeleteStale(ctx context.Context, before time.Time) ([]*Game, error)
}

// Bus carries change events to subscribers, possibly on other relayd
// instances.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe delivers the events of one game until cancel is called or
	// ctx ends.
	Subscribe(ctx context.Context, gameID string) (events <-chan Event, cancel func(), err error)
}

// Cache is an optional read-through cache in front of the Store.
type Cache interface {
	GetGame(ctx context.Context, id string) (*Game, bool)
	SetGame(ctx context.Context, g *Game)
	DeleteGame(ctx context.Context, id string)
}

const createAttempts = 3

type Service struct {
	store  Store
	bus    Bus
	cache  Cache
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, bus Bus, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "relay").Logger(),
		now:    time.Now,
	}
}

// WithCache puts c in front of the store for reads.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

func (s *Service) Create(ctx context.Context) (*Game, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := uid.GenerateGameID()
		if err != nil {
			return nil, err
		}
		g := newGame(id, s.now().UTC())
		err = s.store.Create(ctx, g)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create game: %w", err)
		}
		s.logger.Info().Str("game", id).Msg("game created")
		s.changed(ctx, Event{Type: EventInsert, New: g})
		return g.Clone(), nil
	}
	return nil, fmt.Errorf("create game: %w", ErrExists)
}

func (s *Service) Get(ctx context.Context, id string) (*Game, error) {
	if s.cache != nil {
		if g, ok := s.cache.GetGame(ctx, id); ok {
			return g, nil
		}
	}
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetGame(ctx, g)
	}
	return g, nil
}

// Join flips a waiting game to playing. The second join is refused.
func (s *Service) Join(ctx context.Context, id string) (*Game, error) {
	// read from the store, the cache may be behind a concurrent join
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusWaiting {
		return nil, ErrFull
	}
	old := g.Clone()
	g.Status = StatusPlaying
	if err := s.write(ctx, g, old); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrFull
		}
		return nil, err
	}
	s.logger.Info().Str("game", id).Msg("opponent joined")
	return g.Clone(), nil
}

// Update applies a client write if nobody else wrote since u.Version.
func (s *Service) Update(ctx context.Context, id string, u Update) (*Game, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Version != u.Version {
		return nil, ErrConflict
	}
	old := g.Clone()
	g.Board = u.Board
	g.Turn = u.Turn
	g.Winner = u.Winner
	g.LastMove = u.LastMove
	if err := s.write(ctx, g, old); err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// Reset clears the board unconditionally. Concurrent writers are retried
// against so the reset always lands.
func (s *Service) Reset(ctx context.Context, id string) (*Game, error) {
	for {
		g, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		old := g.Clone()
		g.Board = domain.NewBoard()
		g.Turn = domain.Player1
		g.Winner = nil
		g.LastMove = nil
		err = s.write(ctx, g, old)
		if errors.Is(err, ErrConflict) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info().Str("game", id).Msg("game reset")
		return g.Clone(), nil
	}
}

func (s *Service) Delete(ctx context.Context, id string) error {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.DeleteGame(ctx, id)
	}
	s.logger.Info().Str("game", id).Msg("game deleted")
	s.publish(ctx, Event{Type: EventDelete, Old: g})
	return nil
}

// Subscribe streams changes to one game. The game must exist.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan Event, func(), error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	return s.bus.Subscribe(ctx, id)
}

// CleanupStale deletes games idle for longer than ttl and tells their
// subscribers.
func (s *Service) CleanupStale(ctx context.Context, ttl time.Duration) (int, error) {
	removed, err := s.store.DeleteStale(ctx, s.now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	for _, g := range removed {
		if s.cache != nil {
			s.cache.DeleteGame(ctx, g.ID)
		}
		s.publish(ctx, Event{Type: EventDelete, Old: g})
	}
	return len(removed), nil
}

// write stores g with the next version and announces the change.
func (s *Service) write(ctx context.Context, g, old *Game) error {
	g.Version = old.Version + 1
	g.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, g, old.Version); err != nil {
		if s.cache != nil {
			s.cache.DeleteGame(ctx, g.ID)
		}
		return err
	}
	s.changed(ctx, Event{Type: EventUpdate, New: g.Clone(), Old: old})
	return nil
}

func (s *Service) changed(ctx context.Context, ev Event) {
	if s.cache != nil && ev.New != nil {
		s.cache.SetGame(ctx, ev.New)
	}
	s.publish(ctx, ev)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("game", ev.GameID()).Str("event", string(ev.Type)).Msg("publish failed")
	}
}
