package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/service/relay"
)

// Connect opens a client and pings it. A nil client and nil error mean
// Redis is unavailable and relayd should run on a single instance.
func Connect(ctx context.Context, addr, password string, logger zerolog.Logger) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("could not connect to redis, running without fan-out and cache")
		client.Close()
		return nil, nil
	}
	logger.Info().Str("addr", addr).Msg("redis connected")
	return client, nil
}

func gameKey(id string) string     { return "connect4:game:" + id }
func eventChannel(id string) string { return "connect4:events:" + id }

// GameCache keeps recently used records as JSON with an expiry.
type GameCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewGameCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *GameCache {
	return &GameCache{client: client, ttl: ttl, logger: logger.With().Str("component", "cache").Logger()}
}

func (c *GameCache) GetGame(ctx context.Context, id string) (*relay.Game, bool) {
	raw, err := c.client.Get(ctx, gameKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("game", id).Msg("cache read failed")
		}
		return nil, false
	}
	var g relay.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		c.logger.Warn().Err(err).Str("game", id).Msg("dropping corrupt cache entry")
		c.DeleteGame(ctx, id)
		return nil, false
	}
	return &g, true
}

func (c *GameCache) SetGame(ctx context.Context, g *relay.Game) {
	raw, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, gameKey(g.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("game", g.ID).Msg("cache write failed")
	}
}

func (c *GameCache) DeleteGame(ctx context.Context, id string) {
	if err := c.client.Del(ctx, gameKey(id)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("game", id).Msg("cache delete failed")
	}
}

// EventBus publishes record changes on a per-game channel so every relayd
// instance can serve subscribers of any game.
type EventBus struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewEventBus(client *redis.Client, logger zerolog.Logger) *EventBus {
	return &EventBus{client: client, logger: logger.With().Str("component", "bus").Logger()}
}

func (b *EventBus) Publish(ctx context.Context, ev relay.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventChannel(ev.GameID()), raw).Err()
}

func (b *EventBus) Subscribe(ctx context.Context, gameID string) (<-chan relay.Event, func(), error) {
	ps := b.client.Subscribe(ctx, eventChannel(gameID))
	// wait for the confirmation so no event published after this returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", gameID, err)
	}

	out := make(chan relay.Event, 32)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev relay.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn().Err(err).Str("game", gameID).Msg("dropping undecodable event")
					continue
				}
				select {
				case out <- ev:
				case <-stop:
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
