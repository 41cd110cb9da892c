package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/service/relay"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler streams record changes of one game over a websocket.
type Handler struct {
	Service     *relay.Service
	ConnManager *ConnectionManager
	Upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

func NewHandler(svc *relay.Service, cm *ConnectionManager, logger zerolog.Logger) *Handler {
	return &Handler{
		Service:     svc,
		ConnManager: cm,
		Upgrader: websocket.Upgrader{
			// origins are enforced by the CORS middleware and API keys
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// Subscribe is GET /api/games/:id/subscribe.
func (h *Handler) Subscribe(c *gin.Context) {
	gameID := c.Param("id")

	ctx, cancel := context.WithCancel(context.Background())
	events, stop, err := h.Service.Subscribe(ctx, gameID)
	if err != nil {
		cancel()
		if errors.Is(err, relay.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Str("game", gameID).Msg("subscribe failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		stop()
		cancel()
		h.logger.Warn().Err(err).Msg("upgrade error")
		return
	}

	sub := h.ConnManager.Add(gameID, conn)
	h.logger.Info().Str("game", gameID).Str("subscriber", sub.ID).Msg("subscriber connected")

	go h.readLoop(sub, conn, cancel)
	h.writeLoop(ctx, sub, events)

	stop()
	cancel()
	h.ConnManager.Remove(sub)
	h.logger.Info().Str("game", gameID).Str("subscriber", sub.ID).Msg("subscriber closed")
}

// readLoop only exists to process pongs and notice the client leaving.
func (h *Handler) readLoop(sub *Subscriber, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("read error")
			}
			return
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, sub *Subscriber, events <-chan relay.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sub.Close(websocket.CloseNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				sub.Close(websocket.CloseNormalClosure, "subscription ended")
				return
			}
			if err := sub.WriteJSON(ev); err != nil {
				h.logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("write failed")
				sub.Close(websocket.CloseInternalServerErr, "")
				return
			}
			if ev.Type == relay.EventDelete {
				sub.Close(websocket.CloseNormalClosure, "game deleted")
				return
			}
		case <-ticker.C:
			if err := sub.Ping(); err != nil {
				sub.Close(websocket.CloseNormalClosure, "")
				return
			}
		}
	}
}
