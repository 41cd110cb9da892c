package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	relaysvc "github.com/iamasit07/connect4-remote/internal/service/relay"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

// api is a thin client for the relayd HTTP API.
type api struct {
	base   string
	key    string
	client *http.Client
}

func (a *api) do(ctx context.Context, method, path string, body any) (*relaysvc.Game, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var g relaysvc.Game
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

// statusError maps relayd responses onto transport errors.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return transport.ErrSessionNotFound
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", transport.ErrConflict, body.Error)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: relay rejected the api key", transport.ErrNotConfigured)
	}
	return fmt.Errorf("relay returned %d: %s", resp.StatusCode, body.Error)
}

func gamePath(id string) string {
	return "/api/games/" + url.PathEscape(id)
}

func (a *api) create(ctx context.Context) (*relaysvc.Game, error) {
	return a.do(ctx, http.MethodPost, "/api/games", nil)
}

func (a *api) get(ctx context.Context, id string) (*relaysvc.Game, error) {
	return a.do(ctx, http.MethodGet, gamePath(id), nil)
}

func (a *api) join(ctx context.Context, id string) (*relaysvc.Game, error) {
	return a.do(ctx, http.MethodPost, gamePath(id)+"/join", nil)
}

func (a *api) update(ctx context.Context, id string, u relaysvc.Update) (*relaysvc.Game, error) {
	return a.do(ctx, http.MethodPut, gamePath(id), u)
}

func (a *api) reset(ctx context.Context, id string) (*relaysvc.Game, error) {
	return a.do(ctx, http.MethodPost, gamePath(id)+"/reset", nil)
}

// subscribe opens the change stream of one game.
func (a *api) subscribe(ctx context.Context, id string) (*websocket.Conn, error) {
	wsURL := a.base + gamePath(id) + "/subscribe"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.key)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if serr := statusError(resp); serr != nil {
				return nil, serr
			}
		}
		return nil, err
	}
	return conn, nil
}
