package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/iamasit07/connect4-remote/internal/domain"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrUnknownMessage Error = "unknown message type"
	ErrInvalidMessage Error = "invalid message"
)

type wireMessage struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wireData struct {
	Column        *int         `json:"column,omitempty"`
	Player        int          `json:"player,omitempty"`
	Board         [][]int      `json:"board,omitempty"`
	CurrentPlayer int          `json:"currentPlayer,omitempty"`
	Winner        *int         `json:"winner,omitempty"`
	LastMove      *domain.Cell `json:"lastMove,omitempty"`
	Version       int64        `json:"version,omitempty"`
}

// Encode renders msg as {"type": ..., "data": {...}}.
func Encode(msg Message) ([]byte, error) {
	var data *wireData

	switch m := msg.(type) {
	case Move:
		col := m.Column
		data = &wireData{Column: &col, Player: int(m.Player)}
	case State:
		data = &wireData{
			Board:         m.Board.Ints(),
			CurrentPlayer: int(m.CurrentPlayer),
			LastMove:      m.LastMove,
			Version:       m.Version,
		}
		if m.Winner != nil {
			w := int(*m.Winner)
			data.Winner = &w
		}
	case Reset, Ready:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}

	out := wireMessage{Type: msg.Type()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		out.Data = raw
	}
	return json.Marshal(out)
}

// Decode parses and validates a message produced by Encode.
func Decode(b []byte) (Message, error) {
	var in wireMessage
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var data wireData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}

	switch in.Type {
	case TypeMove:
		if data.Column == nil || *data.Column < 0 || *data.Column >= domain.Columns {
			return nil, fmt.Errorf("%w: move column out of range", ErrInvalidMessage)
		}
		player := domain.PlayerID(data.Player)
		if !player.Valid() {
			return nil, fmt.Errorf("%w: move player %d", ErrInvalidMessage, data.Player)
		}
		return Move{Column: *data.Column, Player: player}, nil

	case TypeState:
		return decodeState(data)

	case TypeReset:
		return Reset{}, nil

	case TypeReady:
		return Ready{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, in.Type)
}

func decodeState(data wireData) (State, error) {
	board, err := domain.BoardFromInts(data.Board)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	current := domain.PlayerID(data.CurrentPlayer)
	if !current.Valid() {
		return State{}, fmt.Errorf("%w: current player %d", ErrInvalidMessage, data.CurrentPlayer)
	}

	st := State{
		Board:         board,
		CurrentPlayer: current,
		LastMove:      data.LastMove,
		Version:       data.Version,
	}
	if data.Winner != nil {
		w := domain.PlayerID(*data.Winner)
		if w != domain.Empty && !w.Valid() {
			return State{}, fmt.Errorf("%w: winner %d", ErrInvalidMessage, *data.Winner)
		}
		st.Winner = &w
	}
	if st.LastMove != nil && (st.LastMove.Row < 0 || st.LastMove.Row >= domain.Rows ||
		st.LastMove.Column < 0 || st.LastMove.Column >= domain.Columns) {
		return State{}, fmt.Errorf("%w: last move off the board", ErrInvalidMessage)
	}
	return st, nil
}

// Envelope frames a message on the peer link with a per-sender sequence
// number starting at 1.
type Envelope struct {
	Seq     uint64          `json:"seq"`
	Message json.RawMessage `json:"message"`
}

func EncodeEnvelope(seq uint64, msg Message) ([]byte, error) {
	raw, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Seq: seq, Message: raw})
}

func DecodeEnvelope(b []byte) (uint64, Message, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.Seq == 0 {
		return 0, nil, fmt.Errorf("%w: missing sequence number", ErrInvalidMessage)
	}
	msg, err := Decode(env.Message)
	if err != nil {
		return 0, nil, err
	}
	return env.Seq, msg, nil
}
