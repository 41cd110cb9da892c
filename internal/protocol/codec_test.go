package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamasit07/connect4-remote/internal/domain"
)

func TestEncodeMoveWireFormat(t *testing.T) {
	b, err := Encode(Move{Column: 0, Player: domain.Player2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"move","data":{"column":0,"player":2}}`, string(b))
}

func TestEncodeNoDataMessages(t *testing.T) {
	b, err := Encode(Reset{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reset"}`, string(b))

	msg, err := Decode([]byte(`{"type":"ready"}`))
	require.NoError(t, err)
	assert.Equal(t, Ready{}, msg)
}

func TestStateKeepsDrawDistinctFromInProgress(t *testing.T) {
	board, _, err := domain.ApplyMove(domain.NewBoard(), 3, domain.Player1)
	require.NoError(t, err)

	draw := State{Board: board, CurrentPlayer: domain.Player2, Winner: Draw()}
	b, err := Encode(draw)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"winner":0`)

	msg, err := Decode(b)
	require.NoError(t, err)
	st, ok := msg.(State)
	require.True(t, ok)
	require.NotNil(t, st.Winner)
	assert.Equal(t, domain.Empty, *st.Winner)
	assert.True(t, st.Finished())

	open := State{Board: board, CurrentPlayer: domain.Player2, LastMove: &domain.Cell{Row: 5, Column: 3}}
	b, err = Encode(open)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "winner")

	msg, err = Decode(b)
	require.NoError(t, err)
	assert.Equal(t, open, msg)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"not json":        `{`,
		"unknown type":    `{"type":"chat_message"}`,
		"column too big":  `{"type":"move","data":{"column":7,"player":1}}`,
		"missing column":  `{"type":"move","data":{"player":1}}`,
		"bad player":      `{"type":"move","data":{"column":1,"player":3}}`,
		"short board":     `{"type":"state","data":{"board":[[0]],"currentPlayer":1}}`,
		"bad turn":        `{"type":"state","data":{"board":[[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0]],"currentPlayer":0}}`,
		"floating disk":   `{"type":"state","data":{"board":[[1,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0]],"currentPlayer":1}}`,
		"winner too high": `{"type":"state","data":{"board":[[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0]],"currentPlayer":1,"winner":5}}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			assert.Error(t, err)
		})
	}

	_, err := Decode([]byte(`{"type":"chat_message"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestEnvelope(t *testing.T) {
	b, err := EncodeEnvelope(7, Move{Column: 6, Player: domain.Player1})
	require.NoError(t, err)

	seq, msg, err := DecodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, Move{Column: 6, Player: domain.Player1}, msg)

	_, _, err = DecodeEnvelope([]byte(`{"message":{"type":"reset"}}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
