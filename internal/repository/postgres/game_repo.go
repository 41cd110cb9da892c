package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/service/relay"
)

const uniqueViolation = "23505"

// GameRepo stores relay records in the games table.
type GameRepo struct {
	DB *sql.DB
}

func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{DB: db}
}

const gameColumns = `id, board, turn, winner, status, last_move, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*relay.Game, error) {
	var (
		g         relay.Game
		boardJSON []byte
		moveJSON  []byte
		winner    sql.NullInt16
		status    string
	)
	err := row.Scan(&g.ID, &boardJSON, &g.Turn, &winner, &status, &moveJSON, &g.Version, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(boardJSON, &g.Board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %v", err)
	}
	if winner.Valid {
		w := domain.PlayerID(winner.Int16)
		g.Winner = &w
	}
	if len(moveJSON) > 0 {
		var m domain.Cell
		if err := json.Unmarshal(moveJSON, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last move: %v", err)
		}
		g.LastMove = &m
	}
	g.Status = relay.Status(status)
	return &g, nil
}

// encode returns the column values shared by insert and update.
func encode(g *relay.Game) (board string, winner sql.NullInt16, lastMove sql.NullString, err error) {
	b, err := json.Marshal(g.Board)
	if err != nil {
		return "", winner, lastMove, fmt.Errorf("failed to marshal board: %v", err)
	}
	if g.Winner != nil {
		winner = sql.NullInt16{Int16: int16(*g.Winner), Valid: true}
	}
	if g.LastMove != nil {
		m, err := json.Marshal(g.LastMove)
		if err != nil {
			return "", winner, lastMove, fmt.Errorf("failed to marshal last move: %v", err)
		}
		lastMove = sql.NullString{String: string(m), Valid: true}
	}
	return string(b), winner, lastMove, nil
}

func (r *GameRepo) Create(ctx context.Context, g *relay.Game) error {
	board, winner, lastMove, err := encode(g)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO games (` + gameColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = r.DB.ExecContext(ctx, query, g.ID, board, g.Turn, winner, string(g.Status), lastMove, g.Version, g.CreatedAt, g.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return relay.ErrExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert game: %v", err)
	}
	return nil
}

func (r *GameRepo) Get(ctx context.Context, id string) (*relay.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1;`
	g, err := scanGame(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, relay.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game by ID: %v", err)
	}
	return g, nil
}

// Update writes g only while the row still carries the expected version.
func (r *GameRepo) Update(ctx context.Context, g *relay.Game, expected int64) error {
	board, winner, lastMove, err := encode(g)
	if err != nil {
		return err
	}
	query := `
	UPDATE games
	SET board = $3, turn = $4, winner = $5, status = $6, last_move = $7, version = $8, updated_at = $9
	WHERE id = $1 AND version = $2;
	`
	res, err := r.DB.ExecContext(ctx, query, g.ID, expected, board, g.Turn, winner, string(g.Status), lastMove, g.Version, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update game: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update game: %v", err)
	}
	if n == 1 {
		return nil
	}

	// nothing matched: either the row is gone or someone else won the race
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1);`, g.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check game: %v", err)
	}
	if !exists {
		return relay.ErrNotFound
	}
	return relay.ErrConflict
}

func (r *GameRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM games WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete game: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete game: %v", err)
	}
	if n == 0 {
		return relay.ErrNotFound
	}
	return nil
}

func (r *GameRepo) DeleteStale(ctx context.Context, before time.Time) ([]*relay.Game, error) {
	query := `DELETE FROM games WHERE updated_at < $1 RETURNING ` + gameColumns + `;`
	rows, err := r.DB.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale games: %v", err)
	}
	defer rows.Close()

	var removed []*relay.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game row: %v", err)
		}
		removed = append(removed, g)
	}
	return removed, rows.Err()
}
