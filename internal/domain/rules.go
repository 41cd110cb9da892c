package domain

// axes are checked in this order; the first one holding a run wins the
// tie-break in WinningCells.
var axes = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal down-right
	{1, -1}, // diagonal down-left
}

// CheckWin only looks at lines passing through (row, column), counting
// outward from the placed disk in both directions of each axis.
func CheckWin(board Board, row, column int, player PlayerID) bool {
	if !inBounds(row, column) || board[row][column] != player {
		return false
	}
	for _, axis := range axes {
		count := 1 +
			countDiskInDirection(board, row, column, axis[0], axis[1], player) +
			countDiskInDirection(board, row, column, -axis[0], -axis[1], player)
		if count >= ToWin {
			return true
		}
	}
	return false
}

// WinningCells returns the run through (row, column) on the first axis that
// reaches ToWin: the placed cell, then the cells in the forward direction,
// then those in the backward direction. Returns nil when there is no run.
func WinningCells(board Board, row, column int, player PlayerID) []Cell {
	if !inBounds(row, column) || board[row][column] != player {
		return nil
	}
	for _, axis := range axes {
		cells := []Cell{{Row: row, Column: column}}
		cells = appendRun(cells, board, row, column, axis[0], axis[1], player)
		cells = appendRun(cells, board, row, column, -axis[0], -axis[1], player)
		if len(cells) >= ToWin {
			return cells
		}
	}
	return nil
}

func appendRun(cells []Cell, board Board, row, column, deltaRow, deltaCol int, player PlayerID) []Cell {
	r, c := row+deltaRow, column+deltaCol
	for inBounds(r, c) && board[r][c] == player {
		cells = append(cells, Cell{Row: r, Column: c})
		r += deltaRow
		c += deltaCol
	}
	return cells
}

// Outcome classifies a position after a move.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeWin
	OutcomeDraw
)

// Result is the terminal state of a game, if any.
type Result struct {
	Outcome Outcome
	Winner  PlayerID
	Cells   []Cell
}

func (r Result) Terminal() bool {
	return r.Outcome != OutcomeNone
}

// Evaluate decides the result after player landed a disk at (row, column).
func Evaluate(board Board, row, column int, player PlayerID) Result {
	if cells := WinningCells(board, row, column, player); len(cells) > 0 {
		return Result{Outcome: OutcomeWin, Winner: player, Cells: cells}
	}
	if IsBoardFull(board) {
		return Result{Outcome: OutcomeDraw}
	}
	return Result{}
}
