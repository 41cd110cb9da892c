package domain

// Board is a value type: assigning or passing it copies every cell, so a
// move always produces a new board and never touches the caller's.
// Row 0 is the top row and row Rows-1 the bottom.
type Board [Rows][Columns]PlayerID

func NewBoard() Board {
	return Board{}
}

func IsValidMove(board Board, column int) bool {
	if column < 0 || column >= Columns {
		return false
	}

	// here board[0] represents the top row (0 -> top and 5 -> bottom)
	return board[0][column] == Empty
}

// ApplyMove drops player's disk into column and returns the resulting board
// together with the row the disk landed on.
func ApplyMove(board Board, column int, player PlayerID) (Board, int, error) {
	if column < 0 || column >= Columns {
		return board, -1, ErrInvalidColumn
	}

	// shifting the disk from top to bottom till it
	// reaches the end or another disk
	for row := Rows - 1; row >= 0; row-- {
		if board[row][column] == Empty {
			board[row][column] = player
			return board, row, nil
		}
	}

	return board, -1, ErrColumnFull
}

func IsBoardFull(board Board) bool {
	for c := 0; c < Columns; c++ {
		if board[0][c] == Empty {
			return false
		}
	}

	return true
}

// ValidMoves lists every playable column, left to right.
func ValidMoves(board Board) []int {
	moves := make([]int, 0, Columns)
	for col := 0; col < Columns; col++ {
		if IsValidMove(board, col) {
			moves = append(moves, col)
		}
	}
	return moves
}

// Count returns how many disks are on the board.
func (b Board) Count() int {
	n := 0
	for r := range b {
		for c := range b[r] {
			if b[r][c] != Empty {
				n++
			}
		}
	}
	return n
}

// Ints converts the board into the plain integer grid used on the wire
// and in storage.
func (b Board) Ints() [][]int {
	grid := make([][]int, Rows)
	for r := range b {
		grid[r] = make([]int, Columns)
		for c := range b[r] {
			grid[r][c] = int(b[r][c])
		}
	}
	return grid
}

// BoardFromInts is the inverse of Board.Ints. It rejects grids with the
// wrong shape, unknown cell values or floating disks.
func BoardFromInts(grid [][]int) (Board, error) {
	var b Board
	if len(grid) != Rows {
		return b, ErrInvalidBoard
	}
	for r := range grid {
		if len(grid[r]) != Columns {
			return b, ErrInvalidBoard
		}
		for c, v := range grid[r] {
			p := PlayerID(v)
			if p != Empty && !p.Valid() {
				return b, ErrInvalidBoard
			}
			b[r][c] = p
		}
	}
	if !b.Settled() {
		return b, ErrInvalidBoard
	}
	return b, nil
}

// Settled reports whether no empty cell sits beneath an occupied one.
func (b Board) Settled() bool {
	for c := 0; c < Columns; c++ {
		seenEmpty := false
		for r := Rows - 1; r >= 0; r-- {
			if b[r][c] == Empty {
				seenEmpty = true
			} else if seenEmpty {
				return false
			}
		}
	}
	return true
}

// this counts the number of disks in a specific direction
func countDiskInDirection(board Board, row, column, deltaRow, deltaCol int, player PlayerID) int {
	count := 0
	r, c := row+deltaRow, column+deltaCol
	for inBounds(r, c) && board[r][c] == player {
		count++
		r += deltaRow
		c += deltaCol
	}
	return count
}

func inBounds(row, column int) bool {
	return row >= 0 && row < Rows && column >= 0 && column < Columns
}
