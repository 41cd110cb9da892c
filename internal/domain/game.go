package domain

// Game is a hot-seat game played by two people on the same device.
type Game struct {
	Board         Board
	CurrentPlayer PlayerID
	Status        GameStatus
	Winner        PlayerID
	WinningCells  []Cell
	MoveCount     int
}

func NewGame() *Game {
	return &Game{
		Board:         NewBoard(),
		CurrentPlayer: Player1,
		Status:        StatusActive,
		Winner:        Empty,
	}
}

// MakeMove plays column for the player whose turn it is and returns the
// landing row.
func (g *Game) MakeMove(column int) (int, error) {
	if g.Status != StatusActive {
		return -1, ErrInvalidMove
	}

	board, row, err := ApplyMove(g.Board, column, g.CurrentPlayer)
	if err != nil {
		return -1, err
	}

	g.Board = board
	g.MoveCount++

	result := Evaluate(g.Board, row, column, g.CurrentPlayer)
	switch result.Outcome {
	case OutcomeWin:
		g.Status = StatusWon
		g.Winner = result.Winner
		g.WinningCells = result.Cells
	case OutcomeDraw:
		g.Status = StatusDraw
	default:
		g.CurrentPlayer = Other(g.CurrentPlayer)
	}

	return row, nil
}

func (g *Game) Reset() {
	*g = *NewGame()
}

func (g *Game) IsFinished() bool {
	return g.Status == StatusWon || g.Status == StatusDraw
}
