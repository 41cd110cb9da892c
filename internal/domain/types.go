package domain

// to represent the players in the game
type PlayerID int

const (
	Empty   PlayerID = 0
	Player1 PlayerID = 1
	Player2 PlayerID = 2
)

// Valid reports whether p is one of the two seated players.
func (p PlayerID) Valid() bool {
	return p == Player1 || p == Player2
}

// Other returns the opponent of p.
func Other(p PlayerID) PlayerID {
	if p == Player1 {
		return Player2
	}
	return Player1
}

// for board representation
const (
	Rows    = 6
	Columns = 7
	ToWin   = 4
)

// Cell addresses one slot of the board.
type Cell struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// to represent the game status
type GameStatus string

const (
	StatusActive GameStatus = "active"
	StatusWon    GameStatus = "won"
	StatusDraw   GameStatus = "draw"
)

// basic error that can occur
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidMove   Error = "invalid move"
	ErrInvalidColumn Error = "column out of range"
	ErrColumnFull    Error = "column is full"
	ErrInvalidBoard  Error = "malformed board"
)
