package bot

import (
	"github.com/iamasit07/connect4-remote/internal/domain"
)

// Column scores for the medium bot, highest priority first.
const (
	scoreWinNow       = 100000
	scoreBlockWin     = 10000
	scoreWinThreat    = 8000
	scoreBlockThreat  = 5000
	scoreThreeInRow   = 400
	scoreTwoInRow     = 100
	scoreSingle       = 25
	scoreCenter       = 30
	scoreNearCenter   = 20
	scoreOffCenter    = 5
	positionWeight    = 10
	twoInRowWeight    = 50
	threeInRowWeight  = 500
	centerColumnBonus = 2 * positionWeight
)

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// mediumMove scores every column on immediate wins and blocks, one-move
// threats, line potential and closeness to the centre.
func mediumMove(board domain.Board, valid []int, me domain.PlayerID) int {
	them := domain.Other(me)
	threatNow := threatScore(board, them, me)

	scores := make(map[int]int, len(valid))
	for _, col := range valid {
		mine, myRow, _ := domain.ApplyMove(board, col, me)
		theirs, theirRow, _ := domain.ApplyMove(board, col, them)

		score := 0
		if domain.CheckWin(mine, myRow, col, me) {
			score += scoreWinNow
		}
		if domain.CheckWin(theirs, theirRow, col, them) {
			score += scoreBlockWin
		}
		score += threatScore(mine, me, them)
		if threatScore(mine, them, me) < threatNow {
			score += scoreBlockThreat
		}
		score += lineScore(mine, myRow, col, me)
		score += lineScore(theirs, theirRow, col, them) / 2
		score += centerScore(col)
		scores[col] = score
	}
	return bestColumn(scores)
}

func centerScore(col int) int {
	d := col - domain.Columns/2
	if d < 0 {
		d = -d
	}
	switch d {
	case 0:
		return scoreCenter
	case 1:
		return scoreNearCenter
	case 2:
		return scoreOffCenter
	}
	return 0
}

// bestColumn returns the highest scoring column, preferring the centre on
// ties.
func bestColumn(scores map[int]int) int {
	best, bestScore := -1, 0
	for col := 0; col < domain.Columns; col++ {
		score, ok := scores[col]
		if !ok {
			continue
		}
		if best < 0 || score > bestScore ||
			(score == bestScore && centerScore(col) > centerScore(best)) {
			best, bestScore = col, score
		}
	}
	return best
}

// threatScore rates how close player is to a win the opponent cannot stop.
func threatScore(board domain.Board, player, opponent domain.PlayerID) int {
	var winning []int
	for _, col := range domain.ValidMoves(board) {
		if wins(board, col, player) {
			winning = append(winning, col)
		}
	}
	switch len(winning) {
	case 0:
		return 0
	case 1:
		blocked, _, _ := domain.ApplyMove(board, winning[0], opponent)
		if _, ok := winningColumn(blocked, domain.ValidMoves(blocked), player); ok {
			return scoreWinThreat / 2
		}
		return scoreWinThreat / 4
	}
	return scoreWinThreat
}

// lineScore rates the open lines through (row, col).
func lineScore(board domain.Board, row, col int, player domain.PlayerID) int {
	score := 0
	for _, d := range directions {
		fwd := run(board, row, col, d[0], d[1], player)
		back := run(board, row, col, -d[0], -d[1], player)
		if !extendable(board, row, col, d[0], d[1], fwd, back) {
			continue
		}
		switch total := fwd + back; {
		case total >= 3:
			score += scoreThreeInRow
		case total == 2:
			score += scoreTwoInRow
		case total == 1:
			score += scoreSingle
		}
	}
	return score
}

// evaluate is the static score of a position from me's point of view.
func evaluate(board domain.Board, me domain.PlayerID) int {
	them := domain.Other(me)
	score := 0
	for row := 0; row < domain.Rows; row++ {
		for col := 0; col < domain.Columns; col++ {
			switch board[row][col] {
			case me:
				score += potential(board, row, col, me)
			case them:
				score -= potential(board, row, col, them)
			}
		}
		switch board[row][domain.Columns/2] {
		case me:
			score += centerColumnBonus
		case them:
			score -= centerColumnBonus
		}
	}
	return score
}

func potential(board domain.Board, row, col int, player domain.PlayerID) int {
	score := positionWeight
	for _, d := range directions {
		fwd := run(board, row, col, d[0], d[1], player)
		back := run(board, row, col, -d[0], -d[1], player)
		if !extendable(board, row, col, d[0], d[1], fwd, back) {
			continue
		}
		switch total := fwd + back; {
		case total >= 3:
			score += threeInRowWeight
		case total == 2:
			score += twoInRowWeight
		}
	}
	return score
}

// run counts player's disks from (row, col) in one direction, excluding
// the starting cell.
func run(board domain.Board, row, col, dRow, dCol int, player domain.PlayerID) int {
	n := 0
	for r, c := row+dRow, col+dCol; inBounds(r, c) && board[r][c] == player; r, c = r+dRow, c+dCol {
		n++
	}
	return n
}

// extendable reports whether either end of the line can take a disk on the
// next move.
func extendable(board domain.Board, row, col, dRow, dCol, fwd, back int) bool {
	return playable(board, row+dRow*(fwd+1), col+dCol*(fwd+1)) ||
		playable(board, row-dRow*(back+1), col-dCol*(back+1))
}

func playable(board domain.Board, row, col int) bool {
	if !inBounds(row, col) || board[row][col] != domain.Empty {
		return false
	}
	return row == domain.Rows-1 || board[row+1][col] != domain.Empty
}

func inBounds(row, col int) bool {
	return row >= 0 && row < domain.Rows && col >= 0 && col < domain.Columns
}
