package bot

import (
	"math"

	"github.com/iamasit07/connect4-remote/internal/domain"
)

const (
	searchDepth = 6
	scoreWin    = 1000000
)

// minimaxMove searches searchDepth plies with alpha-beta pruning.
func minimaxMove(board domain.Board, valid []int, me domain.PlayerID) int {
	if col, ok := winningColumn(board, valid, me); ok {
		return col
	}

	them := domain.Other(me)
	best, bestScore := valid[0], math.MinInt
	alpha, beta := math.MinInt, math.MaxInt
	for _, col := range centerFirst(valid) {
		next, _, _ := domain.ApplyMove(board, col, me)
		score := search(next, searchDepth-1, alpha, beta, false, me, them)
		if score > bestScore {
			best, bestScore = col, score
		}
		alpha = max(alpha, bestScore)
	}
	return best
}

func search(board domain.Board, depth, alpha, beta int, maximizing bool, me, them domain.PlayerID) int {
	valid := domain.ValidMoves(board)
	if depth == 0 || len(valid) == 0 {
		return evaluate(board, me)
	}

	player := them
	if maximizing {
		player = me
	}
	best := math.MaxInt
	if maximizing {
		best = math.MinInt
	}

	for _, col := range centerFirst(valid) {
		next, row, _ := domain.ApplyMove(board, col, player)
		if domain.CheckWin(next, row, col, player) {
			// quicker wins and slower losses score better
			if maximizing {
				return scoreWin - (searchDepth - depth)
			}
			return -scoreWin + (searchDepth - depth)
		}

		score := search(next, depth-1, alpha, beta, !maximizing, me, them)
		if maximizing {
			best = max(best, score)
			alpha = max(alpha, score)
		} else {
			best = min(best, score)
			beta = min(beta, score)
		}
		if beta <= alpha {
			break
		}
	}
	return best
}

// centerFirst orders columns from the centre outwards, which prunes more.
func centerFirst(valid []int) []int {
	out := make([]int, 0, len(valid))
	for _, score := range []int{scoreCenter, scoreNearCenter, scoreOffCenter, 0} {
		for _, col := range valid {
			if centerScore(col) == score {
				out = append(out, col)
			}
		}
	}
	return out
}
