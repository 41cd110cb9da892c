package uid

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// alphabet leaves out characters that are easy to misread when a game id
// is dictated or copied by hand (0/o, 1/l/i).
const alphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const GameIDLength = 8

// GenerateGameID returns a short random id players can share by hand.
func GenerateGameID() (string, error) {
	bytes := make([]byte, GameIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate game ID: %v", err)
	}
	id := make([]byte, GameIDLength)
	for i, b := range bytes {
		id[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(id), nil
}

// ValidGameID reports whether id could have come from GenerateGameID.
func ValidGameID(id string) bool {
	if len(id) != GameIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(alphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}
