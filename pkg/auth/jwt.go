package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "connect4-relayd"

// Claims is what an API key carries. Subject names the client the key
// was issued to.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const ScopeGames = "games"

var ErrInvalidKey = errors.New("invalid api key")

// Keys signs and verifies relay API keys with an HMAC secret.
type Keys struct {
	secret []byte
	now    func() time.Time
}

func NewKeys(secret string) *Keys {
	return &Keys{secret: []byte(secret), now: time.Now}
}

// Issue creates an API key for subject. A zero ttl means the key never
// expires.
func (k *Keys) Issue(subject string, ttl time.Duration) (string, error) {
	now := k.now()
	claims := &Claims{
		Scope: ScopeGames,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(k.secret)
}

// Validate checks the signature, issuer, expiry and scope of an API key.
func (k *Keys) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return k.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(k.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidKey
	}
	if claims.Scope != ScopeGames {
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidKey, claims.Scope)
	}
	return claims, nil
}
