package peer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/iamasit07/connect4-remote/internal/transport"
)

// EncodeToken turns a session description into text a user can copy: the
// JSON form of the description in unpadded base64url.
func EncodeToken(desc webrtc.SessionDescription) (string, error) {
	b, err := json.Marshal(desc)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeToken parses a token produced by EncodeToken and checks that it
// carries a description of the wanted type.
func DecodeToken(token string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription

	token = strings.TrimSpace(token)
	// tolerate tokens that went through a padded encoder
	token = strings.TrimRight(token, "=")
	if token == "" {
		return desc, transport.ErrMalformedToken
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return desc, fmt.Errorf("%w: %v", transport.ErrMalformedToken, err)
	}
	if err := json.Unmarshal(b, &desc); err != nil {
		return desc, fmt.Errorf("%w: %v", transport.ErrMalformedToken, err)
	}
	if desc.Type != want {
		return desc, fmt.Errorf("%w: expected %s, got %s", transport.ErrMalformedToken, want, desc.Type)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return desc, fmt.Errorf("%w: empty description", transport.ErrMalformedToken)
	}
	return desc, nil
}
