package peer

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/iamasit07/connect4-remote/internal/transport"
)

// DefaultSTUNServers are public servers used when none are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

type Config struct {
	STUNServers    []string
	TURNServer     string
	TURNUsername   string
	TURNCredential string
	// Label names the data channel; both sides must agree.
	Label string
}

func DefaultConfig() Config {
	return Config{
		STUNServers: append([]string(nil), DefaultSTUNServers...),
		Label:       "connect4",
	}
}

// Validate reports configuration the transport cannot work with.
func (c Config) Validate() error {
	if len(c.STUNServers) == 0 && c.TURNServer == "" {
		return fmt.Errorf("%w: set at least one STUN server or a TURN server", transport.ErrNotConfigured)
	}
	for _, s := range c.STUNServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "stuns:") {
			return fmt.Errorf("%w: %q is not a stun: url", transport.ErrNotConfigured, s)
		}
	}
	if c.TURNServer != "" {
		if !strings.HasPrefix(c.TURNServer, "turn:") && !strings.HasPrefix(c.TURNServer, "turns:") {
			return fmt.Errorf("%w: %q is not a turn: url", transport.ErrNotConfigured, c.TURNServer)
		}
		if c.TURNUsername == "" || c.TURNCredential == "" {
			return fmt.Errorf("%w: TURN server needs a username and credential", transport.ErrNotConfigured)
		}
	}
	return nil
}

func (c Config) iceServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if c.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:           []string{c.TURNServer},
			Username:       c.TURNUsername,
			Credential:     c.TURNCredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}

func (c Config) label() string {
	if c.Label == "" {
		return "connect4"
	}
	return c.Label
}
