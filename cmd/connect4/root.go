package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/iamasit07/connect4-remote/internal/config"
	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/service/bot"
	"github.com/iamasit07/connect4-remote/internal/service/session"
	"github.com/iamasit07/connect4-remote/internal/transport"
	"github.com/iamasit07/connect4-remote/internal/transport/peer"
	"github.com/iamasit07/connect4-remote/internal/transport/relay"
)

// Options are the client settings after .env, CONNECT4_* variables and
// flags have been applied, in that order.
type Options struct {
	relayURL       string
	relayAPIKey    string
	stunServers    []string
	turnServer     string
	turnUsername   string
	turnCredential string
	moveDelay      time.Duration
	connectTimeout time.Duration
	qr             bool
	verbose        bool
}

func (o *Options) validate() error {
	if o.moveDelay < 0 {
		return errors.New("--move-delay must not be negative")
	}
	if o.connectTimeout <= 0 {
		return errors.New("--connect-timeout must be positive")
	}
	return nil
}

func (o *Options) peerProvider() transport.Provider {
	return peer.NewProvider(peer.Config{
		STUNServers:    o.stunServers,
		TURNServer:     o.turnServer,
		TURNUsername:   o.turnUsername,
		TURNCredential: o.turnCredential,
	}, log.Logger)
}

func (o *Options) relayProvider() transport.Provider {
	return relay.NewProvider(relay.Config{BaseURL: o.relayURL, APIKey: o.relayAPIKey}, log.Logger)
}

func (o *Options) sessionOptions(onChange func(session.Snapshot)) session.Options {
	logger := log.Logger
	return session.Options{
		MoveDelay:      o.moveDelay,
		ConnectTimeout: o.connectTimeout,
		OnChange:       onChange,
		Logger:         &logger,
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.LoadClientConfig()
	opts := &Options{}

	v := viper.New()
	v.SetEnvPrefix("CONNECT4")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "connect4",
		Short:         "Play Connect Four against someone on another machine.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return opts.validate()
		},
	}

	fs := root.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&opts.relayURL, "relay-url", defaults.RelayURL, "relayd base URL (env: CONNECT4_RELAY_URL, RELAY_URL)")
	fs.StringVar(&opts.relayAPIKey, "relay-api-key", defaults.RelayAPIKey, "relayd API key (env: CONNECT4_RELAY_API_KEY, RELAY_API_KEY)")
	fs.StringSliceVar(&opts.stunServers, "stun", defaults.STUNServers, "STUN servers for peer games (env: CONNECT4_STUN)")
	fs.StringVar(&opts.turnServer, "turn", defaults.TURNServer, "TURN server for peer games (env: CONNECT4_TURN)")
	fs.StringVar(&opts.turnUsername, "turn-username", defaults.TURNUsername, "TURN username (env: CONNECT4_TURN_USERNAME)")
	fs.StringVar(&opts.turnCredential, "turn-credential", defaults.TURNCredential, "TURN credential (env: CONNECT4_TURN_CREDENTIAL)")
	fs.DurationVar(&opts.moveDelay, "move-delay", defaults.MoveDelay, "pause between accepting and committing a move (env: CONNECT4_MOVE_DELAY)")
	fs.DurationVar(&opts.connectTimeout, "connect-timeout", defaults.ConnectTimeout, "limit for each connection step (env: CONNECT4_CONNECT_TIMEOUT)")
	fs.BoolVar(&opts.qr, "qr", false, "also print tokens as QR codes (env: CONNECT4_QR)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log transport activity (env: CONNECT4_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			value := v.GetString(f.Name)
			if f.Value.Type() == "stringSlice" {
				value = strings.Join(v.GetStringSlice(f.Name), ",")
			}
			_ = fs.Set(f.Name, value)
		}
	})

	root.AddCommand(newLocalCmd(), newPeerCmd(opts), newRelayCmd(opts))

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.SetVersionTemplate("connect4 v{{.Version}}\n")
	return root
}

func newLocalCmd() *cobra.Command {
	var difficulty string
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Two players taking turns at this terminal, or one against the computer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opponent *bot.Bot
			if difficulty != "" {
				d, err := bot.ParseDifficulty(difficulty)
				if err != nil {
					return err
				}
				opponent = bot.New(domain.Player2, d)
			}
			return playLocal(cmd.InOrStdin(), cmd.OutOrStdout(), opponent)
		},
	}
	cmd.Flags().StringVar(&difficulty, "bot", "", "play O against the computer: easy, medium or hard")
	return cmd
}

func newPeerCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Direct link between two machines, set up by exchanging tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "host",
		Short: "Create a game and print the offer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, opts.peerProvider(), func(s *session.Session) bool {
				return s.CreateRoom()
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "join <offer-token>",
		Short: "Join a game with the host's offer token and print the answer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, opts.peerProvider(), func(s *session.Session) bool {
				return s.JoinRoom(args[0])
			})
		},
	})
	return cmd
}

func newRelayCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Game kept on a relayd server, joined by game id",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a game and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, opts.relayProvider(), func(s *session.Session) bool {
				return s.CreateRoom()
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "join <game-id>",
		Short: "Join a game by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, opts.relayProvider(), func(s *session.Session) bool {
				return s.JoinRoom(args[0])
			})
		},
	})
	return cmd
}

func runSession(cmd *cobra.Command, opts *Options, provider transport.Provider, begin func(*session.Session) bool) error {
	out := newConsole(cmd.OutOrStdout(), opts.qr)
	changed := make(chan struct{}, 1)
	s := session.New(provider, opts.sessionOptions(func(session.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))
	defer s.Close()

	if snap := s.Snapshot(); snap.Phase == session.PhaseError {
		return fmt.Errorf("%s", snap.LastError)
	}
	if !begin(s) {
		return errors.New("could not start the connection")
	}
	return play(cmd.Context(), s, cmd.InOrStdin(), out, changed)
}
