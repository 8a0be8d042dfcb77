// Command racer is a terminal client for multiplayer typing races. It
// talks to a race backend over REST for room management and keeps a
// realtime room channel open for live progress.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	serverURL    string
	natsURL      string
	transport    string
	nickname     string
	mode         string
	inputMode    string
	duration     time.Duration
	wordCount    int
	verbose      bool
	identityPath string
}

func (c *config) validate() error {
	switch c.transport {
	case "websocket", "nats":
	default:
		return fmt.Errorf("invalid transport %q (must be websocket or nats)", c.transport)
	}
	switch c.mode {
	case "words", "time":
	default:
		return fmt.Errorf("invalid mode %q (must be words or time)", c.mode)
	}
	switch c.inputMode {
	case "char-stream", "word-committed":
	default:
		return fmt.Errorf("invalid input policy %q (must be char-stream or word-committed)", c.inputMode)
	}
	if c.wordCount <= 0 {
		return fmt.Errorf("word count must be positive: %d", c.wordCount)
	}
	return nil
}

func newRootCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RACER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "racer",
		Short:         "Race your friends on a shared text passage, live in the terminal.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindEnv := func(fs *pflag.FlagSet) {
				fs.VisitAll(func(f *pflag.Flag) {
					if !f.Changed && v.IsSet(f.Name) {
						f.Value.Set(v.GetString(f.Name))
					}
				})
			}
			bindEnv(cmd.Flags())
			bindEnv(cmd.InheritedFlags())
			if err := loadProfile(cfg); err != nil {
				return err
			}
			if cfg.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.WarnLevel)
			}
			return cfg.validate()
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&cfg.serverURL, "server", "http://localhost:8080", "race backend base URL (env: RACER_SERVER)")
	fs.StringVar(&cfg.natsURL, "nats-url", "nats://localhost:4222", "NATS server URL for --transport nats (env: RACER_NATS_URL)")
	fs.StringVar(&cfg.transport, "transport", "websocket", "room channel transport: websocket or nats (env: RACER_TRANSPORT)")
	fs.StringVarP(&cfg.nickname, "nickname", "n", "", "display name for this player (env: RACER_NICKNAME)")
	fs.StringVar(&cfg.mode, "mode", "words", "round mode: words or time (env: RACER_MODE)")
	fs.StringVar(&cfg.inputMode, "input", "char-stream", "input policy: char-stream or word-committed (env: RACER_INPUT)")
	fs.DurationVar(&cfg.duration, "duration", 60*time.Second, "round length in time mode (env: RACER_DURATION)")
	fs.IntVar(&cfg.wordCount, "words", 50, "passage length in words (env: RACER_WORDS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "debug logging (env: RACER_VERBOSE)")
	fs.StringVar(&cfg.identityPath, "identity", "", "identity store path (default: per-user config dir)")

	cmd.AddCommand(newCreateCmd(cfg))
	cmd.AddCommand(newJoinCmd(cfg))
	cmd.AddCommand(newRoomsCmd(cfg))
	cmd.AddCommand(newSoloCmd(cfg))
	return cmd
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg := &config{}
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
