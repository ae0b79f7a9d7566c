// Package config binds command-line flags and TRIVIA_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TRIVIA"

// Config is shared by the server and historian binaries. Each binary reads
// the subset it needs.
type Config struct {
	Bind     string
	Port     int
	LogLevel string

	DatabaseURL string
	AutoMigrate bool
	RedisAddr   string
	RedisDB     int
	QueueName   string

	Grace        time.Duration
	Cooldown     time.Duration
	WriteBuffer  int
	QuestionFile string

	JWTPrivateKey  string
	JWTPublicKey   string
	TokenTTL       time.Duration
	AllowedOrigins []string

	HistorianBatch int
	HistorianFlush time.Duration
}

// Validate rejects combinations that cannot work.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("both --jwt-private-key and --jwt-public-key must be provided together")
	}
	if c.Grace <= 0 {
		return fmt.Errorf("grace window must be positive: %s", c.Grace)
	}
	if c.WriteBuffer < 1 {
		return fmt.Errorf("write buffer must be at least 1: %d", c.WriteBuffer)
	}
	if c.HistorianBatch < 1 {
		return fmt.Errorf("historian batch size must be at least 1: %d", c.HistorianBatch)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// RunFunc is the body of a binary once configuration is loaded.
type RunFunc func(ctx context.Context, cfg *Config) error

// NewCommand returns a root command whose flags fill cfg. Environment
// variables override defaults; explicit flags override both.
func NewCommand(use, short, version string, cfg *Config, run RunFunc) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    cobra.ExactArgs(0),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: TRIVIA_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: TRIVIA_PORT)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "logrus level (env: TRIVIA_LOG_LEVEL)")

	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string, empty disables persistence (env: TRIVIA_DATABASE_URL)")
	fs.BoolVar(&cfg.AutoMigrate, "auto-migrate", false, "apply the schema on startup (env: TRIVIA_AUTO_MIGRATE)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the history queue, empty writes straight to postgres (env: TRIVIA_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: TRIVIA_REDIS_DB)")
	fs.StringVar(&cfg.QueueName, "queue-name", "trivia_history", "redis list holding history records (env: TRIVIA_QUEUE_NAME)")

	fs.DurationVar(&cfg.Grace, "grace", 30*time.Second, "how long a disconnected member keeps their seat (env: TRIVIA_GRACE)")
	fs.DurationVar(&cfg.Cooldown, "cooldown", 3*time.Second, "pause between solo questions (env: TRIVIA_COOLDOWN)")
	fs.IntVar(&cfg.WriteBuffer, "write-buffer", 64, "outbound frames buffered per connection (env: TRIVIA_WRITE_BUFFER)")
	fs.StringVar(&cfg.QuestionFile, "question-file", "", "JSON question bank replacing the built-in one (env: TRIVIA_QUESTION_FILE)")

	fs.StringVar(&cfg.JWTPrivateKey, "jwt-private-key", "", "path to ed25519 private key PEM (env: TRIVIA_JWT_PRIVATE_KEY)")
	fs.StringVar(&cfg.JWTPublicKey, "jwt-public-key", "", "path to ed25519 public key PEM (env: TRIVIA_JWT_PUBLIC_KEY)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", 24*time.Hour, "lifetime of guest tokens, 0 for none (env: TRIVIA_TOKEN_TTL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"*"}, "CORS and websocket origins (env: TRIVIA_ALLOWED_ORIGINS)")

	fs.IntVar(&cfg.HistorianBatch, "historian-batch", 20, "records per postgres transaction (env: TRIVIA_HISTORIAN_BATCH)")
	fs.DurationVar(&cfg.HistorianFlush, "historian-flush", 500*time.Millisecond, "max time a record waits in a partial batch (env: TRIVIA_HISTORIAN_FLUSH)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
