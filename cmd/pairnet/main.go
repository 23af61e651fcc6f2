// Command pairnet runs the binary referral network: an HTTP API over the
// placement tree and PV ledger, plus the session-window pair classifier.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pairnet/internal/config"
	"pairnet/internal/logging"
)

func main() {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pairnet",
		Short:         "Binary referral network core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}

	flags := root.PersistentFlags()
	flags.String("storage", "", "storage backend (memory, postgres)")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("checkpoints", "", "checkpoint backend (store, redis)")
	flags.String("redis-addr", "", "Redis address for checkpoints")
	flags.String("timezone", "", "IANA timezone of the session schedule")
	flags.StringSlice("session-starts", nil, "eight HH:MM window starts")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")

	root.AddCommand(a.serveCmd())
	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.sessionCmd())
	root.AddCommand(a.classifyCmd())
	return root
}

// load reads the environment, applies explicitly set flags on top, and
// validates the result.
func (a *app) load(flags *pflag.FlagSet) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(flags, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// applyFlags copies flags the user set into cfg. Unset flags keep env values.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	strs := map[string]*string{
		"storage":      &cfg.Storage,
		"postgres-dsn": &cfg.PostgresDSN,
		"checkpoints":  &cfg.Checkpoints,
		"redis-addr":   &cfg.RedisAddr,
		"timezone":     &cfg.Timezone,
		"log-level":    &cfg.LogLevel,
		"log-format":   &cfg.LogFormat,
		"http-addr":    &cfg.HTTPAddr,
	}
	for name, target := range strs {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*target = v
	}

	if flags.Changed("session-starts") {
		starts, err := flags.GetStringSlice("session-starts")
		if err != nil {
			return err
		}
		cfg.SessionStarts = starts
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		d, err := flags.GetDuration("interval")
		if err != nil {
			return err
		}
		cfg.ClassifyInterval = d
	}
	return nil
}

// loadEnvFile sets variables from ./.env without overriding the environment.
// A missing file is not an error.
func loadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func formatWindow(label string, index int, start, end time.Time, remaining time.Duration) string {
	return fmt.Sprintf("%-8s window %d  %s - %s  (%s)",
		label, index, start.Format("15:04"), end.Format("15:04"), remaining.Truncate(time.Second))
}
