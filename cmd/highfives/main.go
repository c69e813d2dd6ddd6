package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/highfives-app/highfives/config"
	"github.com/highfives-app/highfives/nostr"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

var (
	cfg config.Config
	log zerolog.Logger
)

var app = &cli.Command{
	Name:      "highfives",
	Usage:     "publicly thank people and pay them over lightning",
	UsageText: "highfives [--config highfives.toml] <serve|resolve|keygen> ...",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a TOML config file, HIGHFIVES_* environment variables override it",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "one of 'debug', 'info', 'warn' or 'error', overrides the config",
		},
	},
	Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
		var err error
		cfg, err = config.Load(c.String("config"))
		if err != nil {
			return ctx, err
		}
		if level := c.String("log-level"); level != "" {
			cfg.LogLevel = level
		}

		level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
		if err != nil {
			return ctx, fmt.Errorf("invalid log level '%s'", cfg.LogLevel)
		}
		log = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		})).Level(level).With().Timestamp().Logger()
		nostr.Logger = log.With().Str("component", "nostr").Logger()

		return ctx, nil
	},
	Commands: []*cli.Command{
		serve,
		resolve,
		keygen,
	},
	DefaultCommand: "serve",
}

func main() {
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
