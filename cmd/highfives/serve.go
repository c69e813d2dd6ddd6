package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/highfives-app/highfives/sdk"
	"github.com/highfives-app/highfives/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

var serve = &cli.Command{
	Name:        "serve",
	Usage:       "runs the HTTP API",
	Description: "serves payment resolution and high fives over HTTP until interrupted. notes are only broadcast when a secret key is configured.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "address to listen on, overrides the config",
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		if listen := c.String("listen"); listen != "" {
			cfg.Listen = listen
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := cfg.OpenStore(&log)
		if err != nil {
			return err
		}

		mods, err := cfg.SystemModifiers()
		if err != nil {
			db.Close()
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		sys := sdk.NewSystem(append(mods,
			sdk.WithStore(db),
			sdk.WithRegisterer(reg),
			sdk.WithLogger(&log),
		)...)
		defer sys.Close()

		if pk, ok := sys.PublicKey(); ok {
			log.Info().Str("pubkey", pk.Hex()).Strs("relays", sys.Broadcaster.Relays).Msg("broadcasting enabled")
		} else {
			log.Warn().Msg("no secret key configured, high fives won't be broadcast")
		}

		srv := server.New(sys)
		srv.Gatherer = reg
		srv.CORSOrigins = cfg.CORSOrigins
		srv.Logger = &log

		return srv.Start(ctx, cfg.Listen)
	},
}
