package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/imgmux/internal/metrics"
	"github.com/desertthunder/imgmux/internal/server"
)

// Serve runs the resolution job API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.resolveConfig(cmd)

	cache, err := r.openCache(config)
	if err != nil {
		return err
	}

	headers, err := r.curlHeaders(cmd, config)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = config.Server.Addr()
	}

	srv := server.New(server.Opts{
		Addr:       addr,
		Cache:      cache,
		Downloader: r.openDownloader(ctx, config, cache, cache, headers),
		Logger:     r.logger,
		Metrics:    metrics.New(),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.writePlain("✓ Listening on %s\n", addr)
	return srv.Run(ctx)
}

// serveCommand runs the HTTP resolution job API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the resolution job API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (host:port), overriding config",
			},
			&cli.StringFlag{
				Name:  "curl-file",
				Usage: "Path to a file containing a cURL command whose headers are replayed",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
		},
		Action: r.Serve,
	}
}
