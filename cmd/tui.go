package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
	"github.com/desertthunder/imgmux/internal/sources"
	"github.com/desertthunder/imgmux/internal/ui"
)

// TUI launches the interactive progressive image viewer.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	raws := cmd.Args().Slice()
	if file := cmd.String("file"); file != "" {
		fromFile, err := readURLFile(file)
		if err != nil {
			return err
		}
		raws = append(raws, fromFile...)
	}
	if len(raws) == 0 {
		return fmt.Errorf("%w: at least one image URL", shared.ErrMissingArgument)
	}

	config := r.resolveConfig(cmd)

	src, ids, err := sources.FromURLs(raws)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/imgmux-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	var cache multiplex.Cache
	var store sources.Store
	var validator sources.Validator
	if tiered, cerr := r.openCache(config); cerr != nil {
		r.logger.Warn("disk cache unavailable, downloads will not be cached", "error", cerr)
	} else {
		cache, store, validator = tiered, tiered, tiered
	}

	headers, err := r.curlHeaders(cmd, config)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, ids, src, multiplex.Options{
		Cache:                  cache,
		Downloader:             r.openDownloader(ctx, config, store, validator, headers),
		Logger:                 r.logger,
		DownloadsIntermediates: cmd.Bool("intermediates"),
	})
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// tuiCommand launches the progressive viewer.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tui",
		Usage:     "Watch a resolution progress in the terminal",
		UsageText: "imgmux tui [options] <url> [url ...]   (best first)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read candidate URLs from a file, one per line, best first",
			},
			&cli.StringFlag{
				Name:  "curl-file",
				Usage: "Path to a file containing a cURL command whose headers are replayed",
			},
			&cli.BoolFlag{
				Name:  "intermediates",
				Usage: "Download worse-ranked candidates while better ones are pending",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
		},
		Action: r.TUI,
	}
}
