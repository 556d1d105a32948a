package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/imgmux/internal/formatter"
	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
	"github.com/desertthunder/imgmux/internal/sources"
)

// Fetch resolves a ranked candidate list to the best available image.
//
// URLs are ranked best first. The first bytes to arrive are kept as soon as
// possible and replaced whenever a better-ranked variant lands, so the
// command degrades gracefully when the best variants are slow or missing.
func (r *Runner) Fetch(ctx context.Context, cmd *cli.Command) error {
	quiet := cmd.Bool("json")
	if cmd.Bool("open") && cmd.String("output") == "" {
		return fmt.Errorf("%w: --open requires --output", shared.ErrInvalidFlag)
	}

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

	headers, err := r.curlHeaders(cmd, config)
	if err != nil {
		return err
	}

	var cache multiplex.Cache
	var store sources.Store
	var validator sources.Validator
	if tiered, cerr := r.openCache(config); cerr != nil {
		r.logger.Warn("disk cache unavailable, downloads will not be cached", "error", cerr)
	} else {
		store, validator = tiered, tiered
		if cmd.Bool("refresh") {
			r.logger.Debug("cache reads disabled for this resolution")
		} else {
			cache = tiered
		}
	}

	resolver := multiplex.New(src, multiplex.Options{
		Cache:                  cache,
		Downloader:             r.openDownloader(ctx, config, store, validator, headers),
		Logger:                 r.logger,
		DownloadsIntermediates: cmd.Bool("intermediates"),
	})

	events, unsubscribe := resolver.Subscribe(64)
	defer unsubscribe()

	report := formatter.NewReport(ids)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			report.Observe(ev)
			if !quiet {
				r.printEvent(ev)
			}
		}
	}()

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	began := time.Now()
	resolver.SetCandidates(ids...)
	id, img, err := resolver.Await(ctx)
	elapsed := time.Since(began)

	// Closing flushes the final events and ends the drain goroutine, so the
	// report is complete before anything reads it.
	resolver.Close()
	<-drained
	report.Settle(err, elapsed.Round(time.Millisecond).String())

	if path := cmd.String("report"); path != "" {
		written, werr := formatter.WriteReport(report, path)
		if werr != nil {
			return werr
		}
		r.logger.Info("report written", "path", written)
	}
	if quiet {
		if werr := r.writeJSON(report, true); werr != nil {
			return werr
		}
	}

	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	if !quiet {
		r.writePlainln("✓ Resolved %s (%s, %s) in %s", id, img.ContentType, shared.FormatBytes(img.Size()), elapsed.Round(time.Millisecond))
	}

	if out := cmd.String("output"); out != "" {
		if werr := os.WriteFile(out, img.Data, 0644); werr != nil {
			return fmt.Errorf("failed to write image: %w", werr)
		}
		if !quiet {
			r.writePlain("✓ Wrote %s\n", out)
		}
		if cmd.Bool("open") {
			if oerr := shared.OpenPath(out); oerr != nil {
				r.logger.Warn("failed to open image", "error", oerr)
			}
		}
	}

	return nil
}

// printEvent renders one resolution event as a terse progress line. Byte
// progress stays at debug level so terminals aren't flooded.
func (r *Runner) printEvent(ev multiplex.Event[string]) {
	switch ev.Kind {
	case multiplex.KindDownloadStarted:
		r.writePlain("  downloading %s\n", ev.Identifier)
	case multiplex.KindDownloadProgressed:
		r.logger.Debug("download progress", "id", ev.Identifier, "progress", shared.Percent(ev.Fraction))
	case multiplex.KindDownloadFinished:
		if ev.Err != nil {
			r.writePlain("✗ %s: %v\n", ev.Identifier, ev.Err)
		}
	case multiplex.KindImageUpdated:
		if ev.HasPrevious {
			r.writePlain("✓ loaded %s (%s), replacing %s\n", ev.Identifier, shared.FormatBytes(ev.Image.Size()), ev.PreviousIdentifier)
		} else {
			r.writePlain("✓ loaded %s (%s)\n", ev.Identifier, shared.FormatBytes(ev.Image.Size()))
		}
	}
}

// readURLFile reads newline-separated candidate URLs, skipping blank lines
// and # comments.
func readURLFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, nil
}

// fetchCommand resolves ranked image URLs from the command line or a file.
func fetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Resolve ranked image URLs to the best available image",
		UsageText: "imgmux fetch [options] <url> [url ...]   (best first)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the resolved image to this path",
			},
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read candidate URLs from a file, one per line, best first",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a resolution report (.txt, .md or .json by extension)",
			},
			&cli.StringFlag{
				Name:  "curl-file",
				Usage: "Path to a file containing a cURL command whose headers are replayed",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Skip cache reads and download fresh bytes",
			},
			&cli.BoolFlag{
				Name:  "intermediates",
				Usage: "Download worse-ranked candidates while better ones are pending",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the written image with the platform viewer",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the resolution report as JSON instead of progress lines",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Abort resolution after this duration",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
		},
		Action: r.Fetch,
	}
}
