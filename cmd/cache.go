package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/imgmux/internal/formatter"
	"github.com/desertthunder/imgmux/internal/shared"
)

// CacheInfo prints aggregate statistics for the on-disk image cache.
func (r *Runner) CacheInfo(ctx context.Context, cmd *cli.Command) error {
	config := r.resolveConfig(cmd)
	cache, err := r.openCache(config)
	if err != nil {
		return err
	}

	stats, err := cache.Disk().Stats()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	text, err := formatter.StatsText(stats)
	if err != nil {
		return err
	}

	r.writePlainHeader("Image Cache")
	r.writePlain("Location: %s\n", cache.Disk().Dir())
	if config.Cache.MaxBytes > 0 {
		r.writePlain("Budget: %s\n", shared.FormatBytes(config.Cache.MaxBytes))
	}
	return r.writePlain("%s", text)
}

// CacheList renders the cache index in insertion order.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	config := r.resolveConfig(cmd)
	cache, err := r.openCache(config)
	if err != nil {
		return err
	}

	blobs, err := cache.Disk().List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(formatter.CacheEntries(blobs), true)
	}

	table, err := formatter.CacheTable(blobs)
	if err != nil {
		return err
	}
	return r.writePlain("%s", table)
}

// CachePrune evicts coldest entries until the cache fits its size budget.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	config := r.resolveConfig(cmd)
	cache, err := r.openCache(config)
	if err != nil {
		return err
	}

	evicted, err := cache.Disk().Prune()
	if err != nil {
		return err
	}

	if evicted == 0 {
		r.writePlainln("✓ Cache within budget, nothing to prune")
		return nil
	}
	r.writePlainln("✓ Evicted %d cached images", evicted)
	return nil
}

// CacheClear removes every cached image and its index row.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	config := r.resolveConfig(cmd)
	cache, err := r.openCache(config)
	if err != nil {
		return err
	}

	removed, err := cache.Disk().Clear()
	if err != nil {
		return err
	}

	r.writePlainln("✓ Removed %d cached images", removed)
	return nil
}

// CacheRemove evicts a single URL from the cache.
func (r *Runner) CacheRemove(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.StringArg("url")
	if rawURL == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	config := r.resolveConfig(cmd)
	cache, err := r.openCache(config)
	if err != nil {
		return err
	}

	if err := cache.Disk().Remove(rawURL); err != nil {
		return err
	}

	r.writePlainln("✓ Evicted %s", rawURL)
	return nil
}

// cacheCommand inspects and maintains the on-disk image cache.
func cacheCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Output as JSON",
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the image cache",
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show cache statistics",
				Flags:  []cli.Flag{configFlag, jsonFlag},
				Action: r.CacheInfo,
			},
			{
				Name:    "ls",
				Aliases: []string{"list"},
				Usage:   "List cached images",
				Flags:   []cli.Flag{configFlag, jsonFlag},
				Action:  r.CacheList,
			},
			{
				Name:   "prune",
				Usage:  "Evict coldest images until the cache fits its budget",
				Flags:  []cli.Flag{configFlag},
				Action: r.CachePrune,
			},
			{
				Name:   "clear",
				Usage:  "Remove all cached images",
				Flags:  []cli.Flag{configFlag},
				Action: r.CacheClear,
			},
			{
				Name:  "rm",
				Usage: "Evict one URL from the cache",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url", UsageText: "source URL to evict"},
				},
				Flags:  []cli.Flag{configFlag},
				Action: r.CacheRemove,
			},
		},
	}
}
