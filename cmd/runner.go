package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
	"github.com/desertthunder/imgmux/internal/sources"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	cache      *sources.Tiered
	downloader multiplex.Downloader
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Cache      *sources.Tiered
	Downloader multiplex.Downloader
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		cache:      opts.Cache,
		downloader: opts.Downloader,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger, e.g. to redirect output to a file
// while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		fetchCommand, cacheCommand, serveCommand, tuiCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// resolveConfig reloads configuration when the command names a file via
// --config, otherwise it answers with the runner's resolved config.
func (r *Runner) resolveConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")
	if path == "" || path == r.configPath {
		return r.config
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, keeping current", "path", path, "error", err)
		return r.config
	}

	r.config = config
	r.configPath = path
	return config
}

// openCache builds the tiered memory/disk cache from config, memoized on the
// runner so commands share one index handle.
func (r *Runner) openCache(config *shared.Config) (*sources.Tiered, error) {
	if r.cache != nil {
		return r.cache, nil
	}

	disk, err := sources.OpenDiskCache(config.Cache, r.logger)
	if err != nil {
		return nil, err
	}

	r.cache = sources.NewTiered(sources.NewMemoryCache(config.Cache.MemoryEntries), disk)
	return r.cache, nil
}

// openDownloader builds the HTTP downloader from config, wiring the rate
// limiter, replayed browser headers, OAuth and the write-through store.
func (r *Runner) openDownloader(ctx context.Context, config *shared.Config, store sources.Store, validator sources.Validator, headers *shared.CurlHeaders) multiplex.Downloader {
	if r.downloader != nil {
		return r.downloader
	}

	client := r.httpClient
	if client == http.DefaultClient {
		client = &http.Client{Timeout: config.HTTP.Timeout()}
	}
	if config.Auth.Enabled() {
		r.logger.Debug("attaching client-credentials auth", "token_url", config.Auth.TokenURL)
		client = sources.AuthClient(ctx, config.Auth, client)
	}

	var limiter *rate.Limiter
	if config.HTTP.RatePerSecond > 0 {
		burst := config.HTTP.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.HTTP.RatePerSecond), burst)
	}

	r.downloader = sources.NewHTTPDownloader(sources.DownloaderOpts{
		Client:    client,
		UserAgent: config.HTTP.UserAgent,
		MaxBytes:  config.HTTP.MaxBytes,
		Limiter:   limiter,
		Headers:   headers,
		Store:     store,
		Validator: validator,
		Logger:    r.logger,
	})
	return r.downloader
}

// curlHeaders loads browser headers from the --curl-file flag, falling back
// to the configured headers file.
func (r *Runner) curlHeaders(cmd *cli.Command, config *shared.Config) (*shared.CurlHeaders, error) {
	path := cmd.String("curl-file")
	if path == "" {
		path = config.HTTP.HeadersFile
	}
	if path == "" {
		return nil, nil
	}

	headers, err := shared.ParseCurlFile(path)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("loaded request headers", "path", path, "count", len(headers.Headers))
	return headers, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
