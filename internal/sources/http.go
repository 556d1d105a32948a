package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const readChunkSize = 32 * 1024

// Store persists fetched images so later candidates for the same URL can be
// served without the network. Put failures are logged, never fatal: an image
// that downloaded but didn't cache is still an image.
type Store interface {
	Put(ctx context.Context, u *url.URL, img *multiplex.Image, etag string) error
}

// Validator supplies conditional-request state. When ETag returns a non-empty
// tag the downloader sends If-None-Match and resolves a 304 through Cached.
type Validator interface {
	ETag(ctx context.Context, u *url.URL) string
	Cached(ctx context.Context, u *url.URL) (*multiplex.Image, error)
}

// DownloaderOpts configures [NewHTTPDownloader]. Every field is optional;
// the zero value yields a plain client with no caps, pacing, or caching.
type DownloaderOpts struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	Limiter   *rate.Limiter
	Headers   *shared.CurlHeaders
	Store     Store
	Validator Validator
	Logger    *log.Logger
}

// HTTPDownloader fetches images over HTTP with streamed progress reporting.
// Concurrent fetches for the same URL are collapsed into a single request;
// only the initiating caller observes intermediate progress.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	limiter   *rate.Limiter
	headers   *shared.CurlHeaders
	store     Store
	validator Validator
	logger    *log.Logger
	group     singleflight.Group
}

// NewHTTPDownloader creates a downloader from opts.
func NewHTTPDownloader(opts DownloaderOpts) *HTTPDownloader {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &HTTPDownloader{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		limiter:   opts.Limiter,
		headers:   opts.Headers,
		store:     opts.Store,
		validator: opts.Validator,
		logger:    opts.Logger,
	}
}

// Fetch retrieves the image at u, reporting progress as data arrives.
func (d *HTTPDownloader) Fetch(ctx context.Context, u *url.URL, progress func(float64)) (*multiplex.Image, error) {
	v, err, _ := d.group.Do(u.String(), func() (any, error) {
		return d.fetch(ctx, u, progress)
	})
	if err != nil {
		return nil, err
	}
	return v.(*multiplex.Image), nil
}

func (d *HTTPDownloader) fetch(ctx context.Context, u *url.URL, progress func(float64)) (*multiplex.Image, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", "image/*")
	if d.headers != nil {
		d.headers.Apply(req.Header)
	}

	etag := ""
	if d.validator != nil {
		if etag = d.validator.ETag(ctx, u); etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && etag != "" {
		img, err := d.validator.Cached(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("%w: %s revalidated but cache read failed: %v", shared.ErrFetchFailed, u, err)
		}
		d.logger.Debug("origin revalidated cached image", "url", u, "etag", etag)
		if progress != nil {
			progress(1)
		}
		return img, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d fetching %s", shared.ErrResponseStatus, resp.StatusCode, u)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("%w: %s reports %s, limit %s",
			shared.ErrTooLarge, u, shared.FormatBytes(resp.ContentLength), shared.FormatBytes(d.maxBytes))
	}

	data, err := d.readAll(ctx, resp.Body, resp.ContentLength, progress)
	if err != nil {
		return nil, err
	}

	img := &multiplex.Image{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		SourceURL:   u.String(),
	}
	d.logger.Debug("image downloaded",
		"url", u, "size", shared.FormatBytes(img.Size()), "elapsed", time.Since(start).Round(time.Millisecond))

	if d.store != nil {
		if err := d.store.Put(ctx, u, img, resp.Header.Get("Etag")); err != nil {
			d.logger.Warn("image fetched but not cached", "url", u, "error", err)
		}
	}
	return img, nil
}

// readAll drains body in fixed chunks so progress reflects bytes on the wire.
// total is the Content-Length value, negative when the origin didn't send one.
func (d *HTTPDownloader) readAll(ctx context.Context, body io.Reader, total int64, progress func(float64)) ([]byte, error) {
	var data []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			data = append(data, chunk[:n]...)
			if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
				return nil, fmt.Errorf("%w: body passed %s", shared.ErrTooLarge, shared.FormatBytes(d.maxBytes))
			}
			if progress != nil && total > 0 {
				progress(float64(len(data)) / float64(total))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
		}
	}
	if progress != nil {
		progress(1)
	}
	return data, nil
}

// AuthClient wraps base so every request carries a client-credentials bearer
// token, for CDNs that sit behind OAuth2. Returns base unchanged when auth is
// not configured. The token exchange reuses base's transport and the returned
// client keeps its timeout.
func AuthClient(ctx context.Context, cfg shared.AuthConfig, base *http.Client) *http.Client {
	if !cfg.Enabled() {
		return base
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	client := cc.Client(ctx)
	if base != nil {
		client.Timeout = base.Timeout
	}
	return client
}
