package sources

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgmux/internal/models"
	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/repositories"
	"github.com/desertthunder/imgmux/internal/shared"
)

// DiskCache stores image payloads as files in a directory, indexed by a
// SQLite database. It implements the resolver's cache contract, the
// downloader's [Store] and [Validator] contracts, and the administrative
// surface the cache subcommands and server expose.
type DiskCache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	db       *sql.DB
	blobs    *repositories.BlobRepository
	logger   *log.Logger
}

// OpenDiskCache creates the blob directory if needed, opens the index
// database, and applies pending migrations.
func OpenDiskCache(cfg shared.CacheConfig, logger *log.Logger) (*DiskCache, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	dir := cfg.BlobDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}

	db, err := shared.NewDatabase(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	applied, err := shared.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	if applied > 0 {
		logger.Debug("cache index migrated", "applied", applied)
	}

	return &DiskCache{
		dir:      dir,
		maxBytes: cfg.MaxBytes,
		db:       db,
		blobs:    repositories.NewBlobRepository(db),
		logger:   logger,
	}, nil
}

// Close releases the index database.
func (c *DiskCache) Close() error {
	return c.db.Close()
}

// Dir returns the blob directory.
func (c *DiskCache) Dir() string {
	return c.dir
}

// Fetch looks u up in the index and reads the blob file. A row whose backing
// file has gone missing is evicted and reported as a miss so the pipeline
// falls through to the downloader.
func (c *DiskCache) Fetch(ctx context.Context, u *url.URL) (*multiplex.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := c.blobs.GetByURL(u.String())
	if err != nil {
		if errors.Is(err, shared.ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: %s", multiplex.ErrCacheMiss, u)
		}
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(c.dir, blob.Filename()))
	if err != nil {
		c.logger.Warn("cached blob file missing, evicting index row", "url", u, "file", blob.Filename())
		if delErr := c.blobs.Delete(blob.ID()); delErr != nil {
			c.logger.Error("failed to evict stale index row", "id", blob.ID(), "error", delErr)
		}
		return nil, fmt.Errorf("%w: %s", multiplex.ErrCacheMiss, u)
	}

	if err := c.blobs.Touch(blob.ID()); err != nil {
		c.logger.Warn("failed to record cache hit", "id", blob.ID(), "error", err)
	}

	return &multiplex.Image{Data: data, ContentType: blob.ContentType(), SourceURL: blob.URL()}, nil
}

// Put writes the payload to disk and upserts the index row, then prunes if
// the cache grew past its budget. An existing row keeps its filename so the
// index and the directory never disagree.
func (c *DiskCache) Put(ctx context.Context, u *url.URL, img *multiplex.Image, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := c.blobs.GetByURL(u.String())
	fresh := errors.Is(err, shared.ErrBlobNotFound)
	if err != nil && !fresh {
		return err
	}

	name := blobFilename(u, img.ContentType)
	if !fresh {
		name = blob.Filename()
	}
	if err := writeFileAtomic(filepath.Join(c.dir, name), img.Data); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}

	if fresh {
		blob = models.NewBlob(0, u.String(), name)
		blob.SetContentType(img.ContentType)
		blob.SetSize(img.Size())
		blob.SetETag(etag)
		if err := c.blobs.Create(blob); err != nil {
			return err
		}
	} else {
		blob.SetContentType(img.ContentType)
		blob.SetSize(img.Size())
		blob.SetETag(etag)
		blob.SetAccessedAt(time.Now())
		if err := c.blobs.Update(blob); err != nil {
			return err
		}
	}

	if _, err := c.pruneLocked(); err != nil {
		c.logger.Warn("cache prune failed", "error", err)
	}
	return nil
}

// ETag returns the validator tag recorded for u, empty when unknown.
func (c *DiskCache) ETag(ctx context.Context, u *url.URL) string {
	blob, err := c.blobs.GetByURL(u.String())
	if err != nil {
		return ""
	}
	return blob.ETag()
}

// Cached resolves a revalidated URL from the cache.
func (c *DiskCache) Cached(ctx context.Context, u *url.URL) (*multiplex.Image, error) {
	return c.Fetch(ctx, u)
}

// Stats reports aggregate index statistics.
func (c *DiskCache) Stats() (*models.CacheStats, error) {
	return c.blobs.Stats()
}

// List returns every indexed blob in insertion order.
func (c *DiskCache) List() ([]*models.Blob, error) {
	return c.blobs.List(nil)
}

// Remove evicts the entry for sourceURL, deleting both file and index row.
func (c *DiskCache) Remove(sourceURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := c.blobs.GetByURL(sourceURL)
	if err != nil {
		return err
	}
	return c.evictLocked(blob)
}

// Clear evicts every entry and returns how many were removed.
func (c *DiskCache) Clear() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blobs, err := c.blobs.List(nil)
	if err != nil {
		return 0, err
	}
	for _, blob := range blobs {
		if err := os.Remove(filepath.Join(c.dir, blob.Filename())); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove blob file", "file", blob.Filename(), "error", err)
		}
	}
	return c.blobs.Clear()
}

// Prune evicts coldest entries until the cache fits its size budget. It is a
// no-op when no budget is configured.
func (c *DiskCache) Prune() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked()
}

func (c *DiskCache) pruneLocked() (int, error) {
	if c.maxBytes <= 0 {
		return 0, nil
	}

	total, err := c.blobs.TotalSize()
	if err != nil {
		return 0, err
	}
	if total <= c.maxBytes {
		return 0, nil
	}

	victims, err := c.blobs.ColdestFirst(0)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, blob := range victims {
		if total <= c.maxBytes {
			break
		}
		if err := c.evictLocked(blob); err != nil {
			return evicted, err
		}
		total -= blob.Size()
		evicted++
	}

	if evicted > 0 {
		c.logger.Info("cache pruned", "evicted", evicted, "size", shared.FormatBytes(total))
	}
	return evicted, nil
}

func (c *DiskCache) evictLocked(blob *models.Blob) error {
	if err := os.Remove(filepath.Join(c.dir, blob.Filename())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return c.blobs.Delete(blob.ID())
}

// blobFilename derives a stable file name from the URL hash. The extension
// comes from the URL path when it has a plausible one, otherwise from the
// content type.
func blobFilename(u *url.URL, contentType string) string {
	sum := sha256.Sum256([]byte(u.String()))
	name := hex.EncodeToString(sum[:8])

	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 5 {
		ext = ""
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return name + ext
}

func writeFileAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
