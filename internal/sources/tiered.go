package sources

import (
	"context"
	"errors"
	"net/url"

	"github.com/desertthunder/imgmux/internal/multiplex"
)

// Tiered composes the memory and disk caches. Lookups try memory first and
// backfill it on a disk hit; writes go through to both tiers.
type Tiered struct {
	mem  *MemoryCache
	disk *DiskCache
}

// NewTiered fronts disk with mem.
func NewTiered(mem *MemoryCache, disk *DiskCache) *Tiered {
	return &Tiered{mem: mem, disk: disk}
}

// Fetch resolves u from the warmest tier that has it.
func (t *Tiered) Fetch(ctx context.Context, u *url.URL) (*multiplex.Image, error) {
	img, err := t.mem.Fetch(ctx, u)
	if err == nil {
		return img, nil
	}
	if !errors.Is(err, multiplex.ErrCacheMiss) {
		return nil, err
	}

	img, err = t.disk.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	_ = t.mem.Put(ctx, u, img, "")
	return img, nil
}

// Put writes img to both tiers.
func (t *Tiered) Put(ctx context.Context, u *url.URL, img *multiplex.Image, etag string) error {
	if err := t.mem.Put(ctx, u, img, etag); err != nil {
		return err
	}
	return t.disk.Put(ctx, u, img, etag)
}

// ETag forwards to the disk tier, which owns validator state.
func (t *Tiered) ETag(ctx context.Context, u *url.URL) string {
	return t.disk.ETag(ctx, u)
}

// Cached resolves a revalidated URL from the warmest tier.
func (t *Tiered) Cached(ctx context.Context, u *url.URL) (*multiplex.Image, error) {
	return t.Fetch(ctx, u)
}

// Disk exposes the disk tier for the administrative surface.
func (t *Tiered) Disk() *DiskCache {
	return t.disk
}
