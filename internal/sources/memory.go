package sources

import (
	"container/list"
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/desertthunder/imgmux/internal/multiplex"
)

const defaultMemoryEntries = 64

// MemoryCache is a small in-process LRU keyed by URL. It fronts the disk
// tier in [Tiered] so repeat lookups skip SQLite and the filesystem.
type MemoryCache struct {
	mu      sync.Mutex
	cap     int
	order   *list.List
	entries map[string]*list.Element
}

type memoryEntry struct {
	key string
	img *multiplex.Image
}

// NewMemoryCache creates a cache holding at most capEntries images.
func NewMemoryCache(capEntries int) *MemoryCache {
	if capEntries <= 0 {
		capEntries = defaultMemoryEntries
	}
	return &MemoryCache{
		cap:     capEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Fetch returns the cached image for u, marking it most recently used.
func (m *MemoryCache) Fetch(ctx context.Context, u *url.URL) (*multiplex.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[u.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", multiplex.ErrCacheMiss, u)
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).img, nil
}

// Put stores img under u, evicting the least recently used entry when full.
func (m *MemoryCache) Put(ctx context.Context, u *url.URL, img *multiplex.Image, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := u.String()
	if elem, ok := m.entries[key]; ok {
		elem.Value.(*memoryEntry).img = img
		m.order.MoveToFront(elem)
		return nil
	}

	m.entries[key] = m.order.PushFront(&memoryEntry{key: key, img: img})
	if len(m.entries) > m.cap {
		if tail := m.order.Back(); tail != nil {
			m.order.Remove(tail)
			delete(m.entries, tail.Value.(*memoryEntry).key)
		}
	}
	return nil
}

// Len reports how many images are held.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
