package sources

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
)

// StaticSource is a fixed identifier-to-source mapping. The CLI builds one
// from its URL arguments; tests use it to script candidate sets.
type StaticSource struct {
	mu     sync.RWMutex
	images map[string]*multiplex.Image
	urls   map[string]*url.URL
}

// NewStaticSource creates an empty source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		images: make(map[string]*multiplex.Image),
		urls:   make(map[string]*url.URL),
	}
}

// AddImage maps id to an already-loaded image.
func (s *StaticSource) AddImage(id string, img *multiplex.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = img
}

// AddURL maps id to a remote source.
func (s *StaticSource) AddURL(id string, u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[id] = u
}

// AddRawURL parses raw and maps id to the result.
func (s *StaticSource) AddRawURL(id, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", shared.ErrInvalidArgument, raw, err)
	}
	s.AddURL(id, u)
	return nil
}

// Image returns the direct image for id, nil when it has none.
func (s *StaticSource) Image(id string) *multiplex.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.images[id]
}

// URL returns the remote source for id, nil when it has none.
func (s *StaticSource) URL(id string) *url.URL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.urls[id]
}

// FromURLs builds a source whose candidate identifiers are the URL strings
// themselves, ranked in argument order: the first argument is the best
// rendition. Every argument must be an absolute http or https URL.
func FromURLs(raws []string) (*StaticSource, []string, error) {
	src := NewStaticSource()
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q: %v", shared.ErrInvalidArgument, raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, nil, fmt.Errorf("%w: %q must be an absolute http(s) url", shared.ErrInvalidArgument, raw)
		}
		if u.Host == "" {
			return nil, nil, fmt.Errorf("%w: %q has no host", shared.ErrInvalidArgument, raw)
		}
		src.AddURL(raw, u)
		ids = append(ids, raw)
	}
	return src, ids, nil
}
