// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/imgmux/internal/multiplex"
)

// MockSource is a test double for [multiplex.DataSource] keyed by string
type MockSource struct {
	mu     sync.Mutex
	images map[string]*multiplex.Image
	urls   map[string]*url.URL
}

func NewMockSource() *MockSource {
	return &MockSource{
		images: make(map[string]*multiplex.Image),
		urls:   make(map[string]*url.URL),
	}
}

func (m *MockSource) SetImage(id string, img *multiplex.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[id] = img
}

func (m *MockSource) SetURL(id string, u *url.URL) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls[id] = u
}

func (m *MockSource) Image(id string) *multiplex.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[id]
}

func (m *MockSource) URL(id string) *url.URL {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.urls[id]
}

// MockDownloader is a test double for [multiplex.Downloader] serving canned
// payloads keyed by URL string
type MockDownloader struct {
	mu      sync.Mutex
	images  map[string]*multiplex.Image
	err     error
	fetches []string
}

func NewMockDownloader() *MockDownloader {
	return &MockDownloader{images: make(map[string]*multiplex.Image)}
}

// Respond registers the payload returned for rawURL.
func (m *MockDownloader) Respond(rawURL string, img *multiplex.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[rawURL] = img
}

// Fail makes every subsequent fetch return err.
func (m *MockDownloader) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Fetches returns the URLs fetched so far, in order.
func (m *MockDownloader) Fetches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.fetches))
	copy(out, m.fetches)
	return out
}

func (m *MockDownloader) Fetch(ctx context.Context, u *url.URL, progress func(float64)) (*multiplex.Image, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, u.String())
	img, ok := m.images[u.String()]
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no canned payload for %s", u)
	}
	if progress != nil {
		progress(1)
	}
	return img, nil
}

// MockCache is a test double for [multiplex.Cache]; it misses unless seeded
type MockCache struct {
	mu     sync.Mutex
	images map[string]*multiplex.Image
}

func NewMockCache() *MockCache {
	return &MockCache{images: make(map[string]*multiplex.Image)}
}

func (m *MockCache) Seed(rawURL string, img *multiplex.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[rawURL] = img
}

func (m *MockCache) Fetch(ctx context.Context, u *url.URL) (*multiplex.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.images[u.String()]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s", multiplex.ErrCacheMiss, u)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Failed to parse URL %s: %v", raw, err)
	}
	return u
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
