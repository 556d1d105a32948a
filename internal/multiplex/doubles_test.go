package multiplex

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"
)

func testImage(tag string) *Image {
	return &Image{Data: []byte(tag), ContentType: "image/png", SourceURL: "test://" + tag}
}

// scriptedSource is a DataSource over string identifiers backed by mutable
// maps, safe for concurrent use like the contract demands.
type scriptedSource struct {
	mu     sync.Mutex
	images map[string]*Image
	urls   map[string]*url.URL
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{images: make(map[string]*Image), urls: make(map[string]*url.URL)}
}

func (s *scriptedSource) setImage(id string, img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = img
}

func (s *scriptedSource) setURL(id, raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[id] = u
}

func (s *scriptedSource) Image(id string) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[id]
}

func (s *scriptedSource) URL(id string) *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urls[id]
}

// fakeCache serves scripted images keyed by URL and misses on everything
// else.
type fakeCache struct {
	mu      sync.Mutex
	images  map[string]*Image
	errs    map[string]error
	fetches int
}

func newFakeCache() *fakeCache {
	return &fakeCache{images: make(map[string]*Image), errs: make(map[string]error)}
}

func (c *fakeCache) put(raw string, img *Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[raw] = img
}

func (c *fakeCache) failWith(raw string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[raw] = err
}

func (c *fakeCache) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *fakeCache) Fetch(_ context.Context, u *url.URL) (*Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if err := c.errs[u.String()]; err != nil {
		return nil, err
	}
	if img := c.images[u.String()]; img != nil {
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCacheMiss, u)
}

// fakeDownloader serves scripted replies keyed by URL. A gated reply blocks
// until its release func runs, so tests control completion order.
type downloadReply struct {
	img      *Image
	err      error
	progress []float64
	release  chan struct{}
}

type fakeDownloader struct {
	mu      sync.Mutex
	replies map[string]downloadReply
	calls   []string
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{replies: make(map[string]downloadReply)}
}

func (d *fakeDownloader) respond(raw string, img *Image, fractions ...float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rep := d.replies[raw]
	rep.img, rep.err, rep.progress = img, nil, fractions
	d.replies[raw] = rep
}

func (d *fakeDownloader) fail(raw string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rep := d.replies[raw]
	rep.img, rep.err, rep.progress = nil, err, nil
	d.replies[raw] = rep
}

func (d *fakeDownloader) gate(raw string) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	rep := d.replies[raw]
	rep.release = make(chan struct{})
	d.replies[raw] = rep
	var once sync.Once
	return func() { once.Do(func() { close(rep.release) }) }
}

func (d *fakeDownloader) callCount(raw string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == raw {
			n++
		}
	}
	return n
}

func (d *fakeDownloader) totalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDownloader) Fetch(ctx context.Context, u *url.URL, progress func(float64)) (*Image, error) {
	d.mu.Lock()
	rep, ok := d.replies[u.String()]
	d.calls = append(d.calls, u.String())
	d.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no scripted reply for %s", u)
	}
	if rep.release != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-rep.release:
		}
	}
	if progress != nil {
		for _, f := range rep.progress {
			progress(f)
		}
	}
	if rep.err != nil {
		return nil, rep.err
	}
	return rep.img, nil
}

// fakeSurface records renders. hold gates every render on one channel so a
// test can pile up acceptances behind an in-flight render.
type fakeSurface struct {
	mu      sync.Mutex
	renders []*Image
	errs    []error
	release chan struct{}
}

func newFakeSurface() *fakeSurface { return &fakeSurface{} }

func (s *fakeSurface) failNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *fakeSurface) hold() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = make(chan struct{})
	ch := s.release
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (s *fakeSurface) rendered() []*Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Image, len(s.renders))
	copy(out, s.renders)
	return out
}

func (s *fakeSurface) Render(ctx context.Context, img *Image) error {
	s.mu.Lock()
	release := s.release
	s.mu.Unlock()
	if release != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.renders = append(s.renders, img)
	return nil
}

// recorder flattens delegate notifications into ordered strings.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (rec *recorder) log(format string, args ...any) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.lines = append(rec.lines, fmt.Sprintf(format, args...))
}

func (rec *recorder) events() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]string, len(rec.lines))
	copy(out, rec.lines)
	return out
}

func (rec *recorder) delegate() Delegate[string] {
	return Delegate[string]{
		DownloadStarted: func(id string) { rec.log("started %s", id) },
		DownloadProgressed: func(id string, fraction float64) {
			rec.log("progress %s %.2f", id, fraction)
		},
		DownloadFinished: func(id string, err error) {
			if err != nil {
				rec.log("finished %s err", id)
			} else {
				rec.log("finished %s ok", id)
			}
		},
		ImageUpdated: func(u ImageUpdate[string]) {
			if u.HasPrevious {
				rec.log("updated %s prev=%s", u.Identifier, u.PreviousIdentifier)
			} else {
				rec.log("updated %s prev=none", u.Identifier)
			}
		},
		ImageDisplayed:  func(id string, _ *Image) { rec.log("displayed %s", id) },
		DisplayFinished: func(id string, _ *Image) { rec.log("display_finished %s", id) },
	}
}

// waitEvent reads from a subscription channel until an event matches kind
// and identifier. Because delegate delivery precedes subscriber delivery
// for each event, seeing an event here means the delegate already saw it.
func waitEvent(t *testing.T, ch <-chan Event[string], kind EventKind, id string) Event[string] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s %s", kind, id)
			}
			if ev.Kind == kind && ev.Identifier == id {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, id)
		}
	}
}

// drainEvents collects everything delivered until the channel closes.
func drainEvents(t *testing.T, ch <-chan Event[string]) []Event[string] {
	t.Helper()
	var out []Event[string]
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out draining events, got %d so far", len(out))
		}
	}
}

// awaitResolved resolves with a test deadline and fails on error.
func awaitResolved(t *testing.T, r *Resolver[string]) (string, *Image) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, img, err := r.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	return id, img
}

// awaitOutcome resolves with a test deadline and returns whatever happened.
func awaitOutcome(t *testing.T, r *Resolver[string]) (string, *Image, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.Await(ctx)
}
