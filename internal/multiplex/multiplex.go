package multiplex

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/imgmux/internal/metrics"
)

// Options configures a [Resolver]. Every field is optional, though
// resolution needs at least one of direct images, a cache, or a downloader
// to make progress.
type Options struct {
	Cache      Cache
	Downloader Downloader
	Surface    DisplaySurface
	Logger     *log.Logger
	Metrics    *metrics.Metrics

	// DownloadsIntermediates fetches worse-ranked candidates while better
	// ones are still pending, trading bandwidth for time-to-first-image.
	DownloadsIntermediates bool
}

// Resolver coordinates progressive resolution of one image from ranked
// candidate identifiers. Create with [New]; a Resolver must not be copied.
type Resolver[ID comparable] struct {
	mu  sync.Mutex
	led ledger[ID]
	gen uint64

	adapter       sourceAdapter[ID]
	surface       DisplaySurface
	intermediates bool
	closed        bool

	delegate Delegate[ID]
	subs     map[uint64]*subscription[ID]
	nextSub  uint64

	queue    []Event[ID]
	draining bool

	rendering     bool
	renderPending *renderJob[ID]

	settleCh     chan struct{}
	settleClosed bool

	logger  *log.Logger
	metrics *metrics.Metrics

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates a Resolver over source. Resolution starts once
// [Resolver.SetCandidates] supplies identifiers.
func New[ID comparable](source DataSource[ID], opts Options) *Resolver[ID] {
	if source == nil {
		panic("multiplex: nil data source")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	r := &Resolver[ID]{
		led: newLedger[ID](),
		adapter: sourceAdapter[ID]{
			source:     source,
			cache:      opts.Cache,
			downloader: opts.Downloader,
		},
		surface:       opts.Surface,
		intermediates: opts.DownloadsIntermediates,
		subs:          make(map[uint64]*subscription[ID]),
		settleCh:      make(chan struct{}),
		logger:        logger,
		metrics:       opts.Metrics,
	}
	r.baseCtx, r.baseCancel = context.WithCancel(context.Background())
	return r
}

// SetCandidates replaces the candidate list, best first. Fetches for
// identifiers no longer worth pursuing under the new ranking are cancelled;
// fetches for retained identifiers keep running and are re-ranked when they
// complete. Duplicates keep their first (best) occurrence. The loaded image
// persists until a result from the new list supersedes it.
func (r *Resolver[ID]) SetCandidates(ids ...ID) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.gen++
	dupes := r.led.setCandidates(ids)
	if len(dupes) > 0 {
		r.logger.Debug("dropped duplicate identifiers", "identifiers", dupes)
	}

	loadedRank := r.led.loadedRank()
	var stale []*operation[ID]
	for id, op := range r.led.ops {
		rank, tracked := r.led.rankOf(id)
		keep := tracked && (rank < loadedRank || (op.acceptEqual && rank == loadedRank))
		if keep && !r.intermediates {
			keep = rank == 0
		}
		if keep {
			op.gen = r.gen
		} else {
			stale = append(stale, op)
		}
	}
	for _, op := range stale {
		r.abandonLocked(op, ErrBestImageIdentifierChanged)
	}

	r.unsettleLocked()
	r.scheduleLocked()
	r.maybeSettleLocked()
	r.mu.Unlock()
	r.dispatch()
}

// Candidates returns the current candidate list, best first.
func (r *Resolver[ID]) Candidates() []ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.led.snapshot()
}

// SetDownloadsIntermediates toggles opportunistic fetching of worse-ranked
// candidates. Disabling it cancels every fetch except the best
// identifier's; enabling it schedules the pipelines the stricter policy
// withheld. Failure records survive the toggle.
func (r *Resolver[ID]) SetDownloadsIntermediates(enabled bool) {
	r.mu.Lock()
	if r.closed || r.intermediates == enabled {
		r.mu.Unlock()
		return
	}
	r.intermediates = enabled
	if !enabled {
		best, ok := r.led.best()
		var stale []*operation[ID]
		for id, op := range r.led.ops {
			if !ok || id != best {
				stale = append(stale, op)
			}
		}
		for _, op := range stale {
			r.abandonLocked(op, ErrBestImageIdentifierChanged)
		}
	}
	r.unsettleLocked()
	r.scheduleLocked()
	r.maybeSettleLocked()
	r.mu.Unlock()
	r.dispatch()
}

// DownloadsIntermediates reports whether worse-ranked candidates are
// fetched while better ones are pending.
func (r *Resolver[ID]) DownloadsIntermediates() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intermediates
}

// Reload re-queries the data source for fresh sources. Failure records are
// cleared so previously failed identifiers are retried, and a loaded image
// whose source changed is refetched and may be replaced at equal rank. The
// loaded image is never discarded by Reload, only superseded.
func (r *Resolver[ID]) Reload() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.gen++
	for _, op := range r.led.ops {
		op.gen = r.gen
	}
	r.led.failed = make(map[ID]error)
	r.unsettleLocked()
	loaded := r.led.loaded
	r.mu.Unlock()

	// Source re-queries are provider calls and run outside the lock.
	if loaded.ok {
		img := r.adapter.direct(loaded.id)
		var u *url.URL
		if img == nil {
			u = r.adapter.locator(loaded.id)
		}
		changed := false
		switch {
		case img != nil:
			changed = img != loaded.direct
		case u != nil:
			changed = u.String() != loaded.url
		}
		if changed {
			r.mu.Lock()
			_, tracked := r.led.rankOf(loaded.id)
			stillLoaded := r.led.loaded.ok && r.led.loaded.id == loaded.id
			if !r.closed && stillLoaded && tracked && r.led.ops[loaded.id] == nil {
				r.launchLocked(loaded.id, true)
			}
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	if !r.closed {
		r.scheduleLocked()
		r.maybeSettleLocked()
	}
	r.mu.Unlock()
	r.dispatch()
}

// SetDelegate replaces the notification delegate. The change takes effect
// between notifications, so a zero Delegate detaches an observer that is
// about to go away.
func (r *Resolver[ID]) SetDelegate(d Delegate[ID]) {
	r.mu.Lock()
	r.delegate = d
	r.mu.Unlock()
}

// Subscribe returns a channel receiving every subsequent notification in
// order, and a func that detaches the subscription. buffer sizes the
// channel; an unread subscriber eventually blocks delivery to everyone, so
// size it for burst tolerance. The channel closes after [Resolver.Close],
// following a final [KindClosed] event.
func (r *Resolver[ID]) Subscribe(buffer int) (<-chan Event[ID], func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event[ID], buffer)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	sub := &subscription[ID]{ch: ch, done: make(chan struct{})}
	r.subs[id] = sub
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			if r.subs != nil {
				delete(r.subs, id)
			}
			r.mu.Unlock()
			close(sub.done)
		})
	}
	return ch, cancel
}

// LoadedIdentifier returns the identifier of the best fetched image so far.
func (r *Resolver[ID]) LoadedIdentifier() (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.led.loaded.id, r.led.loaded.ok
}

// Loaded returns the best fetched image so far with its identifier.
func (r *Resolver[ID]) Loaded() (ID, *Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.led.loaded.id, r.led.loaded.img, r.led.loaded.ok
}

// DisplayedIdentifier returns the identifier of the image most recently
// acknowledged by the display surface. It can trail [Resolver.LoadedIdentifier]
// by one accepted image while a render is in flight.
func (r *Resolver[ID]) DisplayedIdentifier() (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.led.displayed.id, r.led.displayed.ok
}

// Displayed returns the most recently rendered image with its identifier.
func (r *Resolver[ID]) Displayed() (ID, *Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.led.displayed.id, r.led.displayed.img, r.led.displayed.ok
}

// Await blocks until the resolution settles: the best candidate is loaded,
// or nothing ranked better than the loaded image can still succeed. It
// returns the loaded pair when one exists (possibly a worse-ranked image
// whose betters all failed) and the best candidate's failure otherwise.
// Replacing the candidate list, toggling intermediates, or reloading
// restarts settlement for subsequent calls.
func (r *Resolver[ID]) Await(ctx context.Context) (ID, *Image, error) {
	for {
		r.mu.Lock()
		id, img, err, settled := r.outcomeLocked()
		ch := r.settleCh
		r.mu.Unlock()
		if settled {
			return id, img, err
		}
		select {
		case <-ctx.Done():
			var zero ID
			return zero, nil, ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels all in-flight work and detaches subscribers after a final
// [KindClosed] event. Further mutators are no-ops; queries keep answering
// from the final state.
func (r *Resolver[ID]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	active := make([]*operation[ID], 0, len(r.led.ops))
	for _, op := range r.led.ops {
		active = append(active, op)
	}
	for _, op := range active {
		r.abandonLocked(op, context.Canceled)
	}
	r.renderPending = nil
	r.baseCancel()
	r.enqueueLocked(closedEvent[ID]())
	r.maybeSettleLocked()
	r.mu.Unlock()
	r.dispatch()
}

func (r *Resolver[ID]) unsettleLocked() {
	if r.settleClosed {
		r.settleCh = make(chan struct{})
		r.settleClosed = false
	}
}

func (r *Resolver[ID]) maybeSettleLocked() {
	if r.settleClosed {
		return
	}
	if _, _, _, settled := r.outcomeLocked(); settled {
		close(r.settleCh)
		r.settleClosed = true
	}
}

// outcomeLocked reports the final result once no in-flight or startable
// fetch can improve on the loaded image.
func (r *Resolver[ID]) outcomeLocked() (ID, *Image, error, bool) {
	var zero ID
	loaded := r.led.loaded

	if r.closed {
		if loaded.ok {
			return loaded.id, loaded.img, nil, true
		}
		return zero, nil, ErrClosed, true
	}
	if len(r.led.candidates) == 0 {
		if loaded.ok {
			return loaded.id, loaded.img, nil, true
		}
		return zero, nil, ErrNoCandidates, true
	}

	loadedRank := r.led.loadedRank()
	if loadedRank == 0 {
		return loaded.id, loaded.img, nil, true
	}

	if !r.intermediates {
		err := r.led.failed[r.led.candidates[0]]
		if err == nil {
			return zero, nil, nil, false
		}
		if loaded.ok {
			return loaded.id, loaded.img, nil, true
		}
		return zero, nil, err, true
	}

	limit := min(loadedRank, len(r.led.candidates))
	for i := 0; i < limit; i++ {
		if r.led.failed[r.led.candidates[i]] == nil {
			return zero, nil, nil, false
		}
	}
	if loaded.ok {
		return loaded.id, loaded.img, nil, true
	}
	return zero, nil, r.led.failed[r.led.candidates[0]], true
}
