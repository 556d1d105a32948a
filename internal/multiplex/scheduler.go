package multiplex

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// scheduleLocked applies the driving policy: launch a pipeline for every
// candidate that should be in flight and isn't. With intermediates disabled
// that is only the best identifier, and its earlier failure is terminal
// until the list is replaced or reloaded. With intermediates enabled every
// candidate ranked better than the loaded image is fair game.
func (r *Resolver[ID]) scheduleLocked() {
	if r.closed || len(r.led.candidates) == 0 {
		return
	}

	if !r.intermediates {
		best := r.led.candidates[0]
		if r.led.loadedRank() == 0 {
			return
		}
		if r.led.failed[best] != nil {
			return
		}
		if r.led.ops[best] != nil {
			return
		}
		r.launchLocked(best, false)
		return
	}

	limit := min(r.led.loadedRank(), len(r.led.candidates))
	for i := 0; i < limit; i++ {
		id := r.led.candidates[i]
		if r.led.failed[id] != nil || r.led.ops[id] != nil {
			continue
		}
		r.launchLocked(id, false)
	}
}

func (r *Resolver[ID]) launchLocked(id ID, acceptEqual bool) {
	op := &operation[ID]{id: id, gen: r.gen, state: opIdle, acceptEqual: acceptEqual}
	op.ctx, op.cancel = context.WithCancel(r.baseCtx)
	r.led.ops[id] = op
	if r.metrics != nil {
		r.metrics.AddActiveOperations(1)
	}
	r.logger.Debug("launching pipeline", "identifier", id, "gen", op.gen, "accept_equal", acceptEqual)
	go r.runPipeline(op)
}

// runPipeline walks one identifier through direct image, locator, cache,
// and download. It runs on its own goroutine and only takes the resolver
// lock to transition state and hand in results.
func (r *Resolver[ID]) runPipeline(op *operation[ID]) {
	if img := r.adapter.direct(op.id); img != nil {
		r.complete(op, img, nil, originDirect)
		return
	}

	u := r.adapter.locator(op.id)
	if u == nil {
		r.complete(op, nil, fmt.Errorf("%w: %v", ErrNoSourceForImage, op.id), originDirect)
		return
	}
	r.setLocator(op, u)

	if r.adapter.hasCache() {
		if !r.transition(op, opAwaitingCache) {
			return
		}
		img, err := r.adapter.fetchCached(op.ctx, u)
		if err == nil && img != nil {
			if r.metrics != nil {
				r.metrics.IncCacheHits()
			}
			r.complete(op, img, nil, originCache)
			return
		}
		if op.ctx.Err() != nil {
			// Cancelled mid-fetch; abandonment already emitted its events.
			return
		}
		if err == nil {
			err = ErrCacheMiss
		}
		if r.metrics != nil {
			r.metrics.IncCacheMisses()
		}
		if !r.adapter.hasDownloader() {
			r.complete(op, nil, fmt.Errorf("cache fetch for %v: %w", op.id, err), originCache)
			return
		}
		r.logger.Debug("cache fall through", "identifier", op.id, "url", u, "err", err)
	}

	if !r.adapter.hasDownloader() {
		r.complete(op, nil, fmt.Errorf("%w: %s", ErrNoProvider, u), originDownload)
		return
	}

	if !r.beginDownload(op) {
		return
	}
	began := time.Now()
	img, err := r.adapter.download(op.ctx, u, func(fraction float64) {
		r.reportProgress(op, fraction)
	})
	if err == nil && img == nil {
		err = fmt.Errorf("downloader returned no image for %v", op.id)
	}
	if err == nil && r.metrics != nil {
		r.metrics.ObserveDownload(time.Since(began))
	}
	r.complete(op, img, err, originDownload)
}

func (r *Resolver[ID]) setLocator(op *operation[ID], u *url.URL) {
	r.mu.Lock()
	op.locator = u
	r.mu.Unlock()
}

// transition moves a still-current operation to the next state. A false
// return means the operation went stale and the pipeline must stop.
func (r *Resolver[ID]) transition(op *operation[ID], next opState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(op) {
		return false
	}
	op.state = next
	return true
}

// beginDownload enters the download stage and emits the started
// notification before any progress can be reported.
func (r *Resolver[ID]) beginDownload(op *operation[ID]) bool {
	r.mu.Lock()
	if !r.currentLocked(op) {
		r.mu.Unlock()
		return false
	}
	op.state = opAwaitingDownload
	op.downloadStarted = true
	if r.metrics != nil {
		r.metrics.IncDownloadsStarted()
	}
	r.enqueueLocked(startedEvent(op.id))
	r.mu.Unlock()
	r.dispatch()
	return true
}

// reportProgress forwards a download progress sample, clamped to [0,1] and
// never regressing. Samples from stale or finished operations are dropped.
func (r *Resolver[ID]) reportProgress(op *operation[ID], fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	r.mu.Lock()
	if !r.currentLocked(op) || op.state != opAwaitingDownload || op.downloadFinished {
		r.mu.Unlock()
		return
	}
	if fraction < op.lastFraction {
		r.mu.Unlock()
		return
	}
	op.lastFraction = fraction
	r.enqueueLocked(progressedEvent(op.id, fraction))
	r.mu.Unlock()
	r.dispatch()
}

// complete hands a pipeline's terminal result to the arbiter. Results from
// operations that were cancelled or replaced while the fetch ran are
// dropped without touching resolver state.
func (r *Resolver[ID]) complete(op *operation[ID], img *Image, err error, from origin) {
	r.mu.Lock()
	if !r.currentLocked(op) {
		r.logger.Debug("dropping stale completion", "identifier", op.id, "gen", op.gen, "current_gen", r.gen)
		if r.metrics != nil {
			r.metrics.IncStaleDropped()
		}
		r.mu.Unlock()
		return
	}

	delete(r.led.ops, op.id)
	op.cancel()
	op.terminal = true
	if r.metrics != nil {
		r.metrics.AddActiveOperations(-1)
	}

	if err != nil {
		r.failLocked(op, err)
		r.mu.Unlock()
		r.dispatch()
		return
	}

	if op.downloadStarted && !op.downloadFinished {
		op.downloadFinished = true
		r.enqueueLocked(finishedEvent(op.id, nil))
	}

	if !r.acceptableLocked(op) {
		op.state = opSucceeded
		r.logger.Debug("discarding superseded result", "identifier", op.id, "origin", from)
		if r.metrics != nil {
			r.metrics.IncResultsDiscarded()
		}
		r.scheduleLocked()
		r.maybeSettleLocked()
		r.mu.Unlock()
		r.dispatch()
		return
	}

	r.acceptLocked(op, img, from)
	r.scheduleLocked()
	r.maybeSettleLocked()
	r.mu.Unlock()
	r.dispatch()
}

// failLocked records a terminal failure. The finished notification carries
// the cause whether or not a download ever started, so no-source and
// cache-only failures surface through the same channel.
func (r *Resolver[ID]) failLocked(op *operation[ID], err error) {
	op.state = opFailed
	r.led.failed[op.id] = err
	op.downloadFinished = true
	r.logger.Debug("resolution failed", "identifier", op.id, "err", err)
	if r.metrics != nil {
		r.metrics.IncResolutionsFailed()
	}
	r.enqueueLocked(finishedEvent(op.id, err))
	r.maybeSettleLocked()
}

// abandonLocked cancels an in-flight operation whose result no longer
// matters. A download that already started still gets its finished
// notification, carrying the cancellation cause.
func (r *Resolver[ID]) abandonLocked(op *operation[ID], cause error) {
	op.cancel()
	op.terminal = true
	op.state = opAbandoned
	delete(r.led.ops, op.id)
	if r.metrics != nil {
		r.metrics.AddActiveOperations(-1)
	}
	if op.downloadStarted && !op.downloadFinished {
		op.downloadFinished = true
		if r.metrics != nil {
			r.metrics.IncDownloadsAbandoned()
		}
		r.enqueueLocked(finishedEvent(op.id, cause))
	}
	r.logger.Debug("abandoned pipeline", "identifier", op.id, "cause", cause)
}

// currentLocked reports whether a completion or transition from op may touch
// resolver state: the operation must be untouched by cancellation, from the
// current generation, and still the registered operation for its identifier.
func (r *Resolver[ID]) currentLocked(op *operation[ID]) bool {
	return !op.terminal && op.gen == r.gen && r.led.ops[op.id] == op
}
