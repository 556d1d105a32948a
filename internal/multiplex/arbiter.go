package multiplex

// acceptableLocked decides whether a successful result may become the
// loaded image: accept when nothing is loaded, when the candidate ranks
// strictly better, or at equal rank for a reload-launched operation whose
// source changed. A loaded identifier that left the candidate list ranks
// below everything, so any current candidate supersedes it.
func (r *Resolver[ID]) acceptableLocked(op *operation[ID]) bool {
	rank, ok := r.led.rankOf(op.id)
	if !ok {
		return false
	}
	loadedRank := r.led.loadedRank()
	if rank < loadedRank {
		return true
	}
	return op.acceptEqual && rank == loadedRank
}

// acceptLocked installs the image as the loaded state, cancels pipelines
// the acceptance made redundant, and emits the update followed by the
// display handoff.
func (r *Resolver[ID]) acceptLocked(op *operation[ID], img *Image, from origin) {
	op.state = opSucceeded

	prev := r.led.loaded
	update := ImageUpdate[ID]{Image: img, Identifier: op.id}
	if prev.ok {
		update.Previous = prev.img
		update.PreviousIdentifier = prev.id
		update.HasPrevious = true
	}

	next := loadedImage[ID]{ok: true, id: op.id, img: img}
	switch {
	case from == originDirect:
		next.direct = img
	case op.locator != nil:
		next.url = op.locator.String()
	}
	r.led.loaded = next

	rank, _ := r.led.rankOf(op.id)
	var redundant []*operation[ID]
	for id, other := range r.led.ops {
		otherRank, tracked := r.led.rankOf(id)
		if !tracked || otherRank >= rank {
			redundant = append(redundant, other)
		}
	}
	for _, other := range redundant {
		r.abandonLocked(other, ErrBestImageIdentifierChanged)
	}

	r.logger.Debug("accepted image", "identifier", op.id, "rank", rank, "origin", from, "bytes", img.Size())
	if r.metrics != nil {
		r.metrics.IncImagesAccepted()
	}
	r.enqueueLocked(updatedEvent(update))
	r.handoffDisplayLocked()
}

type renderJob[ID comparable] struct {
	id  ID
	img *Image
}

// handoffDisplayLocked forwards the loaded image toward the display
// surface. Renders are serialized with latest-wins coalescing: a render in
// flight makes newer images overwrite the single pending slot, so the
// displayed image trails the loaded one by at most one step. Without a
// surface, displayed state follows loaded state immediately.
func (r *Resolver[ID]) handoffDisplayLocked() {
	loaded := r.led.loaded
	if !loaded.ok {
		return
	}
	if r.surface == nil {
		r.applyDisplayedLocked(loaded.id, loaded.img)
		return
	}
	r.renderPending = &renderJob[ID]{id: loaded.id, img: loaded.img}
	if !r.rendering {
		r.rendering = true
		go r.renderLoop()
	}
}

// applyDisplayedLocked records an acknowledged render. The image-displayed
// notification fires only when the on-screen image changed; the
// display-finished notification fires for every acknowledged render.
func (r *Resolver[ID]) applyDisplayedLocked(id ID, img *Image) {
	changed := !r.led.displayed.ok || r.led.displayed.img != img
	r.led.displayed = displayedImage[ID]{ok: true, id: id, img: img}
	if r.metrics != nil {
		r.metrics.IncRenders()
	}
	if changed {
		r.enqueueLocked(displayedEvent(id, img))
	}
	r.enqueueLocked(displayFinishedEvent(id, img))
}

// renderLoop drains the pending render slot one image at a time. It exits
// when no work remains and is restarted by the next handoff.
func (r *Resolver[ID]) renderLoop() {
	for {
		r.mu.Lock()
		job := r.renderPending
		r.renderPending = nil
		surface := r.surface
		if job == nil || r.closed || surface == nil {
			r.rendering = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		err := surface.Render(r.baseCtx, job.img)

		r.mu.Lock()
		if r.closed {
			r.rendering = false
			r.mu.Unlock()
			return
		}
		if err != nil {
			r.logger.Warn("render failed", "identifier", job.id, "err", err)
			r.mu.Unlock()
			continue
		}
		r.applyDisplayedLocked(job.id, job.img)
		r.mu.Unlock()
		r.dispatch()
	}
}
