package multiplex

// subscription is one Subscribe listener. Events are sent in order; done
// unblocks a send abandoned by the unsubscribe func.
type subscription[ID comparable] struct {
	ch   chan Event[ID]
	done chan struct{}
}

// enqueueLocked appends an event to the ordered queue. Queue order is
// delivery order: a single drainer empties the queue outside the lock.
func (r *Resolver[ID]) enqueueLocked(ev Event[ID]) {
	r.queue = append(r.queue, ev)
}

// dispatch drains the event queue, delivering each event to the delegate
// snapshot and every subscriber before moving on. Only one drainer runs at
// a time; a call that loses the draining flag returns immediately and its
// events are delivered by the active drainer, preserving order even when a
// delegate func re-enters the resolver.
func (r *Resolver[ID]) dispatch() {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	for len(r.queue) > 0 {
		ev := r.queue[0]
		r.queue = r.queue[1:]
		delegate := r.delegate
		subs := make([]*subscription[ID], 0, len(r.subs))
		for _, sub := range r.subs {
			subs = append(subs, sub)
		}
		closing := ev.Kind == KindClosed
		if closing {
			r.subs = nil
		}
		r.mu.Unlock()

		r.deliver(ev, delegate, subs)
		if closing {
			for _, sub := range subs {
				close(sub.ch)
			}
		}

		r.mu.Lock()
	}
	r.draining = false
	r.mu.Unlock()
}

func (r *Resolver[ID]) deliver(ev Event[ID], d Delegate[ID], subs []*subscription[ID]) {
	switch ev.Kind {
	case KindDownloadStarted:
		if d.DownloadStarted != nil {
			d.DownloadStarted(ev.Identifier)
		}
	case KindDownloadProgressed:
		if d.DownloadProgressed != nil {
			d.DownloadProgressed(ev.Identifier, ev.Fraction)
		}
	case KindDownloadFinished:
		if d.DownloadFinished != nil {
			d.DownloadFinished(ev.Identifier, ev.Err)
		}
	case KindImageUpdated:
		if d.ImageUpdated != nil {
			d.ImageUpdated(ImageUpdate[ID]{
				Image:              ev.Image,
				Identifier:         ev.Identifier,
				Previous:           ev.Previous,
				PreviousIdentifier: ev.PreviousIdentifier,
				HasPrevious:        ev.HasPrevious,
			})
		}
	case KindImageDisplayed:
		if d.ImageDisplayed != nil {
			d.ImageDisplayed(ev.Identifier, ev.Image)
		}
	case KindDisplayFinished:
		if d.DisplayFinished != nil {
			d.DisplayFinished(ev.Identifier, ev.Image)
		}
	}

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}
