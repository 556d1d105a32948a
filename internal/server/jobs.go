package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
	"github.com/desertthunder/imgmux/internal/sources"
)

// jobRequest is the POST /api/jobs payload.
type jobRequest struct {
	// Candidates ranks source URLs best first.
	Candidates []string `json:"candidates"`
	// Intermediates downloads worse-ranked candidates while better ones
	// are still pending.
	Intermediates bool `json:"intermediates,omitempty"`
	// Refresh skips cache reads so the job downloads fresh bytes.
	Refresh bool `json:"refresh,omitempty"`
}

// jobStatus is the JSON view of a job.
type jobStatus struct {
	ID            string      `json:"id"`
	Candidates    []string    `json:"candidates"`
	Intermediates bool        `json:"intermediates"`
	CreatedAt     time.Time   `json:"created_at"`
	Settled       bool        `json:"settled"`
	Events        int         `json:"events"`
	Loaded        *loadedView `json:"loaded,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// loadedView describes the best image a job holds.
type loadedView struct {
	ID          string `json:"id"`
	Rank        int    `json:"rank"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	SourceURL   string `json:"source_url,omitempty"`
}

// eventView is the SSE payload for one resolution event.
type eventView struct {
	Kind        string  `json:"kind"`
	ID          string  `json:"id,omitempty"`
	Fraction    float64 `json:"fraction,omitempty"`
	Error       string  `json:"error,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Previous    string  `json:"previous,omitempty"`
}

func newEventView(ev multiplex.Event[string]) eventView {
	view := eventView{
		Kind:     ev.Kind.String(),
		ID:       ev.Identifier,
		Fraction: ev.Fraction,
	}
	if ev.Err != nil {
		view.Error = ev.Err.Error()
	}
	if ev.Image != nil {
		view.ContentType = ev.Image.ContentType
		view.Size = ev.Image.Size()
	}
	if ev.HasPrevious {
		view.Previous = ev.PreviousIdentifier
	}
	return view
}

// job pairs a resolver with its notification history so late SSE clients can
// replay the full sequence.
type job struct {
	id            string
	ids           []string
	intermediates bool
	createdAt     time.Time
	resolver      *multiplex.Resolver[string]

	mu         sync.Mutex
	history    []multiplex.Event[string]
	clients    map[uint64]chan multiplex.Event[string]
	nextClient uint64
	done       bool
	settled    bool
	outcomeErr error
}

// newJob builds a job over the shared cache and downloader and starts its
// resolution.
func (s *Server) newJob(req jobRequest) (*job, error) {
	src, ids, err := sources.FromURLs(req.Candidates)
	if err != nil {
		return nil, err
	}

	cache := s.cache
	if req.Refresh {
		cache = nil
	}

	j := &job{
		id:            shared.GenerateID(),
		ids:           ids,
		intermediates: req.Intermediates,
		createdAt:     time.Now().UTC(),
		clients:       make(map[uint64]chan multiplex.Event[string]),
	}
	j.resolver = multiplex.New[string](src, multiplex.Options{
		Cache:                  cache,
		Downloader:             s.downloader,
		Logger:                 s.logger,
		Metrics:                s.metrics,
		DownloadsIntermediates: req.Intermediates,
	})

	events, _ := j.resolver.Subscribe(256)
	go j.drain(events)
	go j.await()

	j.resolver.SetCandidates(ids...)
	return j, nil
}

// drain owns the job's subscription: it records history and fans events out
// to attached SSE clients until the resolver closes.
func (j *job) drain(events <-chan multiplex.Event[string]) {
	for ev := range events {
		j.mu.Lock()
		j.history = append(j.history, ev)
		for _, c := range j.clients {
			select {
			case c <- ev:
			default: // slow client; it can reconnect for a replay
			}
		}
		j.mu.Unlock()
	}

	j.mu.Lock()
	j.done = true
	for id, c := range j.clients {
		close(c)
		delete(j.clients, id)
	}
	j.mu.Unlock()
}

// await records the settled outcome without blocking status queries.
func (j *job) await() {
	_, _, err := j.resolver.Await(context.Background())
	j.mu.Lock()
	j.settled = true
	j.outcomeErr = err
	j.mu.Unlock()
}

// attach snapshots the history for replay and registers a live channel. The
// channel is nil when the job has already closed; detach is nil with it.
func (j *job) attach() ([]multiplex.Event[string], chan multiplex.Event[string], func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	replay := slices.Clone(j.history)
	if j.done {
		return replay, nil, nil
	}

	ch := make(chan multiplex.Event[string], 64)
	id := j.nextClient
	j.nextClient++
	j.clients[id] = ch

	detach := func() {
		j.mu.Lock()
		delete(j.clients, id)
		j.mu.Unlock()
	}
	return replay, ch, detach
}

func (j *job) status() jobStatus {
	j.mu.Lock()
	settled := j.settled
	outcomeErr := j.outcomeErr
	events := len(j.history)
	j.mu.Unlock()

	status := jobStatus{
		ID:            j.id,
		Candidates:    j.ids,
		Intermediates: j.intermediates,
		CreatedAt:     j.createdAt,
		Settled:       settled,
		Events:        events,
	}
	if id, img, ok := j.resolver.Loaded(); ok {
		status.Loaded = &loadedView{
			ID:          id,
			Rank:        slices.Index(j.ids, id),
			ContentType: img.ContentType,
			Size:        img.Size(),
			SourceURL:   img.SourceURL,
		}
	}
	if settled && outcomeErr != nil {
		status.Error = outcomeErr.Error()
	}
	return status
}

func (s *Server) job(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Server) takeJob(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	return j, ok
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, "candidates must rank at least one URL")
		return
	}

	j, err := s.newJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.logger.Info("job created", "id", j.id, "candidates", len(j.ids))
	writeJSON(w, http.StatusCreated, j.status())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.job(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j.status())
}

// handleImage serves the best loaded bytes so far, which may improve on a
// later request while the job is still resolving.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	j, ok := s.job(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	id, img, ok := j.resolver.Loaded()
	if !ok {
		writeError(w, http.StatusNotFound, "no image loaded yet")
		return
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Imgmux-Id", id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// handleEvents streams the notification sequence as server-sent events:
// a replay of history first, then live events until the job closes or the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	j, ok := s.job(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	replay, live, detach := j.attach()
	if detach != nil {
		defer detach()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	send := func(ev multiplex.Event[string]) bool {
		payload, err := json.Marshal(newEventView(ev))
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for _, ev := range replay {
		if !send(ev) {
			return
		}
	}
	if live == nil {
		return // job already closed; the replay was the whole story
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			if !send(ev) {
				return
			}
		}
	}
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.takeJob(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	j.resolver.Close()
	s.logger.Info("job deleted", "id", j.id)
	w.WriteHeader(http.StatusNoContent)
}
