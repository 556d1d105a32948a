package multiplex

import (
	"context"
	"net/url"
)

// opState is the lifecycle of one identifier's fetch pipeline.
type opState int

const (
	opIdle opState = iota
	opAwaitingCache
	opAwaitingDownload
	opSucceeded
	opFailed
	opAbandoned
)

func (s opState) String() string {
	switch s {
	case opIdle:
		return "idle"
	case opAwaitingCache:
		return "awaiting_cache"
	case opAwaitingDownload:
		return "awaiting_download"
	case opSucceeded:
		return "succeeded"
	case opFailed:
		return "failed"
	case opAbandoned:
		return "abandoned"
	default:
		return ""
	}
}

// origin records which pipeline stage produced an image.
type origin int

const (
	originDirect origin = iota
	originCache
	originDownload
)

func (o origin) String() string {
	switch o {
	case originDirect:
		return "direct"
	case originCache:
		return "cache"
	case originDownload:
		return "download"
	default:
		return ""
	}
}

// operation is one identifier's in-flight fetch. Identity in the ledger's
// ops map plus the generation stamp decide whether a completion is still
// current; everything else is bookkeeping for the notification guarantees.
type operation[ID comparable] struct {
	id     ID
	gen    uint64
	state  opState
	ctx    context.Context
	cancel context.CancelFunc

	// acceptEqual marks an operation launched by Reload for a changed
	// source; its result may replace the loaded image at equal rank.
	acceptEqual bool

	downloadStarted  bool
	downloadFinished bool
	lastFraction     float64
	terminal         bool
	locator          *url.URL
}
