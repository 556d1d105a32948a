package multiplex

// EventKind enumerates resolver notifications.
type EventKind int

const (
	KindDownloadStarted EventKind = iota
	KindDownloadProgressed
	KindDownloadFinished
	KindImageUpdated
	KindImageDisplayed
	KindDisplayFinished
	KindClosed
)

func (k EventKind) String() string {
	switch k {
	case KindDownloadStarted:
		return "download_started"
	case KindDownloadProgressed:
		return "download_progressed"
	case KindDownloadFinished:
		return "download_finished"
	case KindImageUpdated:
		return "image_updated"
	case KindImageDisplayed:
		return "image_displayed"
	case KindDisplayFinished:
		return "display_finished"
	case KindClosed:
		return "closed"
	default:
		return ""
	}
}

// Event is a single resolver notification as delivered on channels from
// [Resolver.Subscribe]. Fields beyond Kind and Identifier are populated
// per kind: Fraction for progress, Err for finished downloads, Image and
// the Previous pair for updates and displays.
type Event[ID comparable] struct {
	Kind               EventKind
	Identifier         ID
	Fraction           float64
	Err                error
	Image              *Image
	Previous           *Image
	PreviousIdentifier ID
	HasPrevious        bool
}

// ImageUpdate describes a newly accepted image replacing the previous one.
// HasPrevious is false for the first accepted image, leaving Previous nil
// and PreviousIdentifier at its zero value.
type ImageUpdate[ID comparable] struct {
	Image              *Image
	Identifier         ID
	Previous           *Image
	PreviousIdentifier ID
	HasPrevious        bool
}

// Delegate receives resolver notifications. Each field is optional: a nil
// func means that notification is skipped for this delegate, in the manner
// of [net/http/httptrace.ClientTrace]. Funcs are invoked one at a time in
// notification order, off the caller's goroutine; they may call back into
// the resolver.
type Delegate[ID comparable] struct {
	// DownloadStarted fires exactly once per download, before any of its
	// progress notifications.
	DownloadStarted func(id ID)

	// DownloadProgressed fires with non-decreasing fractions in [0,1],
	// only between DownloadStarted and DownloadFinished for the same
	// identifier.
	DownloadProgressed func(id ID, fraction float64)

	// DownloadFinished fires exactly once per started download with its
	// outcome, and once for an identifier whose resolution failed before
	// any download could begin (carrying the causing error). An abandoned
	// download finishes with ErrBestImageIdentifierChanged.
	DownloadFinished func(id ID, err error)

	// ImageUpdated fires when a fetched image is accepted as the loaded
	// image, never for discarded results.
	ImageUpdated func(update ImageUpdate[ID])

	// ImageDisplayed fires after the display surface acknowledges a render
	// that changed what is on screen.
	ImageDisplayed func(id ID, img *Image)

	// DisplayFinished fires after every acknowledged render, changed or
	// not, following ImageDisplayed when both apply.
	DisplayFinished func(id ID, img *Image)
}

func startedEvent[ID comparable](id ID) Event[ID] {
	return Event[ID]{Kind: KindDownloadStarted, Identifier: id}
}

func progressedEvent[ID comparable](id ID, fraction float64) Event[ID] {
	return Event[ID]{Kind: KindDownloadProgressed, Identifier: id, Fraction: fraction}
}

func finishedEvent[ID comparable](id ID, err error) Event[ID] {
	return Event[ID]{Kind: KindDownloadFinished, Identifier: id, Err: err}
}

func updatedEvent[ID comparable](u ImageUpdate[ID]) Event[ID] {
	return Event[ID]{
		Kind:               KindImageUpdated,
		Identifier:         u.Identifier,
		Image:              u.Image,
		Previous:           u.Previous,
		PreviousIdentifier: u.PreviousIdentifier,
		HasPrevious:        u.HasPrevious,
	}
}

func displayedEvent[ID comparable](id ID, img *Image) Event[ID] {
	return Event[ID]{Kind: KindImageDisplayed, Identifier: id, Image: img}
}

func displayFinishedEvent[ID comparable](id ID, img *Image) Event[ID] {
	return Event[ID]{Kind: KindDisplayFinished, Identifier: id, Image: img}
}

func closedEvent[ID comparable]() Event[ID] {
	return Event[ID]{Kind: KindClosed}
}
