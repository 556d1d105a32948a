package multiplex

import "fmt"

var (
	// ErrNoSourceForImage reports that the data source offered neither a
	// direct image nor a URL for an identifier.
	ErrNoSourceForImage = fmt.Errorf("no source for image")

	// ErrBestImageIdentifierChanged is the benign cancellation cause
	// delivered when an in-flight fetch is abandoned because a better
	// identifier resolved first or the candidate list changed.
	ErrBestImageIdentifierChanged = fmt.Errorf("best image identifier changed")

	// ErrCacheMiss is returned by [Cache] implementations for a definite
	// miss.
	ErrCacheMiss = fmt.Errorf("cache miss")

	// ErrNoProvider reports that an identifier resolved to a URL but the
	// resolver has no cache or downloader to fetch it with.
	ErrNoProvider = fmt.Errorf("no provider can fetch locator")

	// ErrNoCandidates is returned by [Resolver.Await] when the candidate
	// list is empty and nothing is loaded.
	ErrNoCandidates = fmt.Errorf("no candidate identifiers")

	// ErrClosed is returned by [Resolver.Await] after [Resolver.Close] when
	// nothing was loaded.
	ErrClosed = fmt.Errorf("resolver closed")
)
