package multiplex

import (
	"context"
	"net/url"
)

// Image is a fetched payload. The resolver treats it as opaque bytes; it
// never decodes, transforms, or validates image data.
type Image struct {
	Data        []byte
	ContentType string
	SourceURL   string
}

// Size returns the payload length in bytes.
func (img *Image) Size() int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Data))
}

// DataSource maps candidate identifiers to their sources. Either method may
// return nil for an identifier that has no direct image or no URL.
//
// Methods are called outside the resolver's internal lock, possibly from
// several goroutines at once, and must be safe for concurrent use. Direct
// images should be returned as stable pointers so [Resolver.Reload] can tell
// an unchanged value from a new one.
type DataSource[ID comparable] interface {
	Image(id ID) *Image
	URL(id ID) *url.URL
}

// Cache retrieves previously stored images by URL. Fetch returns an error
// wrapping [ErrCacheMiss] for a definite miss; any other error is treated
// the same way when a downloader is available. Fetch must honor ctx
// cancellation.
type Cache interface {
	Fetch(ctx context.Context, u *url.URL) (*Image, error)
}

// Downloader retrieves images over the network. Implementations should call
// progress with fractions in [0,1] as data arrives (progress may be nil) and
// must honor ctx cancellation.
type Downloader interface {
	Fetch(ctx context.Context, u *url.URL, progress func(fraction float64)) (*Image, error)
}

// DisplaySurface renders accepted images. Render is never called
// concurrently; returning nil acknowledges the image is on screen. A render
// error leaves the previously displayed image in place.
type DisplaySurface interface {
	Render(ctx context.Context, img *Image) error
}
