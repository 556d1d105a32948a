package multiplex

import (
	"context"
	"net/url"
)

// sourceAdapter normalizes the data source and optional providers behind
// the fixed acquisition order: direct image, locator, cache, download.
// Calls run on pipeline goroutines, never under the resolver's lock.
type sourceAdapter[ID comparable] struct {
	source     DataSource[ID]
	cache      Cache
	downloader Downloader
}

func (a sourceAdapter[ID]) direct(id ID) *Image {
	return a.source.Image(id)
}

func (a sourceAdapter[ID]) locator(id ID) *url.URL {
	return a.source.URL(id)
}

func (a sourceAdapter[ID]) hasCache() bool {
	return a.cache != nil
}

func (a sourceAdapter[ID]) hasDownloader() bool {
	return a.downloader != nil
}

func (a sourceAdapter[ID]) fetchCached(ctx context.Context, u *url.URL) (*Image, error) {
	return a.cache.Fetch(ctx, u)
}

func (a sourceAdapter[ID]) download(ctx context.Context, u *url.URL, progress func(float64)) (*Image, error) {
	return a.downloader.Fetch(ctx, u, progress)
}
