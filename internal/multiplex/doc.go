// package multiplex resolves the best available image from a ranked list of
// candidate identifiers.
//
// A [Resolver] is given identifiers ordered best first (typically descending
// quality renditions of the same picture) and a [DataSource] that maps each
// identifier to either a ready image or a URL. Candidates resolve through a
// fixed pipeline per identifier: direct image from the data source, then the
// [Cache], then the [Downloader]. A worse-ranked image that arrives early is
// shown early and replaced when a better one lands; a worse result can never
// replace a better one already loaded.
//
// By default only the best identifier is fetched. With
// [Options.DownloadsIntermediates] (or [Resolver.SetDownloadsIntermediates])
// the resolver opportunistically fetches worse-ranked candidates while
// better ones are still pending, so something is on screen sooner; pipelines
// made redundant by a better arrival are cancelled.
//
// Observers receive ordered notifications through a [Delegate] (a struct of
// optional funcs, nil fields skipped) or through [Resolver.Subscribe], which
// delivers the same sequence as [Event] values on a channel. Download
// progress is reported as a non-decreasing fraction in [0,1], bracketed by
// exactly one started and one finished notification per download.
//
// Rendering is decoupled from loading: an optional [DisplaySurface] is
// handed accepted images one at a time, newest first, and the displayed
// state may trail the loaded state by at most one image while a render is
// in flight.
//
// All Resolver methods are safe for concurrent use.
package multiplex
