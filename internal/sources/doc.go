// Package sources implements the providers the resolution engine draws
// images from.
//
// Key Implementations:
//   - [HTTPDownloader] : origin fetches with streamed progress, size caps, pacing, and optional bearer auth
//   - [DiskCache] : blob files on disk indexed by SQLite, pruned coldest-first
//   - [MemoryCache] : small in-process LRU in front of the disk tier
//   - [Tiered] : memory-then-disk composition with backfill
//   - [StaticSource] : fixed identifier-to-source mapping for CLI and tests
//
// All providers satisfy the multiplex package's DataSource, Cache, or
// Downloader contracts; [Store] adds the write-through side caches share.
package sources
