// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
//
// Key Implementations:
//   - [BlobRepository] : Cache index persistence with URL-based lookups, hit tracking, and coldest-first eviction order
//
// Sequence numbers provide stable, human-readable ordering (e.g., blob #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
