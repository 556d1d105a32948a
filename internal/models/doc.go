// Package models defines domain entities and persistence interfaces for the imgmux cache index.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs summarizing persisted state
//   - [CacheStats] : Aggregate size, hit, and age figures for the whole index
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [Blob] : One cached image payload, keyed by source URL, pointing at its on-disk file
//
// All persistent entities implement the Model interface providing ID generation, timestamps, and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
