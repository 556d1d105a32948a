// Package server exposes image resolution as an HTTP job API.
//
// # Job Model
//
// A job ranks candidate URLs best first and resolves them with its own
// [multiplex.Resolver]. All jobs share the server's cache and downloader, so
// concurrent jobs collapse duplicate fetches and reuse cached bytes.
//
// POST /api/jobs creates a job and answers with its id. The job keeps
// resolving in the background; GET /api/jobs/{id} reports status,
// GET /api/jobs/{id}/image serves the best loaded bytes so far, and
// DELETE /api/jobs/{id} cancels in-flight work.
//
// # Event Streaming
//
// GET /api/jobs/{id}/events streams the job's notification sequence as
// server-sent events. New clients first receive a replay of everything the
// job emitted, then live events in order, so a client attaching late still
// sees the full resolution story.
//
// # Operations
//
// GET /healthz answers liveness probes. GET /metrics exposes Prometheus
// metrics when the server is created with a metrics registry.
package server
