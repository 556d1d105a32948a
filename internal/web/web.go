// Package web implements an HTMX-based web application mirroring the TUI functionality.
//
// # HTMX Web Application Implementation Plan
//
// # Architecture
//
// The web app replicates the TUI's progressive viewer using server-side
// rendering with HTMX for dynamic updates, layered over the existing
// internal/server jobs API. Each pane corresponds to a template and handler:
//
//  1. Job Form: Candidate URL list (best first) with hx-post to create a job
//  2. Candidate List: HTMX partial polled from job status, per-id state
//  3. Progress Monitor: SSE consumer over GET /api/jobs/{id}/events
//  4. Image View: <img> pointed at GET /api/jobs/{id}/image
//
// Core Components
//
//   - HTTP Server: the chi router in internal/server, extended with template routes
//   - Engine Integration: uses the same job registry as the JSON API
//   - SSE Handler: already served by the jobs API; the page subscribes directly
//
// Routes
//
//	GET  /                → Job form
//	POST /jobs            → Create job, redirect to its page
//	GET  /jobs/{id}       → Progress page (SSE consumer + image)
//	GET  /jobs/{id}/rows  → HTMX partial: candidate table rows
//
// Templates
//
//   - base.html: Layout
//   - form.html: Candidate list entry
//   - progress.html: SSE consumer with per-candidate progress bars
//
// # Progress Streaming
//
// The page consumes the jobs API's replay-then-live SSE stream, so a reload
// mid-resolution reconstructs the full event history before following along.
//
// Implementation Tasks
//
//  1. Template structure with HTMX integration
//  2. Form handler posting into the jobs registry
//  3. Candidate rows partial from job status
//  4. Progress page wiring SSE events to bar updates
//  5. Error handling and validation
//
// # Testing Strategy
//
// Use httptest against the extended router:
//   - Mock multiplex.Downloader for deterministic resolutions
//   - Validate HTMX headers and response structure
//   - Test SSE stream formatting
package web
