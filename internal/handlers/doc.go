// Package handlers provides the HTTP API of the gallery viewer.
//
// It includes handlers for:
//   - Gallery listing, detail, opening, rating, metadata edits and deletion
//   - Scans, metadata searches and duplicate resolution
//   - A websocket stream of library events
//   - Health checks, version information and Prometheus metrics
package handlers
