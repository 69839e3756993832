// Package server exposes retrieval over HTTP.
//
// Endpoints:
//
//	GET  /search?q=...&k=...    ranked reviews for a free-text query
//	POST /answer                {"question": "...", "k": 4} -> generated answer and its sources
//	GET  /healthz               liveness and index size
//
// Errors are JSON objects of the form {"error": "..."}. An empty query is
// 400, a failing embedding provider 502 and an unreachable index 503, so
// clients can tell an outage from an empty result.
package server
