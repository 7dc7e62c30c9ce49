// Package middleware provides HTTP middleware for the gallery viewer API.
//
// It includes:
//   - Request logging in W3C Extended Log Format through the application log
//   - Response compression with github.com/klauspost/compress/gzhttp
//   - Prometheus request metrics labelled by route template
//
// Every wrapper keeps http.Hijacker working so the event websocket can be
// upgraded behind it.
package middleware
