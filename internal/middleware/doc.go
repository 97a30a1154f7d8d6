// Package middleware provides HTTP middleware for the cache service API.
//
// It includes:
//   - W3C Extended access logging through the logging package
//   - Prometheus request metrics labelled by route template
//   - gzip compression of JSON responses
package middleware
