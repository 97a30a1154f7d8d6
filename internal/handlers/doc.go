// Package handlers provides the HTTP API of the cache service.
//
// It includes handlers for:
//   - Thumbnails served from the artifact cache or generated on demand
//   - Session state reads and writes
//   - Renames that carry hash and metadata records to the new path
//   - Manual thumbnail order reset
//   - Health checks, version, store and cache statistics
package handlers
