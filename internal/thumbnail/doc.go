// Package thumbnail produces, caches and serves thumbnails.
//
// ArtifactCache keeps generated thumbnails at two levels: a bounded
// in-memory LRU of decoded images and a directory of JPEG files named by a
// fingerprint of (path, mtime, size). Every file on disk is recorded in the
// database thumbnail index after it has been written, so an index entry
// never points at a missing file. A changed mtime or size changes the
// fingerprint, so stale thumbnails are never served.
//
// Pipeline accepts requests without blocking, merges identical pending
// requests (same path and size) into one job, and runs jobs on a fixed pool
// of workers. Each caller receives a Handle whose Events channel reports
// Started and then Completed or Failed. Failures are GenerationErrors and
// never stop the pool. Stop drains the queue, discards results finished
// while stopping, and cancels stragglers after a timeout.
//
// Producers turn a file into an image: ImageProducer uses libvips when it is
// initialized and falls back to the imaging library with size-constrained
// decoding; VideoProducer extracts a frame with ffmpeg.
package thumbnail
