// Package hashing computes file content hashes in batches and records them
// in the hash store.
//
// Supported algorithms are CRC32 (IEEE), XXH64 and SHA256, written as
// lowercase hex. A file whose stored hash was taken at its current size is
// not read again. Progress and per-file outcomes are reported as
// tasks.Event values on an optional channel.
package hashing
