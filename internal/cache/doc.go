// Package cache provides the bounded in-memory tiers that sit in front of
// the durable hash and metadata stores.
//
// LRU is a generic least-recently-used map built on container/list. Tiered
// wraps one LRU around a Backend with write-through semantics: Put persists
// first and only then updates the tier, Get falls back to the backend on a
// miss and re-populates the tier, and Invalidate drops every discriminator
// cached for a path by key prefix.
//
// Keys are "path\x00discriminator", where the discriminator is the hash
// algorithm or the metadata kind.
package cache
