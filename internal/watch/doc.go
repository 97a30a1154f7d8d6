// Package watch keeps the caches honest when files change behind the
// application's back.
//
// A Watcher subscribes to folders with fsnotify. Writes and creations drop
// the file's in-memory tier entries so the next read consults the durable
// store, whose size and mtime checks decide freshness. Removals and renames
// additionally drop the file's thumbnail artifacts and index rows. Durable
// hash and metadata records are kept: a rename performed through the
// application moves them to the new path, and an external rename can be
// reconciled the same way.
package watch
