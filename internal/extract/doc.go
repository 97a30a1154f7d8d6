// Package extract reads descriptive metadata from media files and loads it
// into the metadata store.
//
// A fast extraction reads only file facts and cheap headers (image
// dimensions, audio tags). An extended extraction adds derived values and,
// for videos, an ffprobe pass. Extended records satisfy fast queries, so a
// file is never extracted twice for the same or a weaker kind.
//
// Loader serves cached records through the database's in-memory tier and
// writes new ones through it, mirroring known keys into the structured
// field registry.
package extract
