// Package scan walks a folder tree and lists the files the batch producers
// and the thumbnail pipeline work on.
//
// The walk itself is sequential (filepath.WalkDir) while stat and type
// classification run on a small worker pool, which keeps the walk cheap on
// network filesystems where each stat is a round trip.
package scan
