// Package tasks defines the event type background work reports over
// channels: the thumbnail pipeline, the hash producer and the metadata
// loader all publish Started, Progress, Completed and Failed events instead
// of calling back into their callers.
package tasks
