// Package mediatypes classifies files by extension for the batch renamer
// cache: which thumbnail producer handles a file, which metadata extractor
// applies, and the MIME type recorded with its metadata.
//
//	switch mediatypes.KindOf(path) {
//	case mediatypes.Image:
//	    // image producer
//	case mediatypes.Video:
//	    // ffmpeg producer
//	}
package mediatypes
