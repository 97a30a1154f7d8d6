package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind decides which producers and extractors apply to a file.
type Kind string

const (
	Image Kind = "image"
	Video Kind = "video"
	// Audio files only carry tags; they get no thumbnail.
	Audio Kind = "audio"
	Other Kind = "other"
)

// Thumbnailable reports whether the pipeline has a producer for k.
func (k Kind) Thumbnailable() bool {
	return k == Image || k == Video
}

// Format is what the cache knows about one extension.
type Format struct {
	Kind Kind
	MIME string
}

// DefaultMIME is reported for extensions not in the table.
const DefaultMIME = "application/octet-stream"

// formats is keyed by lower-case extension with the leading dot.
var formats = map[string]Format{
	".jpg":  {Image, "image/jpeg"},
	".jpeg": {Image, "image/jpeg"},
	".png":  {Image, "image/png"},
	".gif":  {Image, "image/gif"},
	".bmp":  {Image, "image/bmp"},
	".webp": {Image, "image/webp"},
	".tif":  {Image, "image/tiff"},
	".tiff": {Image, "image/tiff"},
	".heic": {Image, "image/heic"},
	".heif": {Image, "image/heif"},
	".avif": {Image, "image/avif"},

	".3gp":  {Video, "video/3gpp"},
	".avi":  {Video, "video/x-msvideo"},
	".flv":  {Video, "video/x-flv"},
	".m4v":  {Video, "video/x-m4v"},
	".mkv":  {Video, "video/x-matroska"},
	".mov":  {Video, "video/quicktime"},
	".mp4":  {Video, "video/mp4"},
	".mpeg": {Video, "video/mpeg"},
	".mpg":  {Video, "video/mpeg"},
	".ts":   {Video, "video/mp2t"},
	".webm": {Video, "video/webm"},
	".wmv":  {Video, "video/x-ms-wmv"},

	".aac":  {Audio, "audio/aac"},
	".flac": {Audio, "audio/flac"},
	".m4a":  {Audio, "audio/mp4"},
	".mp3":  {Audio, "audio/mpeg"},
	".ogg":  {Audio, "audio/ogg"},
	".wav":  {Audio, "audio/wav"},
}

// Lookup returns the format of path by its case-insensitive extension.
func Lookup(path string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// KindOf returns the kind of path, or Other for unknown extensions.
func KindOf(path string) Kind {
	if f, ok := Lookup(path); ok {
		return f.Kind
	}
	return Other
}

// MIMEOf returns the MIME type of path, or DefaultMIME.
func MIMEOf(path string) string {
	if f, ok := Lookup(path); ok {
		return f.MIME
	}
	return DefaultMIME
}
