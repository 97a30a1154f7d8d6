package thumbnail

import (
	"errors"
	"fmt"
)

// ErrGeneration matches every GenerationError with errors.Is.
var ErrGeneration = errors.New("thumbnail generation failed")

// FailureKind classifies a GenerationError.
type FailureKind string

const (
	// FailureUnsupported means no producer handles the file type.
	FailureUnsupported FailureKind = "unsupported"
	// FailureCorrupt means the producer could not decode the file.
	FailureCorrupt FailureKind = "corrupt"
	// FailureVanished means the file no longer exists.
	FailureVanished FailureKind = "vanished"
	// FailureCancelled means the pipeline stopped before a result was kept.
	FailureCancelled FailureKind = "cancelled"
)

// GenerationError reports why a thumbnail could not be produced for Path.
type GenerationError struct {
	Kind FailureKind
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("thumbnail %s for %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("thumbnail %s for %s", e.Kind, e.Path)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches ErrGeneration.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func newGenerationError(kind FailureKind, path string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Path: path, Err: err}
}

// KindOf returns the FailureKind of err, or "" when err is not a
// GenerationError.
func KindOf(err error) FailureKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
