package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"time"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/metrics"

	"github.com/disintegration/imaging"
)

// Artifact is a generated thumbnail before it is written to the cache.
type Artifact struct {
	Image image.Image
	// VideoFrameTime is the offset in seconds of the extracted frame.
	VideoFrameTime *float64
}

// Producer renders a thumbnail for one file kind. Implementations must honor
// ctx cancellation for long-running work and return a *GenerationError.
type Producer interface {
	Produce(ctx context.Context, path string, sizePx int) (Artifact, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, path string, sizePx int) (Artifact, error)

// Produce calls f.
func (f ProducerFunc) Produce(ctx context.Context, path string, sizePx int) (Artifact, error) {
	return f(ctx, path, sizePx)
}

// DefaultProducers returns the producers for images and videos.
func DefaultProducers() map[mediatypes.Kind]Producer {
	return map[mediatypes.Kind]Producer{
		mediatypes.Image: &ImageProducer{},
		mediatypes.Video: &VideoProducer{},
	}
}

// ImageProducer decodes still images with libvips when it is initialized and
// falls back to pure Go decoding otherwise.
type ImageProducer struct {
	MaxDimension int
	MaxPixels    int
}

// Produce implements Producer.
func (p *ImageProducer) Produce(ctx context.Context, path string, sizePx int) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, newGenerationError(FailureCancelled, path, err)
	}

	img, err := loadWithVips(path, sizePx)
	if err == nil {
		return Artifact{Image: img}, nil
	}
	if !errors.Is(err, errVipsUnavailable) {
		logging.Debug("Vips failed for %s, falling back to imaging: %v", path, err)
	}

	maxDim, maxPixels := p.MaxDimension, p.MaxPixels
	if maxDim <= 0 {
		maxDim = MaxImageDimension
	}
	if maxPixels <= 0 {
		maxPixels = MaxImagePixels
	}

	img, err = loadImageConstrained(path, maxDim, maxPixels)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, newGenerationError(FailureVanished, path, err)
		}
		return Artifact{}, newGenerationError(FailureCorrupt, path, err)
	}
	return Artifact{Image: imaging.Fit(img, sizePx, sizePx, imaging.Lanczos)}, nil
}

// VideoProducer extracts a frame with ffmpeg. It seeks to SeekSeconds first
// and falls back to the first frame for clips shorter than that.
type VideoProducer struct {
	// FFmpegPath defaults to "ffmpeg" resolved through PATH.
	FFmpegPath string
	// SeekSeconds defaults to 1.
	SeekSeconds float64
}

// Produce implements Producer.
func (p *VideoProducer) Produce(ctx context.Context, path string, sizePx int) (Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, newGenerationError(FailureVanished, path, err)
		}
		return Artifact{}, newGenerationError(FailureCorrupt, path, err)
	}

	ffmpeg := p.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffmpegPath, err := exec.LookPath(ffmpeg)
	if err != nil {
		return Artifact{}, newGenerationError(FailureUnsupported, path, fmt.Errorf("ffmpeg not found: %w", err))
	}

	seek := p.SeekSeconds
	if seek <= 0 {
		seek = 1
	}

	start := time.Now()
	defer func() { metrics.ThumbnailFFmpegDuration.Observe(time.Since(start).Seconds()) }()

	frameTime := seek
	output, err := extractFrame(ctx, ffmpegPath, path, seek)
	if err != nil || len(output) == 0 {
		if ctx.Err() != nil {
			return Artifact{}, newGenerationError(FailureCancelled, path, ctx.Err())
		}
		logging.Debug("Frame at %.1fs failed for %s, trying first frame", seek, path)
		frameTime = 0
		output, err = extractFrame(ctx, ffmpegPath, path, 0)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Artifact{}, newGenerationError(FailureCancelled, path, ctx.Err())
		}
		return Artifact{}, newGenerationError(FailureCorrupt, path, err)
	}
	if len(output) == 0 {
		return Artifact{}, newGenerationError(FailureCorrupt, path, errors.New("ffmpeg produced no output"))
	}

	img, err := imaging.Decode(bytes.NewReader(output))
	if err != nil {
		return Artifact{}, newGenerationError(FailureCorrupt, path, fmt.Errorf("failed to decode ffmpeg output: %w", err))
	}

	return Artifact{
		Image:          imaging.Fit(img, sizePx, sizePx, imaging.Lanczos),
		VideoFrameTime: &frameTime,
	}, nil
}

// extractFrame runs ffmpeg and returns one PNG frame at seekSeconds. A zero
// seek reads the first frame. The process is killed when ctx is done.
func extractFrame(ctx context.Context, ffmpegPath, path string, seekSeconds float64) ([]byte, error) {
	var args []string
	if seekSeconds > 0 {
		args = append(args, "-ss", strconv.FormatFloat(seekSeconds, 'f', 3, 64))
	}
	args = append(args,
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
