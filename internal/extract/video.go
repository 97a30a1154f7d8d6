package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
)

// ffprobeOutput is the subset of `ffprobe -show_format -show_streams` JSON
// that is kept.
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// VideoExtractor probes videos with ffprobe. It only runs for extended
// extractions and is a no-op when ffprobe is not installed.
type VideoExtractor struct {
	// FFprobePath defaults to "ffprobe" resolved through PATH.
	FFprobePath string

	once     sync.Once
	resolved string
}

func (*VideoExtractor) Name() string { return "video" }

func (*VideoExtractor) Supports(kind mediatypes.Kind) bool {
	return kind == mediatypes.Video
}

func (v *VideoExtractor) binary() string {
	v.once.Do(func() {
		name := v.FFprobePath
		if name == "" {
			name = "ffprobe"
		}
		path, err := exec.LookPath(name)
		if err != nil {
			logging.Debug("ffprobe not available, video metadata limited to file facts: %v", err)
			return
		}
		v.resolved = path
	})
	return v.resolved
}

func (v *VideoExtractor) Extract(ctx context.Context, path string, extended bool, data map[string]any) error {
	if !extended {
		return nil
	}
	bin := v.binary()
	if bin == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseFFprobe(out, data)
}

func parseFFprobe(out []byte, data map[string]any) error {
	var info ffprobeOutput
	if err := json.Unmarshal(out, &info); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if d, err := strconv.ParseFloat(info.Format.Duration, 64); err == nil && d > 0 {
		data["duration"] = d
	}
	if br, err := strconv.ParseInt(info.Format.BitRate, 10, 64); err == nil && br > 0 {
		data["bit_rate"] = br
	}
	setString(data, "container", info.Format.FormatName)

	for _, s := range info.Streams {
		if s.CodecType != "video" {
			continue
		}
		setString(data, "video_codec", s.CodecName)
		if s.Width > 0 && s.Height > 0 {
			data["width"] = s.Width
			data["height"] = s.Height
		}
		if fps := parseFrameRate(s.AvgFrameRate); fps > 0 {
			data["frame_rate"] = fps
		}
		break
	}
	return nil
}

// parseFrameRate turns ffprobe's "30000/1001" form into frames per second.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return float64(int(n/d*1000+0.5)) / 1000
}
