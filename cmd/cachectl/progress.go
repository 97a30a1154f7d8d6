package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/scan"
	"batch-renamer/internal/tasks"
)

// newProgressBar returns nil when stdout is not a terminal or output is
// quiet, so piped output stays clean.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if quiet || !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// drainEvents consumes events until the channel is closed. Progress events
// with task ID progressID advance bar; Failed events are returned.
func drainEvents(events <-chan tasks.Event, bar *progressbar.ProgressBar, progressID string) []tasks.Event {
	var failures []tasks.Event
	for e := range events {
		switch e.Kind {
		case tasks.KindProgress:
			if bar != nil && e.TaskID == progressID {
				_ = bar.Set(e.Current)
			}
		case tasks.KindFailed:
			failures = append(failures, e)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return failures
}

// runWithEvents runs fn with an events channel drained into a progress bar
// and returns the failures it reported.
func runWithEvents(total int, description, progressID string, fn func(events chan<- tasks.Event)) []tasks.Event {
	events := make(chan tasks.Event, 64)
	bar := newProgressBar(total, description)

	done := make(chan []tasks.Event, 1)
	go func() { done <- drainEvents(events, bar, progressID) }()

	fn(events)
	close(events)
	return <-done
}

func printFailures(failures []tasks.Event) {
	const maxShown = 20
	for i, f := range failures {
		if i == maxShown {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(failures)-maxShown)
			break
		}
		fmt.Fprintf(os.Stderr, "  FAILED %s: %v\n", f.TaskID, f.Err)
	}
}

// collectPaths expands args into absolute file paths. Directories are
// walked (recursively when recursive is set) for files of the given kinds;
// an empty kinds list accepts every file.
func collectPaths(ctx context.Context, args []string, recursive bool, kinds ...mediatypes.Kind) ([]string, error) {
	var paths []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, abs)
			continue
		}

		cfg := scan.DefaultConfig()
		cfg.Recursive = recursive
		cfg.Kinds = kinds
		files, err := scan.NewWalker(abs, cfg).Walk(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		paths = append(paths, scan.Paths(files)...)
	}
	return paths, nil
}
