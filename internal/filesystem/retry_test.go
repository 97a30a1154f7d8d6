package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastRetry(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, InitialBackoff: time.Microsecond, MaxBackoff: 4 * time.Microsecond}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"estale", syscall.ESTALE, true},
		{"wrapped estale", &fs.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"fmt wrapped", fmt.Errorf("open: %w", syscall.ESTALE), true},
		{"enoent", syscall.ENOENT, false},
		{"plain error", errors.New("stale"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStale(tt.err); got != tt.want {
				t.Errorf("isStale(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryRecoversFromStaleHandle(t *testing.T) {
	calls := 0
	got, err := withRetry("stat", "/media/a.jpg", fastRetry(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("withRetry returned %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := withRetry("open", "/media/a.jpg", fastRetry(2), func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Errorf("err = %v, want ESTALE", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	_, err := withRetry("stat", "/media/a.jpg", fastRetry(3), func() (int, error) {
		calls++
		return 0, os.ErrNotExist
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStatAndOpenWithRetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil || info.Size() != 3 {
		t.Fatalf("StatWithRetry = %v, %v", info, err)
	}

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry: %v", err)
	}
	f.Close()

	if _, err := StatWithRetry(path+".missing", DefaultRetryConfig()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"media":    "/srv/media",
		"cache":    "/srv/media/.cache",
		"database": "/var/lib/batch-renamer",
		"ignored":  "",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/srv/media/photos/a.jpg", "media"},
		{"/srv/media", "media"},
		{"/srv/media/.cache/thumbnails/x.jpg", "cache"},
		{"/srv/mediaextra/a.jpg", "unknown"},
		{"/var/lib/batch-renamer/batch-renamer.db", "database"},
		{"/tmp/other", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}

	var nilResolver *VolumeResolver
	if got := nilResolver.Resolve("/srv/media/a.jpg"); got != "unknown" {
		t.Errorf("nil resolver = %q", got)
	}
}

func TestRetryConfigVolume(t *testing.T) {
	t.Cleanup(func() { SetDefaultVolumeResolver(nil) })

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"media": "/srv/media"}))
	cfg := DefaultRetryConfig()
	if got := cfg.volume("/srv/media/a.jpg"); got != "media" {
		t.Errorf("default resolver volume = %q", got)
	}

	cfg.VolumeResolver = NewVolumeResolver(map[string]string{"cache": "/srv/media"})
	if got := cfg.volume("/srv/media/a.jpg"); got != "cache" {
		t.Errorf("config resolver volume = %q", got)
	}
}

func TestFactsAndExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	facts, ok := Facts(path)
	if !ok || facts.Size != 5 || facts.IsDir || facts.ModTime.IsZero() {
		t.Errorf("Facts(file) = %+v, %v", facts, ok)
	}
	if !Exists(path) {
		t.Error("Exists(file) = false")
	}
	if Exists(dir) {
		t.Error("Exists(dir) = true")
	}
	if _, ok := Facts(filepath.Join(dir, "missing")); ok {
		t.Error("Facts(missing) ok = true")
	}
}
