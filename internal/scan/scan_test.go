package scan

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"batch-renamer/internal/mediatypes"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := []string{
		"a.jpg",
		"b.mp4",
		"notes.txt",
		".hidden.jpg",
		"sub/c.png",
		"sub/deeper/d.flac",
		".cache/e.jpg",
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func rel(t *testing.T, root string, files []File) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		r, err := filepath.Rel(root, f.Path)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestWalk(t *testing.T) {
	root := buildTree(t)

	tests := []struct {
		name   string
		config Config
		want   []string
	}{
		{
			name:   "default",
			config: DefaultConfig(),
			want:   []string{"a.jpg", "b.mp4", "notes.txt", "sub/c.png", "sub/deeper/d.flac"},
		},
		{
			name:   "include hidden",
			config: Config{Workers: 2, Recursive: true},
			want:   []string{".cache/e.jpg", ".hidden.jpg", "a.jpg", "b.mp4", "notes.txt", "sub/c.png", "sub/deeper/d.flac"},
		},
		{
			name:   "non-recursive",
			config: Config{Workers: 1, SkipHidden: true},
			want:   []string{"a.jpg", "b.mp4", "notes.txt"},
		},
		{
			name: "images only",
			config: Config{
				SkipHidden: true,
				Recursive:  true,
				Kinds:      []mediatypes.Kind{mediatypes.Image},
			},
			want: []string{"a.jpg", "sub/c.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := NewWalker(root, tt.config).Walk(context.Background())
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if got := rel(t, root, files); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Walk() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWalkFileFacts(t *testing.T) {
	root := buildTree(t)
	files, err := NewWalker(root, Config{Kinds: []mediatypes.Kind{mediatypes.Audio}, Recursive: true}).Walk(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 audio file, got %d", len(files))
	}

	f := files[0]
	if f.Name != "d.flac" || f.Kind != mediatypes.Audio {
		t.Errorf("unexpected file %+v", f)
	}
	if f.Folder != filepath.Join(root, "sub", "deeper") {
		t.Errorf("Folder = %s", f.Folder)
	}
	if f.Size != int64(len("sub/deeper/d.flac")) {
		t.Errorf("Size = %d", f.Size)
	}
	if f.ModTime.IsZero() {
		t.Error("ModTime not set")
	}
}

func TestWalkStats(t *testing.T) {
	root := buildTree(t)
	w := NewWalker(root, DefaultConfig())
	if _, err := w.Walk(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := w.Stats()
	if stats.Files != 5 {
		t.Errorf("Files = %d, want 5", stats.Files)
	}
	if stats.Folders != 2 {
		t.Errorf("Folders = %d, want 2", stats.Folders)
	}
	if stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (hidden file and hidden folder)", stats.Skipped)
	}

	// A second walk starts from zero
	if _, err := w.Walk(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := w.Stats().Files; got != 5 {
		t.Errorf("Files after second walk = %d, want 5", got)
	}
}

func TestWalkMissingRoot(t *testing.T) {
	_, err := NewWalker(filepath.Join(t.TempDir(), "nope"), DefaultConfig()).Walk(context.Background())
	if err == nil {
		t.Error("expected error for missing root")
	}
}

func TestWalkCancelled(t *testing.T) {
	root := buildTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewWalker(root, DefaultConfig()).Walk(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestPaths(t *testing.T) {
	got := Paths([]File{{Path: "/a"}, {Path: "/b"}})
	if !reflect.DeepEqual(got, []string{"/a", "/b"}) {
		t.Errorf("Paths() = %v", got)
	}
}
