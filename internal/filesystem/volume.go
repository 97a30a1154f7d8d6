package filesystem

import (
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

const unknownVolume = "unknown"

// VolumeResolver labels paths with the configured volume they live on
// (media, cache, database) so retry metrics can tell an unhealthy NFS mount
// from a healthy local disk. The deepest matching root wins.
type VolumeResolver struct {
	roots []volumeRoot
}

type volumeRoot struct {
	dir  string
	name string
}

// NewVolumeResolver builds a resolver from volume name to root directory.
// Empty roots are ignored.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	vr := &VolumeResolver{}
	for name, dir := range volumes {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		vr.roots = append(vr.roots, volumeRoot{dir: filepath.Clean(dir), name: name})
	}
	sort.Slice(vr.roots, func(i, j int) bool {
		return len(vr.roots[i].dir) > len(vr.roots[j].dir)
	})
	return vr
}

// Resolve returns the volume label for path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil || path == "" {
		return unknownVolume
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return unknownVolume
	}
	for _, root := range vr.roots {
		if within(abs, root.dir) {
			return root.name
		}
	}
	return unknownVolume
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

var defaultResolver atomic.Pointer[VolumeResolver]

// SetDefaultVolumeResolver installs the resolver used when a RetryConfig
// does not carry its own. Call once at startup after configuration loads.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver.Store(vr)
}
