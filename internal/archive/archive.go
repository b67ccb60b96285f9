// Package archive provides the byte accessors the loader reads bundle entries through.
package archive

import (
	"io/fs"
	"os"
)

// Accessor returns the full contents of a named entry, or false when absent.
// Names match exactly and case-sensitively.
type Accessor interface {
	Get(name string) ([]byte, bool)
}

// AccessorFunc adapts a function to Accessor.
type AccessorFunc func(name string) ([]byte, bool)

// Get calls f(name).
func (f AccessorFunc) Get(name string) ([]byte, bool) { return f(name) }

// Map is an in-memory bundle keyed by entry name.
type Map map[string][]byte

// Get returns a copy of the entry so callers cannot alter the bundle.
func (m Map) Get(name string) ([]byte, bool) {
	data, ok := m[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Dir reads entries from an unpacked bundle directory.
type Dir struct {
	fsys fs.FS
}

// NewDir creates an accessor rooted at path.
func NewDir(path string) *Dir {
	return &Dir{fsys: os.DirFS(path)}
}

// NewFS creates an accessor over any file system, e.g. an embed.FS or fstest.MapFS.
func NewFS(fsys fs.FS) *Dir {
	return &Dir{fsys: fsys}
}

// Get reads name from the directory. Names that would escape the root are absent.
func (d *Dir) Get(name string) ([]byte, bool) {
	if !fs.ValidPath(name) {
		return nil, false
	}
	data, err := fs.ReadFile(d.fsys, name)
	if err != nil {
		return nil, false
	}
	return data, true
}
