package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"sync"
)

// MaxEntrySize caps the decompressed size of a single entry.
const MaxEntrySize = 512 << 20

// Zip reads entries from a zip bundle. The archive is opened on first use
// and the handle is shared between calls under a mutex.
type Zip struct {
	path string

	mu     sync.Mutex
	reader *zip.Reader
	closer io.Closer
	index  map[string]*zip.File
	err    error
}

// OpenZip returns an accessor for the zip file at path. Opening is deferred
// until the first Get; use Open to surface errors early.
func OpenZip(path string) *Zip {
	return &Zip{path: path}
}

// NewZip wraps an already open archive, for example one held in memory.
func NewZip(r io.ReaderAt, size int64) (*Zip, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read zip archive: %w", err)
	}
	z := &Zip{}
	z.setReader(zr, nil)
	return z, nil
}

// Open opens the archive if needed and reports any error doing so.
func (z *Zip) Open() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.openLocked()
}

func (z *Zip) openLocked() error {
	if z.reader != nil || z.err != nil {
		return z.err
	}
	rc, err := zip.OpenReader(z.path)
	if err != nil {
		z.err = fmt.Errorf("failed to open zip archive %s: %w", z.path, err)
		return z.err
	}
	z.setReader(&rc.Reader, rc)
	return nil
}

func (z *Zip) setReader(zr *zip.Reader, closer io.Closer) {
	z.reader = zr
	z.closer = closer
	z.index = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if _, dup := z.index[f.Name]; !dup {
			z.index[f.Name] = f
		}
	}
}

// Get decompresses the named entry. Entries that fail to decompress, or are
// larger than MaxEntrySize, are reported as absent.
func (z *Zip) Get(name string) ([]byte, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if err := z.openLocked(); err != nil {
		return nil, false
	}
	f, ok := z.index[name]
	if !ok || f.FileInfo().IsDir() || f.UncompressedSize64 > MaxEntrySize {
		return nil, false
	}

	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil || len(data) > MaxEntrySize {
		return nil, false
	}
	return data, true
}

// Names lists the entries of the archive in archive order.
func (z *Zip) Names() ([]string, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if err := z.openLocked(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(z.reader.File))
	for _, f := range z.reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// Close releases the file handle. The accessor must not be used afterwards.
func (z *Zip) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closer == nil {
		return nil
	}
	err := z.closer.Close()
	z.closer = nil
	z.reader = nil
	z.index = nil
	z.err = fmt.Errorf("zip archive %s is closed", z.path)
	return err
}
