package selection

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// File is the raw binary handle the user picked. Contents are opened lazily
// and may be opened more than once.
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FromPath returns a File backed by a path on disk.
func FromPath(path string) File {
	return pathFile{path: path}
}

// FromBytes returns a File backed by an in-memory buffer.
func FromBytes(name string, data []byte) File {
	return bytesFile{name: name, data: data}
}

type pathFile struct {
	path string
}

func (f pathFile) Name() string { return filepath.Base(f.path) }

func (f pathFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

type bytesFile struct {
	name string
	data []byte
}

func (f bytesFile) Name() string { return f.name }

func (f bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// ReadAll returns the full contents of f.
func ReadAll(f File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
