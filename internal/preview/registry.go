package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/google/uuid"

	"github.com/example/leaf-check/internal/selection"
)

// ErrReleased is returned when a preview handle is revoked that is not live.
var ErrReleased = errors.New("preview already released")

// Preview is a revocable handle derived from one Selection. It is only valid
// while that Selection is current.
type Preview struct {
	URI         string
	SelectionID string
	Name        string
	Size        int64
	// Format, Width and Height are empty when the bytes are not a decodable image.
	Format string
	Width  int
	Height int
}

// Registry creates and revokes preview handles.
type Registry interface {
	Create(sel *selection.Selection) (*Preview, error)
	Revoke(p *Preview) error
}

// MemoryRegistry keeps preview bytes in memory keyed by handle URI.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string][]byte)}
}

// Create reads the selection's file and registers a new handle for it.
func (r *MemoryRegistry) Create(sel *selection.Selection) (*Preview, error) {
	data, err := selection.ReadAll(sel.File)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sel.File.Name(), err)
	}

	p := &Preview{
		URI:         "preview://" + uuid.NewString(),
		SelectionID: sel.ID,
		Name:        sel.File.Name(),
		Size:        int64(len(data)),
	}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		p.Format = format
		p.Width = cfg.Width
		p.Height = cfg.Height
	}

	r.mu.Lock()
	r.entries[p.URI] = data
	r.mu.Unlock()
	return p, nil
}

// Revoke frees the bytes behind p. Revoking twice returns ErrReleased.
func (r *MemoryRegistry) Revoke(p *Preview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[p.URI]; !ok {
		return ErrReleased
	}
	delete(r.entries, p.URI)
	return nil
}

// Open returns the bytes behind a live handle.
func (r *MemoryRegistry) Open(uri string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.entries[uri]
	return data, ok
}

// Live reports how many handles have not been revoked.
func (r *MemoryRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
