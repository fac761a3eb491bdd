package selection

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source records how a file reached the uploader.
type Source string

const (
	SourceBrowse Source = "browse"
	SourceDrop   Source = "drop"
)

// Selection is the user's current input. Its ID changes on every Select,
// even when the same file is chosen twice.
type Selection struct {
	ID         string
	File       File
	Source     Source
	SelectedAt time.Time
}

// Listener observes selection changes. A nil selection means cleared.
type Listener func(sel *Selection)

// Store holds at most one Selection. It is not safe for concurrent use; the
// controller serializes access.
type Store struct {
	current   *Selection
	listeners []Listener
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore constructs an empty store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{logger: logger.Named("selection"), now: time.Now}
}

// OnChange registers a listener invoked synchronously after every mutation.
func (s *Store) OnChange(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Current returns the active selection or nil.
func (s *Store) Current() *Selection {
	return s.current
}

// Select replaces the current selection unconditionally. A nil file is
// ignored and reported as false.
func (s *Store) Select(file File, source Source) bool {
	if file == nil {
		return false
	}
	sel := &Selection{
		ID:         uuid.NewString(),
		File:       file,
		Source:     source,
		SelectedAt: s.now().UTC(),
	}
	s.current = sel
	s.logger.Debug("selection replaced",
		zap.String("selection_id", sel.ID),
		zap.String("name", file.Name()),
		zap.String("source", string(source)),
	)
	s.notify(sel)
	return true
}

// Clear drops the current selection. Calling it with nothing selected is a
// no-op apart from notifying listeners.
func (s *Store) Clear() {
	s.current = nil
	s.logger.Debug("selection cleared")
	s.notify(nil)
}

func (s *Store) notify(sel *Selection) {
	for _, l := range s.listeners {
		l(sel)
	}
}
