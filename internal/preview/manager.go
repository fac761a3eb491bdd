package preview

import (
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/logging"
	"github.com/example/leaf-check/internal/selection"
)

// EventKind distinguishes the outcomes of a selection change.
type EventKind int

const (
	// Ready means a new preview was created for the selection.
	Ready EventKind = iota
	// Cleared means there is no selection and therefore no preview.
	Cleared
	// Failed means the selection could not be read into a preview.
	Failed
)

// Event is published after every Update.
type Event struct {
	Kind        EventKind
	SelectionID string
	Preview     *Preview
	Err         error
}

// Manager owns the single live preview. Every preview it creates is revoked
// exactly once, on the next Update or on Close. Not safe for concurrent use.
type Manager struct {
	registry    Registry
	current     *Preview
	subscribers []func(Event)
	logger      *zap.Logger
}

func NewManager(registry Registry, logger *zap.Logger) *Manager {
	return &Manager{registry: registry, logger: logger.Named("preview")}
}

// Subscribe registers fn to receive every published event synchronously.
func (m *Manager) Subscribe(fn func(Event)) {
	m.subscribers = append(m.subscribers, fn)
}

// Current returns the live preview or nil.
func (m *Manager) Current() *Preview {
	return m.current
}

// Update releases the prior preview, then derives one for sel. A nil sel
// publishes Cleared.
func (m *Manager) Update(sel *selection.Selection) {
	m.release()

	if sel == nil {
		m.publish(Event{Kind: Cleared})
		return
	}

	p, err := m.registry.Create(sel)
	if err != nil {
		wrapped := logging.NewOperationError("preview.create", sel.ID, err)
		m.logger.Warn("preview creation failed", zap.Error(wrapped))
		m.publish(Event{Kind: Failed, SelectionID: sel.ID, Err: wrapped})
		return
	}
	m.current = p
	m.logger.Debug("preview created",
		zap.String("uri", p.URI),
		zap.String("selection_id", sel.ID),
		zap.Int64("size", p.Size),
	)
	m.publish(Event{Kind: Ready, SelectionID: sel.ID, Preview: p})
}

// Close releases the live preview, if any.
func (m *Manager) Close() {
	m.release()
}

func (m *Manager) release() {
	p := m.current
	if p == nil {
		return
	}
	m.current = nil
	if err := m.registry.Revoke(p); err != nil {
		m.logger.Error("preview release invariant violated",
			zap.Error(logging.NewOperationError("preview.release", p.SelectionID, err)),
			zap.String("uri", p.URI),
		)
		return
	}
	m.logger.Debug("preview released", zap.String("uri", p.URI))
}

func (m *Manager) publish(ev Event) {
	for _, fn := range m.subscribers {
		fn(ev)
	}
}
