// Package controller implements the upload-and-predict flow: a file selection
// produces a preview, the preview triggers exactly one prediction, and the
// outcome is published as a UIState snapshot.
package controller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/logging"
	"github.com/example/leaf-check/internal/predict"
	"github.com/example/leaf-check/internal/preview"
	"github.com/example/leaf-check/internal/selection"
)

// Controller owns the selection, its preview and the latest outcome. Intents
// are applied synchronously under one lock; prediction completions re-enter
// through the same lock and are dropped when their selection is no longer
// current.
type Controller struct {
	mu        sync.Mutex
	store     *selection.Store
	previews  *preview.Manager
	predictor predict.Predictor
	machine   *machine
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	version uint64
	current UIState
	subs    map[int]chan UIState
	nextSub int
}

// New wires the controller to the store and preview manager. Both must be
// used only through the controller afterwards.
func New(store *selection.Store, previews *preview.Manager, predictor predict.Predictor, logger *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:     store,
		previews:  previews,
		predictor: predictor,
		machine:   newMachine(),
		logger:    logger.Named("controller"),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[int]chan UIState),
	}
	c.current = c.machine.snapshot(0)

	store.OnChange(c.onSelectionChanged)
	previews.Subscribe(c.onPreviewEvent)
	return c
}

// Browse selects a file picked through a file dialog.
func (c *Controller) Browse(file selection.File) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ok := c.store.Select(file, selection.SourceBrowse)
	c.publish()
	return ok
}

// Drop selects a file dropped on the drop zone and ends the drag hover.
func (c *Controller) Drop(file selection.File) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.apply(dragChanged{hover: false})
	ok := c.store.Select(file, selection.SourceDrop)
	c.publish()
	return ok
}

func (c *Controller) DragEnter() {
	c.setDrag(true)
}

func (c *Controller) DragLeave() {
	c.setDrag(false)
}

func (c *Controller) setDrag(hover bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.apply(dragChanged{hover: hover})
	c.publish()
}

// Clear returns to Idle from any stage. It is idempotent.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.store.Clear()
	c.apply(dragChanged{hover: false})
	c.publish()
}

// Snapshot returns the most recently published state.
func (c *Controller) Snapshot() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe returns a channel that always holds the latest snapshot; older
// undelivered snapshots are replaced. The channel is closed by cancel or by
// Close.
func (c *Controller) Subscribe() (<-chan UIState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan UIState, 1)
	if c.closed {
		ch <- c.current
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.current

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until a published snapshot satisfies cond.
func (c *Controller) Wait(ctx context.Context, cond func(UIState) bool) (UIState, error) {
	ch, cancel := c.Subscribe()
	defer cancel()

	var last UIState
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case st, ok := <-ch:
			if !ok {
				return last, context.Canceled
			}
			last = st
			if cond(st) {
				return st, nil
			}
		}
	}
}

// Close releases the live preview, abandons in-flight predictions and closes
// every subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.previews.Close()
	c.machine.preview = nil
	c.publish()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) onSelectionChanged(sel *selection.Selection) {
	c.apply(selectionChanged{sel: sel})
	c.previews.Update(sel)
}

func (c *Controller) onPreviewEvent(ev preview.Event) {
	switch ev.Kind {
	case preview.Ready:
		c.apply(previewReady{ev: ev})
	case preview.Failed:
		c.apply(previewFailed{ev: ev})
	}
}

// apply must be called with c.mu held.
func (c *Controller) apply(ev event) {
	effects, stale, err := c.machine.apply(ev)
	if err != nil {
		c.logger.Error("state machine invariant violated", zap.Error(err))
	}
	if stale {
		c.logger.Debug("discarding stale event", zap.String("event", eventName(ev)))
		return
	}
	for _, eff := range effects {
		c.startSubmission(eff.sel)
	}
}

// startSubmission must be called with c.mu held.
func (c *Controller) startSubmission(sel *selection.Selection) {
	if _, stale, _ := c.machine.apply(submitted{selectionID: sel.ID}); stale {
		return
	}
	opLogger := logging.WithOperation(c.logger, "controller.submit", sel.ID)
	opLogger.Debug("auto-submitting selection", zap.String("name", sel.File.Name()))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		result, err := c.predictor.Predict(c.ctx, sel.File)
		c.complete(sel.ID, result, err)
	}()
}

func (c *Controller) complete(selectionID string, result *predict.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.apply(completed{selectionID: selectionID, result: result, err: err})
	c.publish()
}

// publish must be called with c.mu held.
func (c *Controller) publish() {
	c.version++
	c.current = c.machine.snapshot(c.version)
	for _, ch := range c.subs {
		select {
		case ch <- c.current:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c.current
		}
	}
}

func eventName(ev event) string {
	switch ev.(type) {
	case selectionChanged:
		return "selection_changed"
	case previewReady:
		return "preview_ready"
	case previewFailed:
		return "preview_failed"
	case submitted:
		return "submitted"
	case completed:
		return "completed"
	case dragChanged:
		return "drag_changed"
	default:
		return "unknown"
	}
}
