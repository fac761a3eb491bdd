package controller

import (
	"fmt"

	"github.com/example/leaf-check/internal/predict"
	"github.com/example/leaf-check/internal/preview"
	"github.com/example/leaf-check/internal/selection"
)

// Stage is the coarse UI state derived from the machine's fields.
type Stage string

const (
	Idle       Stage = "idle"
	Previewing Stage = "previewing"
	Predicting Stage = "predicting"
	Succeeded  Stage = "succeeded"
	Failed     Stage = "failed"
)

// transitions lists the stage changes a single event may cause. Staying in
// the same stage is always allowed.
var transitions = map[Stage][]Stage{
	Idle:       {Previewing},
	Previewing: {Predicting, Idle, Failed},
	Predicting: {Succeeded, Failed, Previewing, Idle},
	Succeeded:  {Previewing, Idle},
	Failed:     {Previewing, Idle},
}

// CanTransition reports whether the machine may move from one stage to another.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// deriveStage is a pure function of the machine's fields. A fault or result
// only survives while its selection is current.
func deriveStage(hasSelection, inFlight bool, result *predict.Result, fault *predict.Fault) Stage {
	switch {
	case !hasSelection:
		return Idle
	case fault != nil:
		return Failed
	case result != nil:
		return Succeeded
	case inFlight:
		return Predicting
	default:
		return Previewing
	}
}

type event interface{ isEvent() }

type (
	selectionChanged struct{ sel *selection.Selection }
	previewReady     struct{ ev preview.Event }
	previewFailed    struct{ ev preview.Event }
	submitted        struct{ selectionID string }
	completed        struct {
		selectionID string
		result      *predict.Result
		err         error
	}
	dragChanged struct{ hover bool }
)

func (selectionChanged) isEvent() {}
func (previewReady) isEvent()     {}
func (previewFailed) isEvent()    {}
func (submitted) isEvent()        {}
func (completed) isEvent()        {}
func (dragChanged) isEvent()      {}

// submit asks the controller to start the one submission allowed for a
// selection.
type submit struct {
	sel *selection.Selection
}

// machine holds the upload state. It performs no I/O; side effects are
// returned to the caller.
type machine struct {
	selection    *selection.Selection
	preview      *preview.Preview
	inFlight     bool
	submittedFor string
	result       *predict.Result
	fault        *predict.Fault
	dragHover    bool
	stage        Stage
}

func newMachine() *machine {
	return &machine{stage: Idle}
}

// apply folds ev into the machine. stale is true when ev belongs to a
// selection that is no longer current and was ignored.
func (m *machine) apply(ev event) (effects []submit, stale bool, err error) {
	from := m.stage

	switch e := ev.(type) {
	case selectionChanged:
		m.selection = e.sel
		m.preview = nil
		m.result = nil
		m.fault = nil
		m.inFlight = false
		if e.sel == nil {
			m.submittedFor = ""
		}

	case previewReady:
		if !m.isCurrent(e.ev.SelectionID) {
			return nil, true, nil
		}
		m.preview = e.ev.Preview
		if m.submittedFor != m.selection.ID {
			effects = append(effects, submit{sel: m.selection})
		}

	case previewFailed:
		if !m.isCurrent(e.ev.SelectionID) {
			return nil, true, nil
		}
		m.preview = nil
		m.fault = predict.ReadFault(m.selection.File.Name(), e.ev.Err)

	case submitted:
		if !m.isCurrent(e.selectionID) || m.submittedFor == e.selectionID {
			return nil, true, nil
		}
		m.submittedFor = e.selectionID
		m.inFlight = true

	case completed:
		if !m.isCurrent(e.selectionID) || !m.inFlight {
			return nil, true, nil
		}
		m.inFlight = false
		if e.err != nil {
			m.fault = predict.AsFault(e.err)
			m.result = nil
		} else {
			m.result = e.result
			if m.result == nil {
				m.result = &predict.Result{Malformed: true}
			}
			m.fault = nil
		}

	case dragChanged:
		m.dragHover = e.hover
	}

	to := deriveStage(m.selection != nil, m.inFlight, m.result, m.fault)
	m.stage = to
	if !CanTransition(from, to) {
		err = fmt.Errorf("illegal transition %s -> %s on %T", from, to, ev)
	}
	return effects, false, err
}

func (m *machine) isCurrent(selectionID string) bool {
	return m.selection != nil && m.selection.ID == selectionID
}
