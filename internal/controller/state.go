package controller

import (
	"time"

	"github.com/example/leaf-check/internal/predict"
	"github.com/example/leaf-check/internal/preview"
	"github.com/example/leaf-check/internal/selection"
)

// SelectionInfo is the read-only view of the current selection.
type SelectionInfo struct {
	ID         string
	Name       string
	Source     selection.Source
	SelectedAt time.Time
}

// UIState is the snapshot the presentation layer renders. It is rebuilt
// after every change and shares no mutable data with the controller.
type UIState struct {
	Version   uint64
	Stage     Stage
	Selection *SelectionInfo
	Preview   *preview.Preview
	Result    *predict.Result
	Fault     *predict.Fault
	InFlight  bool
	DragHover bool
}

// Done reports whether the current selection has a final outcome.
func (s UIState) Done() bool {
	return s.Stage == Succeeded || s.Stage == Failed
}

func (m *machine) snapshot(version uint64) UIState {
	st := UIState{
		Version:   version,
		Stage:     m.stage,
		InFlight:  m.inFlight,
		DragHover: m.dragHover,
	}
	if m.selection != nil {
		st.Selection = &SelectionInfo{
			ID:         m.selection.ID,
			Name:       m.selection.File.Name(),
			Source:     m.selection.Source,
			SelectedAt: m.selection.SelectedAt,
		}
	}
	if m.preview != nil {
		p := *m.preview
		st.Preview = &p
	}
	if m.result != nil {
		st.Result = cloneResult(m.result)
	}
	if m.fault != nil {
		f := *m.fault
		st.Fault = &f
	}
	return st
}

func cloneResult(r *predict.Result) *predict.Result {
	out := *r
	out.Confidence = cloneFloat(r.Confidence)
	out.PlantConfidence = cloneFloat(r.PlantConfidence)
	if r.Accepted != nil {
		accepted := *r.Accepted
		out.Accepted = &accepted
	}
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
