package present

import (
	"fmt"

	"github.com/example/leaf-check/internal/controller"
)

// Stage captions shown beneath the drop zone.
const (
	CaptionIdle       = "Drag and drop an image of a potato plant leaf to process"
	CaptionPreviewing = "Preparing preview..."
	CaptionPredicting = "Processing..."
	CaptionSucceeded  = "Prediction ready"
	CaptionFailed     = "Prediction failed"
)

// View is the text projection of a UIState. Empty fields are not rendered.
type View struct {
	Stage      controller.Stage
	Caption    string
	Busy       bool
	DragHover  bool
	FileName   string
	FileInfo   string
	Label      string
	Confidence string
	Note       string
	Error      string
}

// HasResult reports whether the label and confidence panel should be shown.
func (v View) HasResult() bool {
	return v.Stage == controller.Succeeded
}

// Project derives the rendered text for st.
func Project(st controller.UIState) View {
	v := View{
		Stage:     st.Stage,
		Caption:   Caption(st.Stage),
		Busy:      st.InFlight || st.Stage == controller.Previewing,
		DragHover: st.DragHover,
	}
	if st.Selection != nil {
		v.FileName = st.Selection.Name
	}
	if p := st.Preview; p != nil {
		v.FileInfo = FormatSize(p.Size)
		if p.Format != "" {
			v.FileInfo = fmt.Sprintf("%s · %dx%d · %s", p.Format, p.Width, p.Height, v.FileInfo)
		}
	}
	if r := st.Result; r != nil && st.Stage == controller.Succeeded {
		v.Label = FormatLabel(r.Label)
		v.Confidence = FormatConfidence(r.Confidence)
		v.Note = r.Message
	}
	if f := st.Fault; f != nil && st.Stage == controller.Failed {
		v.Error = f.Message
	}
	return v
}

// Caption returns the one-line description of a stage.
func Caption(stage controller.Stage) string {
	switch stage {
	case controller.Previewing:
		return CaptionPreviewing
	case controller.Predicting:
		return CaptionPredicting
	case controller.Succeeded:
		return CaptionSucceeded
	case controller.Failed:
		return CaptionFailed
	default:
		return CaptionIdle
	}
}
