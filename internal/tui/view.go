package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/leaf-check/internal/present"
)

var (
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#7f849c")
	colorAccent  = lipgloss.Color("#a6e3a1")
	colorError   = lipgloss.Color("#f38ba8")
	colorBorder  = lipgloss.Color("#45475a")

	titleStyle    = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorSubtext)
	captionStyle  = lipgloss.NewStyle().Foreground(colorSubtext).Italic(true)
	labelStyle    = lipgloss.NewStyle().Foreground(colorSubtext)
	valueStyle    = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	noteStyle     = lipgloss.NewStyle().Foreground(colorSubtext).Italic(true)

	zoneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			Width(60)
	zoneHoverStyle = zoneStyle.BorderForeground(colorAccent)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2).
			Width(60)
	cellStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(26)
	errorPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorError).
			Foreground(colorError).
			Padding(0, 2).
			Width(60)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	v := present.Project(m.state)
	sections := []string{
		titleStyle.Render("Potato Leaf Disease Detector"),
		subtitleStyle.Render("Drop an image (JPG/PNG) or browse to upload. Prediction runs automatically."),
		"",
	}

	if m.mode == modeBrowse {
		sections = append(sections, panelStyle.Render(m.picker.View()))
	} else {
		sections = append(sections, m.renderZone(v))
		if v.Error != "" {
			sections = append(sections, errorPanelStyle.Render(
				lipgloss.NewStyle().Bold(true).Render(present.CaptionFailed)+"\n"+v.Error,
			))
		}
		sections = append(sections, m.renderPrediction(v))
	}

	sections = append(sections, "", m.help.View(m.keys))
	return strings.Join(sections, "\n")
}

func (m Model) renderZone(v present.View) string {
	style := zoneStyle
	if v.DragHover {
		style = zoneHoverStyle
	}

	var lines []string
	switch {
	case m.mode == modeDrop:
		lines = append(lines, m.input.View())
	case v.FileName == "":
		lines = append(lines, captionStyle.Render(v.Caption))
	default:
		lines = append(lines, valueStyle.Render(v.FileName))
		if v.FileInfo != "" {
			lines = append(lines, labelStyle.Render(v.FileInfo))
		}
		if v.Busy {
			lines = append(lines, "", m.spinner.View()+" "+v.Caption)
		}
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) renderPrediction(v present.View) string {
	header := titleStyle.Render("Prediction")
	if !v.HasResult() {
		return panelStyle.Render(header + "\n" + subtitleStyle.Render("Upload an image to see the predicted label and confidence score."))
	}

	cells := lipgloss.JoinHorizontal(lipgloss.Top,
		cellStyle.Render(labelStyle.Render("Label")+"\n"+valueStyle.Render(v.Label)),
		cellStyle.Render(labelStyle.Render("Confidence")+"\n"+valueStyle.Render(v.Confidence)),
	)
	body := []string{header, cells}
	if v.Note != "" {
		body = append(body, noteStyle.Render(v.Note))
	}
	body = append(body, noteStyle.Render("Confidence is based on model probability output."))
	return panelStyle.Render(strings.Join(body, "\n"))
}
