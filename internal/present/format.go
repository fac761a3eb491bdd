// Package present holds formatting shared by the terminal UI and the
// headless CLI.
package present

import (
	"fmt"
	"math"
	"strings"
)

// Missing is rendered for absent values.
const Missing = "—"

// UnknownLabel is rendered when a response carried no label.
const UnknownLabel = "unknown"

// FormatConfidence scales a fraction to a two-decimal percentage.
func FormatConfidence(c *float64) string {
	if c == nil || math.IsNaN(*c) || math.IsInf(*c, 0) {
		return Missing
	}
	return fmt.Sprintf("%.2f%%", *c*100)
}

func FormatLabel(label string) string {
	if strings.TrimSpace(label) == "" {
		return UnknownLabel
	}
	return label
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
