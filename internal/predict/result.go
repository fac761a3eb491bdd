package predict

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Result is the normalized body of a successful prediction response.
type Result struct {
	Label string `json:"class"`
	// Confidence is the raw fraction in [0,1]; nil when absent or not a finite number.
	Confidence *float64 `json:"confidence,omitempty"`
	// Accepted, Message and PlantConfidence are set by servers that gate
	// non-leaf or low-confidence images.
	Accepted        *bool    `json:"accepted,omitempty"`
	Message         string   `json:"message,omitempty"`
	PlantConfidence *float64 `json:"plant_confidence,omitempty"`
	// Malformed marks a 2xx response whose body could not be decoded.
	Malformed bool `json:"-"`
}

type wireResult struct {
	Class           json.RawMessage `json:"class"`
	Confidence      json.RawMessage `json:"confidence"`
	Accepted        *bool           `json:"accepted"`
	Message         json.RawMessage `json:"message"`
	PlantConfidence json.RawMessage `json:"plant_confidence"`
}

// decodeResult never fails: an undecodable body yields a Result with every
// field absent.
func decodeResult(body []byte) *Result {
	var wire wireResult
	if err := json.Unmarshal(body, &wire); err != nil {
		return &Result{Malformed: true}
	}
	return &Result{
		Label:           rawString(wire.Class),
		Confidence:      rawNumber(wire.Confidence),
		Accepted:        wire.Accepted,
		Message:         rawString(wire.Message),
		PlantConfidence: rawNumber(wire.PlantConfidence),
	}
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// rawNumber accepts a JSON number or a numeric string.
func rawNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
