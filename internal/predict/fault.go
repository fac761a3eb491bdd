package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/example/leaf-check/internal/logging"
)

// FallbackMessage is shown when no better description of a failure exists.
const FallbackMessage = "Something went wrong while predicting."

// FaultKind classifies why a prediction attempt failed.
type FaultKind string

const (
	FaultTransport FaultKind = "transport"
	FaultTimeout   FaultKind = "timeout"
	FaultServer    FaultKind = "server"
)

// Fault is the normalized failure of one prediction attempt. Message is
// always safe to render; Cause is kept for diagnostics only.
type Fault struct {
	Kind       FaultKind
	Message    string
	StatusCode int
	Cause      error
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// AsFault returns err as a *Fault, wrapping foreign errors as transport
// faults. A nil err yields nil.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}
	return &Fault{Kind: FaultTransport, Message: serverMessage(nil, err.Error()), Cause: err}
}

// ReadFault reports a selection whose contents could not be read. The
// message names the file and the innermost cause only.
func ReadFault(name string, err error) *Fault {
	return &Fault{
		Kind:    FaultTransport,
		Message: fmt.Sprintf("unable to read %s: %v", name, logging.Cause(err)),
		Cause:   err,
	}
}

type wireError struct {
	Detail  json.RawMessage `json:"detail"`
	Message json.RawMessage `json:"message"`
}

// serverMessage picks the first usable of detail, message and the transport
// message, falling back to FallbackMessage.
func serverMessage(body []byte, transportMessage string) string {
	var wire wireError
	if err := json.Unmarshal(body, &wire); err == nil {
		if msg := messageField(wire.Detail); msg != "" {
			return msg
		}
		if msg := messageField(wire.Message); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(transportMessage); msg != "" {
		return msg
	}
	return FallbackMessage
}

// messageField renders a string field verbatim and any other non-null JSON
// value as compact JSON text.
func messageField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch strings.TrimSpace(string(raw)) {
	case "null", "false", "0":
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

func statusMessage(code int) string {
	return fmt.Sprintf("request failed with status code %d", code)
}
