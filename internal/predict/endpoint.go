package predict

import "strings"

const (
	// DefaultEndpoint is used when no endpoint is configured.
	DefaultEndpoint = "http://127.0.0.1:8000/predict"

	predictPath = "/predict"
)

// ResolveEndpoint accepts either a full prediction URL or a base URL. A base
// URL loses exactly one trailing slash before the prediction path is added.
func ResolveEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultEndpoint
	}
	if strings.HasSuffix(raw, predictPath) {
		return raw
	}
	return strings.TrimSuffix(raw, "/") + predictPath
}
