package delivery

import "strings"

// PayloadKind classifies how a payload may be delivered.
type PayloadKind int

// Payload kinds.
const (
	// PayloadStreamable content is free text that may be sliced at byte
	// boundaries.
	PayloadStreamable PayloadKind = iota

	// PayloadAtomic content is structured/machine-parsed and must be
	// delivered whole or not at all.
	PayloadAtomic
)

// Classifier decides the payload kind for a piece of content. Injectable so
// embedders can supply report shapes of their own instead of relying on the
// built-in sniffing.
type Classifier func(content string) PayloadKind

// atomicMarkers are structural fragments that indicate a machine-parsed
// report rather than free text.
var atomicMarkers = []string{
	`"validation_report"`,
	`"validation_results"`,
	`"error_code"`,
	`"report":`,
	`{"files":`,
	`{"suggestions":`,
}

// SniffPayload is the default classifier. Content that opens as a JSON
// document or carries report-like structural markers is atomic; everything
// else is streamable free text.
func SniffPayload(content string) PayloadKind {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return PayloadAtomic
	}

	lowered := strings.ToLower(content)
	for _, marker := range atomicMarkers {
		if strings.Contains(lowered, marker) {
			return PayloadAtomic
		}
	}

	return PayloadStreamable
}
