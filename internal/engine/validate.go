package engine

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/lazypower/synapse/internal/graph"
)

// Input size limits.
const (
	maxIDChars   = 256
	maxTypeChars = 128
	maxPropBytes = 64 << 10
)

// validateID rejects ids that are empty, oversized or carry control characters.
func validateID(op, field, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationError(op, "%s must not be empty", field)
	}
	if len(id) > maxIDChars {
		return validationError(op, "%s longer than %d characters", field, maxIDChars)
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return validationError(op, "%s contains control characters", field)
	}
	return nil
}

func validateType(op, field, t string) error {
	if len(t) > maxTypeChars {
		return validationError(op, "%s longer than %d characters", field, maxTypeChars)
	}
	if strings.IndexFunc(t, unicode.IsControl) >= 0 {
		return validationError(op, "%s contains control characters", field)
	}
	return nil
}

// normalizeProperties round-trips p through JSON so the in-memory copy holds
// exactly what a reload from the store would produce. It also returns the
// encoded form, which query relevance and embedding text reuse.
func normalizeProperties(op string, p graph.Properties) (graph.Properties, string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return graph.Properties{}, "", validationError(op, "properties are not JSON encodable: %v", err)
	}
	if len(raw) > maxPropBytes {
		return graph.Properties{}, "", validationError(op, "properties larger than %d bytes", maxPropBytes)
	}
	var out graph.Properties
	if err := json.Unmarshal(raw, &out); err != nil {
		return graph.Properties{}, "", validationError(op, "properties did not survive encoding: %v", err)
	}
	return out, string(raw), nil
}
