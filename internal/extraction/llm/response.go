package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// models are told to answer with one flat object; anything else is retried
const responseSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object"
}`

var schema = jsonschema.MustCompileString("response.json", responseSchema)

// stripFences drops markdown code fence lines some models wrap around JSON.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func parseResponse(raw string) (rm.Record, error) {
	var v any
	if err := json.Unmarshal([]byte(stripFences(raw)), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	return normalize(v.(map[string]any)), nil
}

// normalize accepts each field either flat or as {"value": v, "flag": f} and
// always returns the flat form. Shapes that are neither, and arrays or objects
// at any depth, are dropped: every value it returns is a scalar.
func normalize(obj map[string]any) rm.Record {
	out := make(rm.Record, len(obj))
	nestedFlags := make(map[string]any)
	for key, v := range obj {
		switch val := v.(type) {
		case map[string]any:
			inner, ok := val["value"]
			if !ok {
				logger.Warn("dropping field with unexpected object shape", "field", key)
				continue
			}
			switch inner.(type) {
			case map[string]any, []any:
				logger.Warn("dropping field with non-scalar nested value", "field", key)
				continue
			}
			out[key] = inner
			if flag := val["flag"]; flag != nil {
				nestedFlags[rm.FlagOf(key)] = flag
			}
		case []any:
			logger.Warn("dropping field with array value", "field", key)
		default:
			out[key] = val
		}
	}
	for flag, v := range nestedFlags {
		if out[flag] == nil {
			out[flag] = v
		}
	}
	return out
}
