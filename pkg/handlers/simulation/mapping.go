package simulation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dukex/goalgate/pkg/models"
)

// nestedResultKey holds goal-specific results some simulators emit one level down.
const nestedResultKey = "goal3_data"

// outputAliases lists the simulator field names accepted for an output name.
var outputAliases = map[string][]string{
	"estimatedTime":  {"predicted_completion_time"},
	"productionPlan": {"detailed_results"},
	"bottlenecks":    {"detailed_results.bottlenecks"},
}

// ParseStructuredOutput returns the first stdout line that is a standalone
// JSON object.
func ParseStructuredOutput(stdout []byte) (map[string]any, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}

		var out map[string]any
		if err := json.Unmarshal([]byte(line), &out); err == nil {
			return out, true
		}
	}

	return nil, false
}

// MapOutputs picks a value for every declared output from the simulator
// output. Names without a match are left out.
func MapOutputs(output map[string]any, specs []models.OutputSpec) map[string]any {
	roots := []map[string]any{output}
	if nested, ok := output[nestedResultKey].(map[string]any); ok {
		roots = append(roots, nested)
	}

	mapped := make(map[string]any)

	for _, spec := range specs {
		candidates := append([]string{spec.Name}, outputAliases[spec.Name]...)

	search:
		for _, root := range roots {
			for _, path := range candidates {
				if v, ok := lookup(root, path); ok && v != nil {
					mapped[spec.Name] = v

					break search
				}
			}
		}
	}

	return mapped
}

// lookup resolves a dotted path through nested objects.
func lookup(m map[string]any, path string) (any, bool) {
	var current any = m

	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
