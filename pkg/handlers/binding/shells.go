package binding

import (
	"context"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dukex/goalgate/pkg/aas"
	"github.com/dukex/goalgate/pkg/models"
)

// ShellIDPlaceholder in a rule's submodel_id is replaced by the shell idShort.
const ShellIDPlaceholder = "{shell_id}"

// collectShells builds one record per matching shell. A failing combination
// rule leaves its result key nil rather than dropping the shell.
func (h *Handler) collectShells(ctx context.Context, cfg models.DataSourceConfig) ([]any, error) {
	shells, err := h.client.ListShells(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]any, 0, len(shells))

	for _, shell := range shells {
		if !matchesFilter(shell, cfg.ShellFilter) {
			continue
		}

		identification := shell.Identification
		if identification == nil {
			identification = map[string]any{}
		}

		record := map[string]any{
			"shell_id":             shell.IDShort,
			"shell_identification": identification,
		}

		for _, rule := range cfg.CombinationRules {
			submodelID := strings.ReplaceAll(rule.SubmodelID, ShellIDPlaceholder, shell.IDShort)

			value, err := h.client.GetSubmodelProperty(ctx, submodelID, rule.PropertyPath)
			if err != nil {
				h.logger.DebugContext(ctx, "Combination rule failed", "shell", shell.IDShort, "result_key", rule.ResultKey, "error", err)

				value = nil
			}

			record[rule.ResultKey] = value
		}

		records = append(records, record)
	}

	return records, nil
}

// matchesFilter applies the substring pattern and the glob, when set.
func matchesFilter(shell aas.Shell, filter models.ShellFilter) bool {
	if filter.IDPattern != "" && !strings.Contains(shell.IDShort, filter.IDPattern) {
		return false
	}

	if filter.IDGlob != "" {
		ok, err := doublestar.Match(filter.IDGlob, shell.IDShort)
		if err != nil || !ok {
			return false
		}
	}

	return true
}
