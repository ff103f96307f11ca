// Package goal loads, validates and preprocesses goal documents.
package goal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// NowToken is replaced by the current UTC time during preprocessing.
const NowToken = "@now"

const envelopeKey = "QueryGoal"

var (
	ErrInvalidGoal  = errors.New("invalid goal document")
	ErrUnknownToken = errors.New("unknown token")
)

const goalSchema = `{
  "type": "object",
  "required": ["goalId", "goalType", "parameters", "outputSpec"],
  "properties": {
    "goalId": {"type": "string", "pattern": "\\S"},
    "goalType": {"type": "string", "pattern": "\\S"},
    "parameters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["key", "value"],
        "properties": {
          "key": {"type": "string", "pattern": "\\S"},
          "type": {"type": "string"},
          "required": {"type": "boolean"}
        }
      }
    },
    "outputSpec": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "datatype"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "datatype": {"enum": ["datetime", "number", "boolean", "string", "array", "object"]}
        }
      }
    },
    "metadata": {
      "type": "object",
      "properties": {
        "category": {"type": "string"},
        "requiresModel": {"type": "boolean"},
        "pipelineStages": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "notes": {"type": "string"}
      }
    }
  }
}`

var (
	schemaLoader = gojsonschema.NewStringLoader(goalSchema)
	validate     = validator.New(validator.WithRequiredStructEnabled())
)

// Load reads a goal document from path.
func Load(path string) (*models.Goal, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- goal files are supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read goal %s: %w", path, err)
	}

	g, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("goal %s: %w", path, err)
	}

	return g, nil
}

// Decode parses a goal wrapped as {"QueryGoal": {...}} or given bare, checks
// it against the goal schema and validates the decoded struct.
func Decode(data []byte) (*models.Goal, error) {
	body, err := unwrap(data)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidGoal, strings.Join(msgs, "; "))
	}

	var g models.Goal
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}

	if err := Validate(&g); err != nil {
		return nil, err
	}

	return &g, nil
}

// Validate checks the struct-level constraints of a goal.
func Validate(g *models.Goal) error {
	if g == nil {
		return fmt.Errorf("%w: goal is empty", ErrInvalidGoal)
	}

	if err := validate.Struct(g); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}

			return fmt.Errorf("%w: %s", ErrInvalidGoal, strings.Join(msgs, "; "))
		}

		return fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}

	if strings.TrimSpace(g.GoalID) == "" || strings.TrimSpace(g.GoalType) == "" {
		return fmt.Errorf("%w: goalId and goalType cannot be blank", ErrInvalidGoal)
	}

	return nil
}

// Preprocess returns a copy of g with special parameter tokens replaced.
// NowToken becomes now in RFC 3339 UTC; any other string starting with "@"
// is rejected.
func Preprocess(g *models.Goal, now time.Time) (*models.Goal, error) {
	out := g.Clone()

	for i, p := range out.Parameters {
		s, ok := p.Value.(string)
		if !ok || !strings.HasPrefix(s, "@") {
			continue
		}

		if s != NowToken {
			return nil, fmt.Errorf("%w %q in parameter %s", ErrUnknownToken, s, p.Key)
		}

		out.Parameters[i].Value = now.UTC().Format(time.RFC3339)
	}

	return out, nil
}

func unwrap(data []byte) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}

	if inner, ok := envelope[envelopeKey]; ok {
		return inner, nil
	}

	return data, nil
}
