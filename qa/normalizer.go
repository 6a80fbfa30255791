package qa

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	DefaultMaxScore = 100.0

	resultSchemaURL = "https://schemas.gameqc.dev/result.schema.json"
)

//go:embed result.schema.json
var resultSchemaJSON []byte

var resultSchema = mustCompileResultSchema()

// NormalizedResult is a game-reported result after validation and clamping.
// It is always fully populated; IsValid=false marks input that did not match
// the result contract.
type NormalizedResult struct {
	Score            float64  `json:"score"`
	MaxScore         float64  `json:"maxScore"`
	Completed        bool     `json:"completed"`
	Accuracy         float64  `json:"accuracy"`
	Completion       float64  `json:"completion"`
	IsValid          bool     `json:"isValid"`
	ValidationErrors []string `json:"validationErrors"`
}

func mustCompileResultSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resultSchemaURL, bytes.NewReader(resultSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add result schema: %v", err))
	}
	schema, err := compiler.Compile(resultSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile result schema: %v", err))
	}
	return schema
}

// Normalize turns raw, untrusted result JSON into a NormalizedResult.
// It never fails; malformed input is reported through ValidationErrors.
func Normalize(raw []byte) NormalizedResult {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		out := construct(nil)
		out.ValidationErrors = []string{"result is not valid JSON"}
		return out
	}

	out := construct(payload)
	if err := resultSchema.Validate(payload); err != nil {
		out.ValidationErrors = schemaMessages(err)
	}
	out.IsValid = len(out.ValidationErrors) == 0
	return out
}

// NormalizeValue normalizes an already-decoded value.
func NormalizeValue(v any) NormalizedResult {
	raw, err := json.Marshal(v)
	if err != nil {
		out := construct(nil)
		out.ValidationErrors = []string{"result is not JSON encodable"}
		return out
	}
	return Normalize(raw)
}

func construct(payload any) NormalizedResult {
	out := NormalizedResult{
		MaxScore:         DefaultMaxScore,
		ValidationErrors: []string{},
	}
	fields, _ := payload.(map[string]any)
	if score, ok := fields["score"].(float64); ok {
		out.Score = score
	}
	if maxScore, ok := fields["maxScore"].(float64); ok {
		out.MaxScore = maxScore
	}
	if completed, ok := fields["completed"].(bool); ok {
		out.Completed = completed
	}
	if out.MaxScore > 0 {
		out.Accuracy = clamp(out.Score/out.MaxScore, 0, 1)
	}
	if out.Completed {
		out.Completion = 1
	}
	return out
}

func schemaMessages(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	msgs := flattenSchemaErrors(ve, nil)
	if len(msgs) == 0 {
		return []string{ve.Error()}
	}
	return msgs
}

func flattenSchemaErrors(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, loc+": "+ve.Message)
	}
	for _, cause := range ve.Causes {
		out = flattenSchemaErrors(cause, out)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
