// internal/api/schema.go
package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const ingestSchema = `{
  "type": "object",
  "required": ["id", "uri"],
  "properties": {
    "id":   {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$"},
    "name": {"type": "string", "maxLength": 256},
    "uri":  {"type": "string", "minLength": 1}
  }
}`

const startSchema = `{
  "type": "object",
  "required": ["model_id", "dataset_id", "start", "end"],
  "properties": {
    "model_id":         {"type": "string", "minLength": 1},
    "dataset_id":       {"type": "string", "minLength": 1},
    "start":            {"type": "string", "minLength": 1},
    "end":              {"type": "string", "minLength": 1},
    "speed_multiplier": {"type": "number", "minimum": 0}
  }
}`

const partitionSchema = `{
  "type": "object",
  "required": ["training", "testing", "simulation"],
  "definitions": {
    "window": {
      "type": "object",
      "required": ["start", "end"],
      "properties": {
        "start": {"type": "string", "minLength": 1},
        "end":   {"type": "string", "minLength": 1}
      }
    }
  },
  "properties": {
    "training":   {"$ref": "#/definitions/window"},
    "testing":    {"$ref": "#/definitions/window"},
    "simulation": {"$ref": "#/definitions/window"}
  }
}`

// ValidationError lists every schema violation of a request body
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Problems, "; "))
}

// schema is a compiled JSON schema
type schema struct {
	compiled *gojsonschema.Schema
}

func mustSchema(src string) schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("api: invalid schema: %v", err))
	}
	return schema{compiled: s}
}

var (
	ingestBodySchema    = mustSchema(ingestSchema)
	startBodySchema     = mustSchema(startSchema)
	partitionBodySchema = mustSchema(partitionSchema)
)

// validate checks body against the schema and returns a *ValidationError on violations
func (s schema) validate(body []byte) error {
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Problems: problems}
}
