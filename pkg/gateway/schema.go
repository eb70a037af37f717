package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// errInvalidBody wraps every request body validation failure.
var errInvalidBody = errors.New("invalid request body")

const maxBodySize = 1 << 20 // 1 MiB

var (
	createProjectSchema = mustSchema(map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"name"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 200},
		},
	})

	createThreadSchema = mustSchema(map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "maxLength": 200},
		},
	})

	postMessageSchema = mustSchema(map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"message"},
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string", "minLength": 1},
		},
	})

	writeFileSchema = mustSchema(map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"content"},
		"properties": map[string]interface{}{
			"content": map[string]interface{}{"type": "string"},
		},
	})
)

func mustSchema(m map[string]interface{}) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(m))
	if err != nil {
		panic(err)
	}
	return schema
}

// decodeBody reads a request body, validates it against the schema and
// unmarshals it into dst.
func decodeBody(r *http.Request, schema *gojsonschema.Schema, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return fmt.Errorf("%w: %s", errInvalidBody, strings.Join(details, "; "))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}
