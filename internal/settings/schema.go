package settings

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"apiKey": {"type": "string"},
		"model": {"type": "string"},
		"templates": {
			"type": "object",
			"properties": {
				"summarize": {"type": "string"},
				"explain": {"type": "string"},
				"rephrase": {"type": "string"},
				"translate": {"type": "string"}
			},
			"additionalProperties": false
		},
		"blockedDomains": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"additionalProperties": false
}`

var settingsSchema = jsonschema.MustCompileString("settings.schema.json", schemaJSON)

// ValidateJSON checks a raw settings payload against the settings schema.
func ValidateJSON(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("settings payload is not valid JSON: %w", err)
	}
	if err := settingsSchema.Validate(doc); err != nil {
		return fmt.Errorf("settings payload rejected: %w", err)
	}
	return nil
}
