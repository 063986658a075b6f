package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSONWithSchema validates a JSON document against a JSON schema,
// both given as strings. An empty schema accepts everything.
func ValidateJSONWithSchema(schemaJSON string, dataJSON string) error {
	if schemaJSON == "" {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile JSON schema: %w", err)
	}

	var data interface{}
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w", err)
	}

	if err := sch.Validate(data); err != nil {
		return fmt.Errorf("JSON data failed validation against schema: %v", err)
	}
	return nil
}
