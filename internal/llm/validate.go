package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/labelscan/constants"
)

// compiled schemas, keyed by resource name
var schemaCache sync.Map

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	if s, ok := schemaCache.Load(name); ok {
		return s.(*jsonschema.Schema), nil
	}
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	actual, _ := schemaCache.LoadOrStore(name, schema)
	return actual.(*jsonschema.Schema), nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap". The compiled
// schema is cached under name, so a name must always refer to the same schema.
func ValidateJSONAgainstSchema(name string, schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema(name, schemaMap)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// CheckRequired enforces the structural minimum of a response document.
func CheckRequired(data []byte) error {
	return ValidateJSONAgainstSchema("required.json", RequiredSchema(), data)
}

// CheckConformance validates data against the full schema for mode. Callers
// treat failures as warnings; the parser itself only enforces CheckRequired.
func CheckConformance(mode constants.Mode, data []byte) error {
	return ValidateJSONAgainstSchema("analysis-"+string(mode)+".json", BuildAnalysisJSONSchema(mode), data)
}
