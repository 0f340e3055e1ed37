package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	stjsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaReflector mirrors internal/toolschema's reflector settings so
// the config document's JSON-Schema and every tool's parameter schema
// are generated the same way.
var schemaReflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// GenerateSchema reflects Config into its own JSON-Schema document,
// grounded on internal/toolschema.For's use of invopop/jsonschema, and
// on the teacher's internal/config/schema.go (same reflect-then-
// marshal shape, applied to that teacher's own Config type).
func GenerateSchema() json.RawMessage {
	schema := schemaReflector.Reflect(&Config{})
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("config: reflect schema: %v", err))
	}
	return data
}

var (
	compileOnce sync.Once
	compiled    *stjsonschema.Schema
	compileErr  error
)

func compiledSchema() (*stjsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = stjsonschema.CompileString("wave_config", string(GenerateSchema()))
	})
	return compiled, compileErr
}

// ValidateDocument checks a raw settings.json/settings.local.json
// document against Config's generated schema, independent of whether
// it unmarshals cleanly (catching e.g. a string where an object is
// expected, with a field-path-qualified error), grounded on
// _examples/haasonsaas-nexus/internal/gateway/ws_schema.go's
// CompileString-then-Validate pattern.
func ValidateDocument(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: document is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
