// Package toolschema generates the JSON-Schema parameter documents the
// Tool Registry hands to the LLM directly from a Go argument struct,
// grounded on
// _examples/kadirpekel-hector/pkg/tool/functiontool/schema.go's
// generateSchema: same invopop/jsonschema reflector settings, adapted to
// return json.RawMessage (toolregistry.Tool.Schema's return type)
// instead of a map[string]any.
package toolschema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// For reflects T's exported fields (annotated with `json` and optional
// `jsonschema` struct tags) into a parameter schema document. It panics
// on a marshal failure, since that only happens for a Go type that
// cannot ever be JSON-encoded — a programmer error at a call site that
// is always a literal struct type argument.
func For[T any]() json.RawMessage {
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("toolschema: reflect %T: %v", *new(T), err))
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("toolschema: normalize %T: %v", *new(T), err))
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	out, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("toolschema: remarshal %T: %v", *new(T), err))
	}
	return out
}
