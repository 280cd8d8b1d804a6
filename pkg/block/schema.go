package block

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsonschemavalidator "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateConfigSchema derives a block's config_schema from its config
// struct via reflection, the Go analogue of the Python registry's
// constructor-signature inspection. Field tags (`jsonschema:"..."`) supply
// the enum/description/default metadata the Python side reads from type
// hints and default arguments.
func GenerateConfigSchema(configStruct any) (map[string]ParamSchema, error) {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(configStruct)

	out := make(map[string]ParamSchema, len(schema.Properties.Keys()))
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name, prop := pair.Key, pair.Value
		ps := ParamSchema{
			Type:        prop.Type,
			Description: prop.Description,
		}
		if prop.Default != nil {
			ps.Default = prop.Default
		}
		for _, e := range prop.Enum {
			ps.Enum = append(ps.Enum, e)
		}
		out[name] = ps
	}
	return out, nil
}

// ValidateConfig validates a raw block config mapping against the block's
// JSON config_schema (built from the same ParamSchema map GenerateConfigSchema
// produces), catching malformed user-supplied config before block
// construction.
func ValidateConfig(configSchema map[string]ParamSchema, config map[string]any) error {
	raw := toJSONSchemaDocument(configSchema)
	schemaBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshalling generated schema: %w", err)
	}

	compiler := jsonschemavalidator.NewCompiler()
	if err := compiler.AddResource("config.json", bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	compiled, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}

	configBytes, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(configBytes, &doc); err != nil {
		return fmt.Errorf("re-decoding config: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func toJSONSchemaDocument(configSchema map[string]ParamSchema) map[string]any {
	props := make(map[string]any, len(configSchema))
	for name, ps := range configSchema {
		prop := map[string]any{}
		if ps.Type != "" {
			prop["type"] = ps.Type
		}
		if len(ps.Enum) > 0 {
			prop["enum"] = ps.Enum
		}
		if ps.Description != "" {
			prop["description"] = ps.Description
		}
		props[name] = prop
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
}
