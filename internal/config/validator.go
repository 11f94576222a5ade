package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// configSchemaJSON constrains the shape of .clinerules.config.json before it
// is deep-merged onto Default(). Unknown properties are allowed
// (additionalProperties defaults true). Validate checks the typed Config, so
// unknown keys, which Load keeps in Config.Extra, are not part of the
// validated document and never fail validation.
var configSchemaJSON = []byte(`{
  "type": "object",
  "properties": {
    "excluded_dirs": {"type": "array", "items": {"type": "string"}},
    "excluded_extensions": {"type": "array", "items": {"type": "string"}},
    "excluded_paths": {"type": "array", "items": {"type": "string"}},
    "exclude_files": {"type": "array", "items": {"type": "string"}},
    "code_root_directories": {"type": "array", "items": {"type": "string"}},
    "doc_directories": {"type": "array", "items": {"type": "string"}},
    "paths": {"type": "object"},
    "thresholds": {
      "type": "object",
      "properties": {
        "code_similarity": {"type": "number", "minimum": 0, "maximum": 1},
        "doc_similarity": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "models": {"type": "object"},
    "compute": {
      "type": "object",
      "properties": {
        "embedding_device": {"enum": ["auto", "cpu", "cuda", "mps", ""]}
      }
    },
    "char_priority": {"type": "object"}
  }
}`)

var compiledConfigSchema *jsonschema.Resolved

func init() {
	var schema jsonschema.Schema
	if err := json.Unmarshal(configSchemaJSON, &schema); err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("config: failed to resolve embedded schema: %v", err))
	}
	compiledConfigSchema = resolved
}

// Validate checks a freshly JSON-decoded project config against
// configSchemaJSON, rejecting out-of-range thresholds or an unrecognized
// compute.embedding_device before it ever reaches deepMerge.
func Validate(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal config for validation: %w", err)
	}
	if err := compiledConfigSchema.Validate(doc); err != nil {
		return fmt.Errorf("config failed schema validation: %w", err)
	}
	return nil
}
