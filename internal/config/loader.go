package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/notflix/aiservice/internal/envvar"
	"github.com/notflix/aiservice/internal/xfs"
)

//go:embed schema.json
var embeddedSchema string

const embeddedSchemaURL = "aiservice.v1.schema.json"

// LoadAndValidate loads and validates the configuration. An empty schemaPath
// validates against the schema compiled into the binary.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates raw YAML against the schema and decodes it.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &config, nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath == "" {
		return jsonschema.CompileString(embeddedSchemaURL, embeddedSchema)
	}
	return jsonschema.Compile(schemaPath)
}

// ApplyEnv overrides config values from the environment. A nil lookup reads
// the process environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	overrideString(lookup, envvar.AIServiceAPIKey, &cfg.Server.APIKey)
	overrideString(lookup, envvar.MediaRoot, &cfg.Media.Root)
	overrideString(lookup, envvar.AIServiceHTTPAddr, &cfg.Server.HTTPAddr)
	overrideString(lookup, envvar.AIServiceGRPCAddr, &cfg.Server.GRPCAddr)

	if p, ok := lookup(envvar.AIServiceModelsPath); ok && strings.TrimSpace(p) != "" {
		cfg.Storage.ModelsDir = strings.TrimSpace(p)
	}
	cfg.Storage.ModelsDir = xfs.ExpandTilde(cfg.Storage.ModelsDir)
	cfg.Media.Root = xfs.ExpandTilde(cfg.Media.Root)

	if v, ok := lookup(envvar.AIServiceTestMode); ok && strings.TrimSpace(v) == "1" {
		cfg.TestMode = true
		cfg.ApplyDefaults()
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}
