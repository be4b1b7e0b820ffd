package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/localrivet/mcphost/spawn"
)

// File mirrors the conventional mcpServers configuration file layout.
type File struct {
	MCPServers map[string]spawn.Config `json:"mcpServers" yaml:"mcpServers" mapstructure:"mcpServers"`
}

// LoadConfig reads a server configuration file. The format is chosen by
// extension: .yaml/.yml parse as YAML, everything else as JSON.
func LoadConfig(path string) (map[string]spawn.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	}
	return validateConfigs(file.MCPServers)
}

// ConfigFromMap decodes an in-memory configuration, e.g. one embedded in a
// larger application config, into server spawn configs.
func ConfigFromMap(raw map[string]interface{}) (map[string]spawn.Config, error) {
	var file File
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &file,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config map: %w", err)
	}
	return validateConfigs(file.MCPServers)
}

func validateConfigs(configs map[string]spawn.Config) (map[string]spawn.Config, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("config defines no servers under mcpServers")
	}
	for name, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
	}
	return configs, nil
}
