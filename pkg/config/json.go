package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadJSON decodes one JSON file into target.
func LoadJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the caller
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes the configuration to path as indented JSON. Permissions are
// kept tight; configs may carry credentials.
func SaveJSON(path string, cfg interface{}) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
