package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML file layout. Only non-empty values override the environment.
//
//	namespace: support
//	system_prompt: You are a terse assistant.
//	router:
//	  keywords: [add, plus, sum]
//	redact:
//	  - '[\w.]+@[\w.]+'
type FileConfig struct {
	Namespace    string `yaml:"namespace"`
	SystemPrompt string `yaml:"system_prompt"`
	Router       struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"router"`
	Redact []string `yaml:"redact"`
}

// ApplyFile overlays the YAML file at path onto c.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if fc.Namespace != "" {
		c.Namespace = fc.Namespace
	}
	if fc.SystemPrompt != "" {
		c.SystemPrompt = fc.SystemPrompt
	}
	if len(fc.Router.Keywords) > 0 {
		c.RouterKeywords = fc.Router.Keywords
	}
	if len(fc.Redact) > 0 {
		c.RedactPatterns = fc.Redact
	}
	return nil
}
