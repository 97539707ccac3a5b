package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

// ValidateWithCue checks the mission YAML against the CUE schema before it is
// decoded, so malformed rosters fail with a schema error instead of a zero
// value downstream.
func ValidateWithCue(configFile, cueFile string) error {
	ctx := cuecontext.New()

	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("read mission config: %w", err)
	}
	yamlFile, err := yaml.Extract(configFile, yamlBytes)
	if err != nil {
		return fmt.Errorf("parse mission config: %w", err)
	}
	configVal := ctx.BuildFile(yamlFile)

	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes)

	unified := configVal.Unify(schemaVal)
	if unified.Err() != nil {
		return fmt.Errorf("mission config does not match schema: %w", unified.Err())
	}
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("mission config invalid: %w", err)
	}
	return nil
}
