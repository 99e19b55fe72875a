package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CREWPLANNER_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads the engine configuration.
//
// Precedence (highest first):
//  1. Environment variables (CREWPLANNER_REASONING_MODEL -> reasoning.model)
//  2. YAML file at path, if path is non-empty
//  3. DefaultEngineConfig
func Load(path string) (*EngineConfig, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return unmarshalEngineConfig(k)
}

// EngineConfigFromMap builds an EngineConfig from a decoded document,
// layering it over DefaultEngineConfig. Environment overrides do not apply.
func EngineConfigFromMap(m map[string]any) (*EngineConfig, error) {
	// JSON is a subset of YAML, so the map goes through the same parser as files.
	content, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config map: %w", err)
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config map: %w", err)
	}
	return unmarshalEngineConfig(k)
}

func unmarshalEngineConfig(k *koanf.Koanf) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps CREWPLANNER_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore after the prefix separates the section.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// LoadRunConfig reads a run description (task, domain, threshold, budget)
// from a YAML file. Tunables missing from the file come from defaults.
func LoadRunConfig(path string, defaults FlowDefaults) (RunConfig, error) {
	content, err := readConfigFile(path)
	if err != nil {
		return RunConfig{}, err
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return RunConfig{}, fmt.Errorf("failed to parse run file %s: %w", path, err)
	}

	raw := k.Raw()
	if _, ok := raw["threshold"]; !ok {
		raw["threshold"] = defaults.Threshold
	}
	if _, ok := raw["budget"]; !ok {
		raw["budget"] = defaults.Budget
	}

	rc, err := RunConfigFromMap(raw)
	if err != nil {
		return rc, err
	}
	return rc, rc.Validate()
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
