package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUDITFLOW_"

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from Default, the file at path (skipped
// when path is empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, lookup LookupFunc) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		var err error
		raw, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	applyEnv(raw, lookup)

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readFile loads a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a raw key tree.
func FromYAML(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// FromJSON parses JSON data into a raw key tree.
func FromJSON(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// decode overlays raw onto cfg. Strings convert to numbers, booleans and
// durations; unknown keys are errors.
func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// applyEnv writes every set AUDITFLOW_* variable into raw at its key path.
func applyEnv(raw map[string]any, lookup LookupFunc) {
	for _, path := range keyPaths(reflect.TypeOf(Config{}), nil) {
		name := EnvPrefix + strings.ToUpper(strings.Join(path, "_"))
		if v, ok := lookup(name); ok {
			setPath(raw, path, v)
		}
	}
}

// keyPaths lists the mapstructure key path of every leaf field of t.
func keyPaths(t reflect.Type, prefix []string) [][]string {
	var paths [][]string
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		path := append(append([]string(nil), prefix...), tag)
		if f.Type.Kind() == reflect.Struct {
			paths = append(paths, keyPaths(f.Type, path)...)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func setPath(m map[string]any, path []string, value string) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}
