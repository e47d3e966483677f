package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "HTTP_MOCKER_"

// EnvConfigFile names a config file to load when no path is given.
const EnvConfigFile = EnvPrefix + "CONFIG"

// ConfigError describes an invalid configuration value.
type ConfigError struct {
	Path    string
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Path != "" && e.Key != "":
		return e.Path + ": " + e.Key + ": " + e.Message
	case e.Path != "":
		return e.Path + ": " + e.Message
	case e.Key != "":
		return e.Key + ": " + e.Message
	default:
		return e.Message
	}
}

// LoadFile reads a YAML config file. The returned Sources lists the keys
// present in the file, so Merge applies explicit zero values too.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	cfg := Config{Sources: make(map[string]string)}
	if len(doc.Content) == 0 {
		return &cfg, nil
	}
	root := doc.Content[0]
	if err := root.Decode(&cfg); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			if f, ok := fieldByKey(root.Content[i].Value); ok {
				cfg.Sources[f.key] = SourceFile
			}
		}
	}
	return &cfg, nil
}

// Merge copies values of src into dst and records source for them. When src
// tracks its keys in Sources exactly those are copied, otherwise every
// non-zero value is.
func Merge(dst, src *Config, source string) {
	if src == nil {
		return
	}
	if dst.Sources == nil {
		dst.Sources = make(map[string]string)
	}
	for _, f := range fields {
		if len(src.Sources) > 0 {
			if _, ok := src.Sources[f.key]; !ok {
				continue
			}
		} else if f.isZero(src) {
			continue
		}
		f.copy(dst, src)
		dst.Sources[f.key] = source
	}
}

// LoadEnv overlays environment variables named prefix+suffix onto cfg.
// lookup is usually os.LookupEnv.
func LoadEnv(cfg *Config, prefix string, lookup func(string) (string, bool)) error {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}
	var errs []error
	for _, f := range fields {
		raw, ok := lookup(prefix + f.env)
		if !ok {
			continue
		}
		if err := f.set(cfg, raw); err != nil {
			errs = append(errs, &ConfigError{Key: prefix + f.env, Message: err.Error()})
			continue
		}
		cfg.Sources[f.key] = SourceEnv
	}
	return errors.Join(errs...)
}

// Load builds the effective configuration: defaults, then the file at path
// (or the file named by HTTP_MOCKER_CONFIG when path is empty), then the
// environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		Merge(cfg, fileCfg, SourceFile)
	}

	if err := LoadEnv(cfg, EnvPrefix, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
