package webauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix read by LoadConfig.
const DefaultEnvPrefix = "WEBAUTH_"

type loadOptions struct {
	filePath  string
	envPrefix string
	defaults  map[string]any
	overrides map[string]any
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithConfigFile layers a YAML file over the defaults.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.filePath = path
	}
}

// WithEnvPrefix changes the environment prefix (default WEBAUTH_).
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithDefaults layers dotted keys over DefaultConfig, below the file and the
// environment. The CLI sets its own defaults here.
func WithDefaults(values map[string]any) LoadOption {
	return func(o *loadOptions) {
		o.defaults = values
	}
}

// WithOverrides applies dotted keys (e.g. "http.base_url") last. The CLI
// passes its flags through here.
func WithOverrides(values map[string]any) LoadOption {
	return func(o *loadOptions) {
		o.overrides = values
	}
}

// LoadConfig builds a Config from DefaultConfig and WithDefaults, then the
// YAML file, then the environment, then overrides, and validates the result.
//
// Environment keys use a double underscore between sections:
// WEBAUTH_HTTP__BASE_URL sets http.base_url.
func LoadConfig(opts ...LoadOption) (Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")

	if len(o.defaults) > 0 {
		if err := k.Load(mapProvider(o.defaults), nil); err != nil {
			return Config{}, fmt.Errorf("load defaults: %w", err)
		}
	}

	if o.filePath != "" {
		if err := k.Load(file.Provider(o.filePath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", o.filePath, err)
		}
	}

	prefix := o.envPrefix
	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(prefix, ".", envTransformer), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if len(o.overrides) > 0 {
		if err := k.Load(mapProvider(o.overrides), nil); err != nil {
			return Config{}, fmt.Errorf("load overrides: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var errReadBytesNotSupported = errors.New("map provider does not support ReadBytes")

// mapProvider feeds a map of dotted keys to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = value
	}
	return unflatten(out), nil
}

func unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := node[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[part] = next
			}
			node = next
		}
		node[parts[len(parts)-1]] = value
	}
	return out
}
