package confloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const DefaultEnvPrefix = "GOTOKEN_"

var ErrReadBytesNotSupported = errors.New("confloader: map provider has no byte form")

// Loader layers configuration sources into one koanf tree.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

type Option func(*Loader)

func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load applies defaults, the config file (if any) and the environment, then
// unmarshals into target using koanf struct tags. defaults must be nested
// maps, not dotted keys.
func (l *Loader) Load(defaults map[string]any, target any) error {
	if len(defaults) > 0 {
		if err := l.k.Load(mapProvider(defaults), nil); err != nil {
			return fmt.Errorf("load defaults: %w", err)
		}
	}
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// LoadEnv maps GOTOKEN_STORE__REDIS_ADDR to store.redis_addr.
func (l *Loader) LoadEnv() error {
	transform := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

func (l *Loader) Keys() []string {
	return l.k.Keys()
}

type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
