// Package ntrcconfig resolves recorder configuration from defaults, an
// optional config file, and the environment, in that order of precedence.
package ntrcconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcvalue"
	"gopkg.in/yaml.v3"
)

// Config for a recorder and its value renderer.
type Config struct {
	Level  ntrc.Level  `yaml:"level"  toml:"level"  env:"LEVEL"`
	Values ValueLimits `yaml:"values" toml:"values" envPrefix:"VALUES_"`
}

// ValueLimits bound the size of rendered values. Zero means the default.
type ValueLimits struct {
	MaxStringLength    int `yaml:"max_string_length"    toml:"max_string_length"    env:"MAX_STRING_LENGTH"`
	MaxCollectionItems int `yaml:"max_collection_items" toml:"max_collection_items" env:"MAX_COLLECTION_ITEMS"`
	MaxObjectFields    int `yaml:"max_object_fields"    toml:"max_object_fields"    env:"MAX_OBJECT_FIELDS"`
}

// Default returns the default config: LevelDetail, and default value limits.
func Default() Config {
	return Config{
		Level: ntrc.LevelDetail,
		Values: ValueLimits{
			MaxStringLength:    ntrcvalue.DefaultMaxStringLength,
			MaxCollectionItems: ntrcvalue.DefaultMaxCollectionItems,
			MaxObjectFields:    ntrcvalue.DefaultMaxObjectFields,
		},
	}
}

// Validate returns an error if the config has invalid values.
func (c Config) Validate() error {
	if c.Level < ntrc.LevelOff || c.Level > ntrc.LevelDetail {
		return fmt.Errorf("invalid level %d", c.Level)
	}
	if c.Values.MaxStringLength < 0 || c.Values.MaxCollectionItems < 0 || c.Values.MaxObjectFields < 0 {
		return fmt.Errorf("value limits must not be negative")
	}
	return nil
}

// LevelVar returns a new level var set to the configured level.
func (c Config) LevelVar() *ntrc.LevelVar {
	return ntrc.NewLevelVar(c.Level)
}

// Renderer returns a value renderer with the configured limits.
func (c Config) Renderer() *ntrcvalue.Renderer {
	return &ntrcvalue.Renderer{
		MaxStringLength:    c.Values.MaxStringLength,
		MaxCollectionItems: c.Values.MaxCollectionItems,
		MaxObjectFields:    c.Values.MaxObjectFields,
	}
}

//
//
//

// FileNames are the config file names searched for in each search path.
var FileNames = []string{"narrativetrace.yaml", "narrativetrace.yml", "narrativetrace.toml"}

// EnvPrefix is the prefix of every environment variable, e.g.
// NARRATIVETRACE_LEVEL.
const EnvPrefix = "NARRATIVETRACE_"

// DuplicateConfigurationError is returned when more than one config file is
// found. It's meant to fail startup: which file should win is ambiguous.
type DuplicateConfigurationError struct {
	Locations []string
}

// Error implements the error interface.
func (e *DuplicateConfigurationError) Error() string {
	return fmt.Sprintf("found multiple config files: %s", strings.Join(e.Locations, ", "))
}

// Option changes the behavior of Resolve.
type Option func(*options)

type options struct {
	fsys        fs.FS
	searchPaths []string
	environment map[string]string
}

// WithFS searches for config files in fsys, rather than the OS filesystem.
func WithFS(fsys fs.FS) Option {
	return func(o *options) { o.fsys = fsys }
}

// WithSearchPaths sets the directories searched for config files. By default,
// only the working directory is searched.
func WithSearchPaths(paths ...string) Option {
	return func(o *options) { o.searchPaths = paths }
}

// WithEnvironment uses env in place of the process environment.
func WithEnvironment(env map[string]string) Option {
	return func(o *options) { o.environment = env }
}

// Resolve the config. Resolution starts with the defaults, applies the one
// config file found in the search paths if there is one, and then applies
// overrides from the environment. It's an error if more than one config file
// is found, in which case the error is a *DuplicateConfigurationError. A
// config file that exists but can't be read is ignored.
func Resolve(opts ...Option) (Config, error) {
	o := options{
		fsys:        osFS{},
		searchPaths: []string{"."},
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	locations := findConfigFiles(o.fsys, o.searchPaths)
	switch {
	case len(locations) > 1:
		return Config{}, &DuplicateConfigurationError{Locations: locations}
	case len(locations) == 1:
		if err := loadFile(o.fsys, locations[0], &cfg); err != nil {
			return Config{}, err
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix, Environment: o.environment}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MustResolve calls Resolve, and panics on error.
func MustResolve(opts ...Option) Config {
	cfg, err := Resolve(opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

func findConfigFiles(fsys fs.FS, searchPaths []string) []string {
	var (
		locations []string
		seen      = map[string]bool{}
	)
	for _, dir := range searchPaths {
		for _, name := range FileNames {
			p := path.Join(filepath.ToSlash(dir), name)
			if seen[p] {
				continue
			}
			seen[p] = true
			if fi, err := fs.Stat(fsys, p); err == nil && !fi.IsDir() {
				locations = append(locations, p)
			}
		}
	}
	return locations
}

func loadFile(fsys fs.FS, p string, cfg *Config) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil // unreadable files are ignored
	}

	switch path.Ext(p) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// osFS reads from the OS filesystem, with paths relative to the working
// directory, or absolute.
type osFS struct{}

func (osFS) Open(name string) (fs.File, error) {
	return os.Open(filepath.FromSlash(name))
}

func (osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.FromSlash(name))
}

func (osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.FromSlash(name))
}

var (
	_ fs.StatFS     = osFS{}
	_ fs.ReadFileFS = osFS{}
)

// IsDuplicate returns true if err is, or wraps, a DuplicateConfigurationError.
func IsDuplicate(err error) bool {
	var dce *DuplicateConfigurationError
	return errors.As(err, &dce)
}
