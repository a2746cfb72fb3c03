// Package config loads a bridge manifest: the headers to parse, the slots to
// generate trampolines for and the runtime options. Values come from YAML and
// are overridden by CALLBRIDGE_* environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v3"

	"github.com/wippyai/callbridge/bridge"
	"github.com/wippyai/callbridge/errors"
	"github.com/wippyai/callbridge/layout"
	"github.com/wippyai/callbridge/trampoline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CALLBRIDGE_"

// Config is a bridge manifest.
//
//	namespace: cef
//	fallback: noop
//	headers: [include/capi/cef_cookie_capi.h]
//	slots:
//	  - cef_set_cookie_callback_t.on_complete
//	  - cef_cookie_visitor_t          # every slot
type Config struct {
	Namespace    string   `yaml:"namespace" env:"NAMESPACE"`
	Fallback     string   `yaml:"fallback" env:"FALLBACK"`
	LogLevel     string   `yaml:"log_level" env:"LOG_LEVEL"`
	Headers      []string `yaml:"headers" env:"HEADERS" envSeparator:","`
	Slots        []string `yaml:"slots" env:"SLOTS" envSeparator:","`
	Shards       int      `yaml:"shards" env:"SHARDS"`
	TableReserve uint32   `yaml:"table_reserve" env:"TABLE_RESERVE"`

	// dir resolves relative header paths; set by Load.
	dir string
}

// Default returns the configuration used when no manifest is given.
func Default() Config {
	return Config{
		Namespace: "cef",
		Fallback:  bridge.PolicyNoop.String(),
		LogLevel:  "info",
	}
}

// Load reads a manifest file and applies environment overrides.
func Load(file string) (Config, error) {
	f, err := os.Open(file) // #nosec G304
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open manifest")
	}
	defer f.Close()
	cfg, err := LoadReader(f, nil)
	if err != nil {
		return cfg, err
	}
	cfg.dir = filepath.Dir(file)
	return cfg, nil
}

// LoadReader decodes a manifest over the defaults and applies environment
// overrides from environ, or from the process environment when environ is nil.
func LoadReader(r io.Reader, environ map[string]string) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode manifest")
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from CALLBRIDGE_* variables.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "environment overrides")
	}
	return nil
}

// Validate checks field values without touching the filesystem.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.InvalidInput(errors.PhaseConfig, "namespace is empty")
	}
	if _, err := bridge.ParsePolicy(c.Fallback); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "fallback")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	if c.Shards < 0 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("shards must not be negative, got %d", c.Shards))
	}
	for _, s := range c.Slots {
		if _, _, err := SplitSlot(s); err != nil {
			return err
		}
	}
	return nil
}

// SplitSlot splits "struct.path" into the struct name and slot path. A bare
// struct name or "struct.*" selects every slot and returns path "".
func SplitSlot(s string) (structName, path string, err error) {
	s = strings.TrimSpace(s)
	structName, path, _ = strings.Cut(s, ".")
	if structName == "" {
		return "", "", errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("slot %q has no struct name", s))
	}
	if path == "*" {
		path = ""
	}
	return structName, path, nil
}

// Logger builds a zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = level > zapcore.DebugLevel
	return zc.Build()
}

// HeaderPaths returns header paths resolved against the manifest directory.
func (c *Config) HeaderPaths() []string {
	out := make([]string, len(c.Headers))
	for i, h := range c.Headers {
		if c.dir != "" && !filepath.IsAbs(h) {
			h = filepath.Join(c.dir, h)
		}
		out[i] = h
	}
	return out
}

// Layouts parses every header into one layout set.
func (c *Config) Layouts() (*layout.Set, error) {
	ls := layout.NewSet()
	for _, path := range c.HeaderPaths() {
		if err := parseHeaderFile(ls, path); err != nil {
			return nil, err
		}
	}
	return ls, nil
}

func parseHeaderFile(ls *layout.Set, path string) error {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open header")
	}
	defer f.Close()
	if err := ls.ParseHeader(f); err != nil {
		return errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, path)
	}
	return nil
}

// BuildSet generates trampolines for the configured slots.
func (c *Config) BuildSet(ls *layout.Set) (*trampoline.Set, error) {
	set := trampoline.NewSet(c.Namespace, ls, trampoline.WithReserve(c.TableReserve))
	for _, s := range c.Slots {
		structName, path, err := SplitSlot(s)
		if err != nil {
			return nil, err
		}
		if path == "" {
			_, err = set.AddStruct(structName)
		} else {
			_, err = set.Add(structName, path)
		}
		if err != nil {
			return nil, err
		}
	}
	return set, nil
}

// BridgeOptions converts the runtime settings to bridge options.
func (c *Config) BridgeOptions(logger *zap.Logger) ([]bridge.Option, error) {
	policy, err := bridge.ParsePolicy(c.Fallback)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "fallback")
	}
	opts := []bridge.Option{
		bridge.WithPolicy(policy),
		bridge.WithShards(c.Shards),
	}
	if logger != nil {
		opts = append(opts, bridge.WithLogger(logger))
	}
	return opts, nil
}
