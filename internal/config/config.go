package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/internal/logging"
	"github.com/aretw0/wmbridge/pkg/adapters/sim"
	"github.com/aretw0/wmbridge/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "wmbridge.yaml"

// Defaults.
const (
	DefaultCycle       = 100 * time.Millisecond
	DefaultHTTPAddr    = ":8080"
	DefaultRedisPrefix = "wmbridge:"
)

// Duration is a time.Duration that decodes from "250ms"-style strings in
// both YAML and JSON.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// Redis configures the distributed lock and snapshot store.
type Redis struct {
	Addr     string   `yaml:"addr" json:"addr"`
	Password string   `yaml:"password" json:"password"`
	DB       int      `yaml:"db" json:"db"`
	Prefix   string   `yaml:"prefix" json:"prefix"`
	TTL      Duration `yaml:"ttl" json:"ttl"`
	LockTTL  Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

// Enabled reports whether a redis address is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Store configures local snapshot persistence and what is written to any store.
type Store struct {
	// Dir enables the file store when redis is not configured.
	Dir string `yaml:"dir" json:"dir"`
	// EncryptionKey is a base64 AES-256 key. Environment variables are expanded.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`
	// Redact lists regular expressions over dotted attribute paths whose
	// values are masked before saving.
	Redact []string `yaml:"redact" json:"redact"`
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(os.ExpandEnv(s))
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	return key, nil
}

// Middlewares builds the store middlewares: redaction first, then encryption.
func (s Store) Middlewares() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	for _, p := range s.Redact {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
	}
	if len(s.Redact) > 0 {
		mws = append(mws, middleware.NewRedactMiddleware(s.Redact))
	}

	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, errors.New("fallback_keys require encryption_key")
		}
		return mws, nil
	}
	var cfg middleware.EncryptionConfig
	var err error
	if cfg.ActiveKey, err = decodeKey(s.EncryptionKey); err != nil {
		return nil, err
	}
	for _, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return append(mws, middleware.NewEncryptionMiddleware(cfg)), nil
}

// HTTP configures the introspection server.
type HTTP struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Config is the bridge configuration file.
type Config struct {
	Agent       string   `yaml:"agent" json:"agent"`
	Units       string   `yaml:"units" json:"units"`
	Reappear    string   `yaml:"reappear" json:"reappear"`
	RetainLimit int      `yaml:"retain_limit" json:"retain_limit"`
	EventQueue  int      `yaml:"event_queue" json:"event_queue"`
	Commands    []string `yaml:"commands" json:"commands"`
	Cycle       Duration `yaml:"cycle" json:"cycle"`
	LogLevel    string   `yaml:"log_level" json:"log_level"`
	LogFormat   string   `yaml:"log_format" json:"log_format"`

	Redis Redis        `yaml:"redis" json:"redis"`
	Store Store        `yaml:"store" json:"store"`
	HTTP  HTTP         `yaml:"http" json:"http"`
	Sim   sim.Scenario `yaml:"sim" json:"sim"`

	// Script is the path of a scripted reasoning engine, relative to the
	// configuration file.
	Script string `yaml:"script" json:"script"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Agent:     "default",
		Units:     string(wmbridge.UnitsMillimeters),
		Reappear:  string(wmbridge.ReappearFresh),
		Cycle:     Duration(DefaultCycle),
		LogLevel:  "info",
		LogFormat: logging.FormatText,
		Redis:     Redis{Prefix: DefaultRedisPrefix},
		HTTP:      HTTP{Addr: DefaultHTTPAddr},
	}
}

// Load reads a configuration file (YAML or JSON) on top of the defaults.
// A missing file at DefaultPath yields the defaults; any other missing
// file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if cfg.Script != "" && !filepath.IsAbs(cfg.Script) {
		cfg.Script = filepath.Join(filepath.Dir(path), cfg.Script)
	}
	if cfg.Store.Dir != "" && !filepath.IsAbs(cfg.Store.Dir) {
		cfg.Store.Dir = filepath.Join(filepath.Dir(path), cfg.Store.Dir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects unknown units, policies, verbs and log levels.
func (c *Config) Validate() error {
	var errs []error
	if _, err := wmbridge.ParseUnits(c.Units); err != nil {
		errs = append(errs, err)
	}
	if _, err := wmbridge.ParseReappearPolicy(c.Reappear); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	known := make(map[string]bool)
	for _, v := range wmbridge.Verbs() {
		known[v] = true
	}
	for _, v := range c.Commands {
		if !known[v] {
			errs = append(errs, fmt.Errorf("unknown command %q", v))
		}
	}
	if c.RetainLimit < 0 {
		errs = append(errs, fmt.Errorf("retain_limit must not be negative"))
	}
	if c.EventQueue < 0 {
		errs = append(errs, fmt.Errorf("event_queue must not be negative"))
	}
	if c.Cycle < 0 {
		errs = append(errs, fmt.Errorf("cycle must not be negative"))
	}
	if _, err := c.Store.Middlewares(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Options maps the configuration onto bridge options. Redis-backed options
// are added by the caller, which owns the client.
func (c *Config) Options() []wmbridge.Option {
	units, _ := wmbridge.ParseUnits(c.Units)
	policy, _ := wmbridge.ParseReappearPolicy(c.Reappear)
	opts := []wmbridge.Option{
		wmbridge.WithUnits(units),
		wmbridge.WithReappearPolicy(policy, c.RetainLimit),
	}
	if c.Agent != "" {
		opts = append(opts, wmbridge.WithAgentName(c.Agent))
	}
	if c.EventQueue > 0 {
		opts = append(opts, wmbridge.WithEventQueueSize(c.EventQueue))
	}
	if len(c.Commands) > 0 {
		opts = append(opts, wmbridge.WithCommands(c.Commands...))
	}
	return opts
}

// CycleDuration returns the loop period, falling back to DefaultCycle.
func (c *Config) CycleDuration() time.Duration {
	if c.Cycle <= 0 {
		return DefaultCycle
	}
	return time.Duration(c.Cycle)
}
