package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when the corresponding field is zero.
const (
	DefaultListenAddr     = ":8080"
	DefaultMaxConcurrent  = 5
	DefaultChannelBacklog = 32
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
//
// Values of the form ${NAME} are expanded from the environment before
// decoding, so API keys can stay out of config files.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for omitted fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Dispatch
	if cfg.Dispatch.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("dispatch.max_concurrent must not be negative, got %d", cfg.Dispatch.MaxConcurrent))
	}
	if cfg.Dispatch.MaxConcurrent == 0 {
		cfg.Dispatch.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Dispatch.ChannelBacklog == 0 {
		cfg.Dispatch.ChannelBacklog = DefaultChannelBacklog
	}
	if cfg.Dispatch.RequestTimeout < 0 || cfg.Dispatch.QueueWait < 0 {
		errs = append(errs, errors.New("dispatch timeouts must not be negative"))
	}

	// Upstreams — keys may legitimately be empty in tests, but a base URL
	// that is set must be absolute.
	for _, u := range []struct {
		name string
		cfg  UpstreamConfig
	}{
		{"upstreams.flux", cfg.Upstreams.Flux},
		{"upstreams.scrapegraph", cfg.Upstreams.ScrapeGraph},
	} {
		if u.cfg.BaseURL != "" && !strings.HasPrefix(u.cfg.BaseURL, "http://") && !strings.HasPrefix(u.cfg.BaseURL, "https://") {
			errs = append(errs, fmt.Errorf("%s.base_url %q must start with http:// or https://", u.name, u.cfg.BaseURL))
		}
	}

	return errors.Join(errs...)
}
