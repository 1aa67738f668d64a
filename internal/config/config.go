// Package config provides the configuration schema and loader for the
// fluxgate gateway.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so YAML values like "300s" or "5m" decode
// directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the gateway.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Upstreams UpstreamsConfig `yaml:"upstreams"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DispatchConfig holds the dispatch core's policy knobs.
type DispatchConfig struct {
	// MaxConcurrent is the size of the global concurrency slot pool.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RequestTimeout bounds one invocation from submission to upstream
	// response.
	RequestTimeout Duration `yaml:"request_timeout"`

	// QueueWait bounds how long the synchronous transport waits for a free
	// slot before failing with a capacity error.
	QueueWait Duration `yaml:"queue_wait"`

	// ChannelBacklog caps the number of in-flight invocations per channel
	// connection.
	ChannelBacklog int `yaml:"channel_backlog"`
}

// UpstreamConfig describes one upstream API endpoint.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// UpstreamsConfig holds the two upstream endpoints.
type UpstreamsConfig struct {
	Flux        UpstreamConfig `yaml:"flux"`
	ScrapeGraph UpstreamConfig `yaml:"scrapegraph"`
}

// StoreConfig selects the generation store backend.
type StoreConfig struct {
	// PostgresDSN, when non-empty, selects the PostgreSQL store. Empty
	// selects the in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventsConfig configures the optional invocation event stream.
type EventsConfig struct {
	// NATSURL, when non-empty, enables publishing invocation events to NATS.
	NATSURL string `yaml:"nats_url"`

	// SubjectPrefix overrides the default subject prefix for invocation
	// events.
	SubjectPrefix string `yaml:"subject_prefix"`
}
