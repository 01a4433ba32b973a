package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override credentials from the file. Keeping
// secrets out of the YAML matches how the hosted agent expects to be used.
const (
	EnvAPIKey  = "ELEVENLABS_API_KEY"
	EnvAgentID = "ELEVENLABS_AGENT_ID"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment overrides applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.InputChannels == 0 {
		cfg.Audio.InputChannels = 1
	}
	if cfg.Audio.OutputChannels == 0 {
		cfg.Audio.OutputChannels = 2
	}
	if cfg.Audio.FramesPerBuffer == 0 {
		cfg.Audio.FramesPerBuffer = 320
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Agent.APIKey = v
	}
	if v := os.Getenv(EnvAgentID); v != "" {
		cfg.Agent.AgentID = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Agent.AgentID == "" {
		errs = append(errs, fmt.Errorf("agent.agent_id is required (or set %s)", EnvAgentID))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.InputChannels <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_channels %d must be positive", cfg.Audio.InputChannels))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must be positive", cfg.Audio.FramesPerBuffer))
	}
	switch {
	case cfg.Audio.OutputChannels < cfg.Audio.InputChannels:
		errs = append(errs, fmt.Errorf("audio.output_channels %d must not be lower than input_channels %d",
			cfg.Audio.OutputChannels, cfg.Audio.InputChannels))
	case cfg.Audio.OutputChannels != cfg.Audio.InputChannels &&
		!(cfg.Audio.InputChannels == 1 && cfg.Audio.OutputChannels == 2):
		errs = append(errs, fmt.Errorf("unsupported channel mapping %d -> %d; only equal counts or mono-to-stereo are supported",
			cfg.Audio.InputChannels, cfg.Audio.OutputChannels))
	}

	if cfg.Monitor.Enabled && cfg.Devices.Cable == "" {
		errs = append(errs, errors.New("monitor.enabled requires devices.cable to be set"))
	}

	return errors.Join(errs...)
}
