// Package config provides the configuration schema, loader, and change
// watcher for the voxduct router.
package config

// LogLevel controls log verbosity.
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

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Agent   AgentConfig   `yaml:"agent"`
	Devices DevicesConfig `yaml:"devices"`
	Audio   AudioConfig   `yaml:"audio"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig holds the control server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the control server listens on
	// (e.g., ":8080"). Empty disables the control server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// AgentConfig holds the conversational agent connection settings. APIKey and
// AgentID can also come from the ELEVENLABS_API_KEY and ELEVENLABS_AGENT_ID
// environment variables, which take precedence over the file.
type AgentConfig struct {
	// AgentID identifies the agent to converse with.
	AgentID string `yaml:"agent_id"`

	// APIKey authenticates the WebSocket connection. Optional for public
	// agents.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the conversation endpoint. Empty uses the production
	// endpoint.
	BaseURL string `yaml:"base_url"`
}

// DevicesConfig names the audio devices by decoded platform ID or name
// substring. Empty selects the platform default.
type DevicesConfig struct {
	// Mic is the capture device.
	Mic string `yaml:"mic"`

	// Cable is the virtual cable. Its playback side receives agent audio;
	// its capture side feeds the monitor.
	Cable string `yaml:"cable"`

	// Speaker is the physical playback device used by the monitor.
	Speaker string `yaml:"speaker"`
}

// AudioConfig holds the PCM stream format shared by all streams.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// InputChannels is the capture channel count. Default: 1.
	InputChannels int `yaml:"input_channels"`

	// OutputChannels is the playback channel count. Must equal InputChannels
	// or be exactly 2 with mono input. Default: 2.
	OutputChannels int `yaml:"output_channels"`

	// FramesPerBuffer is the per-callback period size. Default: 320
	// (20 ms at 16 kHz).
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// MonitorConfig controls the cable-to-speaker mirror.
type MonitorConfig struct {
	// Enabled turns the monitor double-hop on.
	Enabled bool `yaml:"enabled"`
}
