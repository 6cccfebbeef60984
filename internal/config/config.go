package config

import (
	"time"

	"github.com/fwpanel/panel-stream/internal/stream"
)

// Config is the root configuration for the panel tools.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DBConfig       `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// InstanceConfig identifies this panel instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds event-stream client settings.
type StreamConfig struct {
	Endpoints            []string      `yaml:"endpoints"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ProbeInterval        time.Duration `yaml:"probe_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	Capabilities         []string      `yaml:"capabilities"`
}

// DBConfig holds the log archive database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds log-entry recorder settings.
type RecorderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ClientConfig maps the stream section onto a stream.Config.
func (s StreamConfig) ClientConfig() stream.Config {
	return stream.Config{
		Endpoints:            s.Endpoints,
		DialTimeout:          s.DialTimeout,
		WriteTimeout:         s.WriteTimeout,
		ProbeInterval:        s.ProbeInterval,
		ReconnectBaseDelay:   s.ReconnectBaseDelay,
		ReconnectMaxDelay:    s.ReconnectMaxDelay,
		MaxReconnectAttempts: s.MaxReconnectAttempts,
		QueueCapacity:        s.QueueCapacity,
		Capabilities:         s.Capabilities,
	}
}
