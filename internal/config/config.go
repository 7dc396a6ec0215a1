// Package config provides configuration management for tutorbridge
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/normanking/tutorbridge/internal/audio"
	"github.com/normanking/tutorbridge/internal/logging"
)

const (
	envPrefix = "TUTORBRIDGE"
	dirName   = ".tutorbridge"
	fileName  = "config.yaml"
)

// Config holds all application configuration
type Config struct {
	Dataflow     DataflowConfig      `mapstructure:"dataflow"`
	Bridge       BridgeConfig        `mapstructure:"bridge"`
	Participants []ParticipantConfig `mapstructure:"participants"`
	Audio        audio.Config        `mapstructure:"audio"`
	Session      SessionConfig       `mapstructure:"session"`
	Logging      logging.Config      `mapstructure:"logging"`
	Metrics      MetricsConfig       `mapstructure:"metrics"`
	Store        StoreConfig         `mapstructure:"store"`
	Window       WindowConfig        `mapstructure:"window"`

	source string
}

// DataflowConfig selects how nodes reach the pipeline
type DataflowConfig struct {
	Transport   string        `mapstructure:"transport"` // ws or memory
	URL         string        `mapstructure:"url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Buffer      int           `mapstructure:"buffer"`
}

// BridgeConfig configures the UI-side bridges
type BridgeConfig struct {
	ConnectTimeout   time.Duration            `mapstructure:"connect_timeout"`
	ConnectPoll      time.Duration            `mapstructure:"connect_poll"`
	RecvTimeout      time.Duration            `mapstructure:"recv_timeout"`
	SubscriberBuffer int                      `mapstructure:"subscriber_buffer"`
	MinLogLevel      string                   `mapstructure:"min_log_level"`
	LogHistory       int                      `mapstructure:"log_history"`
	ParticipantID    string                   `mapstructure:"participant_id"`
	Nodes            map[string]string        `mapstructure:"nodes"` // kind -> node id
	Queues           map[string]QueueSettings `mapstructure:"queues"`
}

// QueueSettings overrides one bridge queue
type QueueSettings struct {
	Size         int           `mapstructure:"size"`
	Policy       string        `mapstructure:"policy"` // drop or block
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
}

// ParticipantConfig maps a chat input to a speaker
type ParticipantConfig struct {
	InputID string `mapstructure:"input_id"`
	Name    string `mapstructure:"name"`
	Role    string `mapstructure:"role"`
}

// SessionConfig names the pipeline-side session nodes
type SessionConfig struct {
	ControllerNodeID string `mapstructure:"controller_node_id"`
	ContextNodeID    string `mapstructure:"context_node_id"`
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StoreConfig configures the transcript recorder
type StoreConfig struct {
	Path   string `mapstructure:"path"`
	NodeID string `mapstructure:"node_id"`
}

// WindowConfig configures the window
type WindowConfig struct {
	Title       string `mapstructure:"title"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	AlwaysOnTop bool   `mapstructure:"always_on_top"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := Dir()
	return &Config{
		Dataflow: DataflowConfig{
			Transport:   "ws",
			URL:         "ws://127.0.0.1:7447/nodes",
			DialTimeout: 5 * time.Second,
			Buffer:      64,
		},
		Bridge: BridgeConfig{
			ConnectTimeout:   5 * time.Second,
			ConnectPoll:      50 * time.Millisecond,
			RecvTimeout:      100 * time.Millisecond,
			SubscriberBuffer: 256,
			MinLogLevel:      "debug",
			LogHistory:       500,
		},
		Participants: []ParticipantConfig{
			{InputID: "student1_text", Name: "Student 1", Role: "user"},
			{InputID: "student2_text", Name: "Student 2", Role: "user"},
			{InputID: "tutor_text", Name: "Tutor", Role: "assistant"},
		},
		Audio: audio.DefaultConfig(),
		Session: SessionConfig{
			ControllerNodeID: "session-controller",
			ContextNodeID:    "session-context",
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9464",
		},
		Store: StoreConfig{
			Path:   filepath.Join(dir, "transcripts.db"),
			NodeID: "recorder",
		},
		Window: WindowConfig{
			Title:  "Tutor Bridge",
			Width:  960,
			Height: 720,
		},
	}
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName), nil
}

// Source returns the file the configuration was read from, empty when
// defaults were used.
func (c *Config) Source() string {
	return c.source
}

// Load reads configuration from path and the environment. An empty path
// searches the config directory and the working directory; when nothing is
// found there the defaults are written to the config directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.MergeConfigMap(settings(cfg)); err != nil {
		return cfg, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return cfg, err
		}
		v.SetConfigName(strings.TrimSuffix(fileName, filepath.Ext(fileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dir, err := Dir()
		if err != nil {
			return cfg, err
		}
		if err := Save(cfg, filepath.Join(dir, fileName)); err != nil {
			return cfg, err
		}
	}

	// Defaults are already merged into v; decoding onto cfg would keep
	// default slice entries past the configured length.
	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	out.source = v.ConfigFileUsed()
	return out, out.Validate()
}

// Save writes cfg as YAML to path, creating its directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	v := viper.New()
	if err := v.MergeConfigMap(settings(cfg)); err != nil {
		return err
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Dataflow.Transport {
	case "ws":
		if c.Dataflow.URL == "" {
			return errors.New("config: dataflow.url is required for the ws transport")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown dataflow.transport %q", c.Dataflow.Transport)
	}
	for name, q := range c.Bridge.Queues {
		if q.Policy != "" && q.Policy != "drop" && q.Policy != "block" {
			return fmt.Errorf("config: queue %s: unknown policy %q", name, q.Policy)
		}
	}
	return nil
}
