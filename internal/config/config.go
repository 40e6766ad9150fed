// ABOUTME: YAML configuration for the layercast server and player
// ABOUTME: Defaults are filled first; a config file and CLI flags override them
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

var ErrInvalidConfig = errors.New("invalid config")

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// QualityConfig names a ladder level by its format
type QualityConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Bits       int `yaml:"bits"`
	Channels   int `yaml:"channels"`
}

// Quality resolves the highest ladder level within the configured format.
// An empty section means the top of the ladder.
func (q QualityConfig) Quality() audio.Quality {
	if q == (QualityConfig{}) {
		return audio.HighestQuality()
	}
	return audio.QualityFor(q.SampleRate, q.Bits, q.Channels)
}

// LimitsConfig holds bandwidth ceilings in bytes per second, 0 meaning none
type LimitsConfig struct {
	Total  int    `yaml:"total"`
	Layers [3]int `yaml:"layers"`
}

func (l LimitsConfig) Limits() layered.Limits {
	return layered.Limits{Total: l.Total, Layers: l.Layers}
}

// AdaptationConfig tunes loss driven ceiling changes
type AdaptationConfig struct {
	Enabled      bool    `yaml:"enabled"`
	DecreaseLoss float64 `yaml:"decrease_loss"`
	IncreaseLoss float64 `yaml:"increase_loss"`
}

// ServerConfig configures layercast-server
type ServerConfig struct {
	Name            string           `yaml:"name"`
	RTPPort         int              `yaml:"rtp_port"`
	StatusPort      int              `yaml:"status_port"`
	Source          string           `yaml:"source"`
	Loop            bool             `yaml:"loop"`
	MaxPacketSize   int              `yaml:"max_packet_size"`
	DecrementSteps  int              `yaml:"decrement_steps"`
	ReceiverTimeout time.Duration    `yaml:"receiver_timeout"`
	MDNS            bool             `yaml:"mdns"`
	TUI             bool             `yaml:"tui"`
	Quality         QualityConfig    `yaml:"quality"`
	Limits          LimitsConfig     `yaml:"limits"`
	Adaptation      AdaptationConfig `yaml:"adaptation"`
	Logging         LoggingConfig    `yaml:"logging"`
}

// PlayerConfig configures the layercast player
type PlayerConfig struct {
	Name            string        `yaml:"name"`
	Server          string        `yaml:"server"`
	FrameBufferSize int           `yaml:"frame_buffer_size"`
	TimerPeriod     time.Duration `yaml:"timer_period"`
	ReportInterval  time.Duration `yaml:"report_interval"`
	Volume          int           `yaml:"volume"`
	TUI             bool          `yaml:"tui"`
	Logging         LoggingConfig `yaml:"logging"`
}

// DefaultServerConfig returns the server defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Name:            "layercast",
		RTPPort:         5004,
		StatusPort:      8927,
		MaxPacketSize:   layered.DefaultMaxPacketSize,
		ReceiverTimeout: 5 * time.Second,
		MDNS:            true,
		Adaptation: AdaptationConfig{
			Enabled:      true,
			DecreaseLoss: 0.10,
			IncreaseLoss: 0.02,
		},
		Logging: LoggingConfig{Level: "info", File: "layercast-server.log"},
	}
}

// DefaultPlayerConfig returns the player defaults
func DefaultPlayerConfig() *PlayerConfig {
	return &PlayerConfig{
		Name:            "layercast-player",
		FrameBufferSize: layered.FrameBufferSize,
		TimerPeriod:     layered.TimerPeriod,
		ReportInterval:  time.Second,
		Volume:          100,
		TUI:             true,
		Logging:         LoggingConfig{Level: "info", File: "layercast-player.log"},
	}
}

// LoadServer reads path over the defaults. An empty path returns the defaults.
func LoadServer(path string) (*ServerConfig, error) {
	conf := DefaultServerConfig()
	if err := load(path, conf); err != nil {
		return nil, err
	}
	return conf, conf.Validate()
}

// LoadPlayer reads path over the defaults. An empty path returns the defaults.
func LoadPlayer(path string) (*PlayerConfig, error) {
	conf := DefaultPlayerConfig()
	if err := load(path, conf); err != nil {
		return nil, err
	}
	return conf, conf.Validate()
}

func load(path string, out interface{}) error {
	if path == "" {
		return nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.RTPPort <= 0 || c.RTPPort > 65535 {
		return fmt.Errorf("%w: rtp_port %d", ErrInvalidConfig, c.RTPPort)
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("%w: status_port %d", ErrInvalidConfig, c.StatusPort)
	}
	if c.MaxPacketSize <= layered.HeaderSize+2 {
		return fmt.Errorf("%w: max_packet_size %d", ErrInvalidConfig, c.MaxPacketSize)
	}
	if c.DecrementSteps < 0 {
		return fmt.Errorf("%w: decrement_steps %d", ErrInvalidConfig, c.DecrementSteps)
	}
	if c.ReceiverTimeout <= 0 {
		return fmt.Errorf("%w: receiver_timeout %s", ErrInvalidConfig, c.ReceiverTimeout)
	}
	if c.Adaptation.IncreaseLoss > c.Adaptation.DecreaseLoss {
		return fmt.Errorf("%w: increase_loss above decrease_loss", ErrInvalidConfig)
	}
	return validateLogging(c.Logging)
}

func (c *PlayerConfig) Validate() error {
	if c.FrameBufferSize < 1 {
		return fmt.Errorf("%w: frame_buffer_size %d", ErrInvalidConfig, c.FrameBufferSize)
	}
	if c.TimerPeriod <= 0 || c.ReportInterval <= 0 {
		return fmt.Errorf("%w: timer_period and report_interval must be positive", ErrInvalidConfig)
	}
	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("%w: volume %d", ErrInvalidConfig, c.Volume)
	}
	return validateLogging(c.Logging)
}

func validateLogging(l LoggingConfig) error {
	if l.Level == "" {
		return nil
	}
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LogLevel parses the configured level, falling back to info
func (l LoggingConfig) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
