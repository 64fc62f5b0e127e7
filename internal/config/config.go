// Package config loads the emulator configuration from emulator.yaml and
// RECEIPT_EMULATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"

	"github.com/thereceipt/receipt-emulator/internal/emulator"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// RECEIPT_EMULATOR_LISTENER_ADDRESS
const EnvPrefix = "RECEIPT_EMULATOR"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Listener ListenerConfig `mapstructure:"listener"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Paper    PaperConfig    `mapstructure:"paper"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig is the HTTP API
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ListenerConfig is the raw TCP print port
type ListenerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// SerialConfig is the optional (virtual) COM port source
type SerialConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Device       string        `mapstructure:"device"`
	Baud         int           `mapstructure:"baud"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// PaperConfig describes the emulated paper roll and print head
type PaperConfig struct {
	DotsPerInch  float64  `mapstructure:"dpi"`
	PaperWidthMM float64  `mapstructure:"paper_width_mm"`
	PrintWidthMM float64  `mapstructure:"print_width_mm"`
	LineSpacing  int      `mapstructure:"line_spacing"`
	CellWidth    int      `mapstructure:"cell_width"`
	CellHeight   int      `mapstructure:"cell_height"`
	FontFace     string   `mapstructure:"font_face"`
	FontDirs     []string `mapstructure:"font_dirs"`
}

// DecoderConfig controls byte stream decoding
type DecoderConfig struct {
	Encoding  string `mapstructure:"encoding"`
	CarryOver bool   `mapstructure:"carry_over"`
}

// QueueConfig controls the feed queue
type QueueConfig struct {
	MaxJobs int `mapstructure:"max_jobs"`
}

// CaptureConfig controls raw input capture
type CaptureConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	validLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validFormats   = []string{"json", "console"}
	validEncodings = []string{"euc-kr", "cp949", "cp437", "windows-1252", "utf-8"}
)

// Load loads configuration from file and environment variables.
// An explicit path must exist; without one, emulator.yaml is searched in the
// working directory and $HOME/.config/receipt-emulator, and defaults apply
// when it is not found.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("emulator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "receipt-emulator"))
		}
	}

	// Environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "12212")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("listener.enabled", true)
	v.SetDefault("listener.address", ":9100")
	v.SetDefault("listener.idle_timeout", "0s")

	v.SetDefault("serial.enabled", false)
	v.SetDefault("serial.device", "")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.scan_interval", "2s")

	profile := emulator.DefaultPaperProfile()
	primary := profile.Fonts[emulator.PrimaryFont]
	v.SetDefault("paper.dpi", profile.DotsPerInch)
	v.SetDefault("paper.paper_width_mm", profile.PaperWidthMM)
	v.SetDefault("paper.print_width_mm", profile.PrintWidthMM)
	v.SetDefault("paper.line_spacing", profile.DefaultLineSpacing)
	v.SetDefault("paper.cell_width", primary.CellWidth)
	v.SetDefault("paper.cell_height", primary.CellHeight)
	v.SetDefault("paper.font_face", primary.DisplayFace)
	v.SetDefault("paper.font_dirs", []string{})

	v.SetDefault("decoder.encoding", "euc-kr")
	v.SetDefault("decoder.carry_over", false)

	v.SetDefault("queue.max_jobs", 500)

	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.dir", "./captures")
	v.SetDefault("capture.max_entries", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Enabled && config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Listener.Enabled && config.Listener.Address == "" {
		return fmt.Errorf("listener.address is required")
	}
	if config.Serial.Enabled && config.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive")
	}
	if config.Queue.MaxJobs < 1 {
		return fmt.Errorf("queue.max_jobs must be at least 1")
	}
	if config.Capture.Enabled && config.Capture.Dir == "" {
		return fmt.Errorf("capture.dir is required")
	}

	if !contains(validEncodings, strings.ToLower(config.Decoder.Encoding)) {
		return fmt.Errorf("decoder.encoding must be one of: %v", validEncodings)
	}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	if !contains(validFormats, config.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	if err := config.Profile().Validate(); err != nil {
		return fmt.Errorf("paper: %w", err)
	}

	return nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Profile builds the paper profile. Both printer fonts share the configured
// cell, as on the default 80mm head.
func (c *Config) Profile() emulator.PaperProfile {
	cell := func(id emulator.FontID) emulator.FontMetrics {
		return emulator.FontMetrics{
			ID:          id,
			CellWidth:   c.Paper.CellWidth,
			CellHeight:  c.Paper.CellHeight,
			DisplayFace: c.Paper.FontFace,
		}
	}

	return emulator.PaperProfile{
		DotsPerInch:        c.Paper.DotsPerInch,
		PaperWidthMM:       c.Paper.PaperWidthMM,
		PrintWidthMM:       c.Paper.PrintWidthMM,
		DefaultLineSpacing: c.Paper.LineSpacing,
		Fonts: map[emulator.FontID]emulator.FontMetrics{
			emulator.FontA: cell(emulator.FontA),
			emulator.FontB: cell(emulator.FontB),
		},
	}
}

// TextEncoding resolves decoder.encoding
func (c *Config) TextEncoding() encoding.Encoding {
	switch strings.ToLower(c.Decoder.Encoding) {
	case "cp437":
		return charmap.CodePage437
	case "windows-1252":
		return charmap.Windows1252
	case "utf-8":
		return unicode.UTF8
	default:
		return korean.EUCKR
	}
}

// GetServerAddr returns the API server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
