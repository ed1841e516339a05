// Package config loads board configuration. Every board has an embedded
// YAML default; a file on disk and BOARDCTL_* environment variables are
// overlaid on it.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"boardcode-go/errcode"
	"boardcode-go/x/mathx"
)

const (
	DefaultDevicePattern = "/dev/i2c-%d"

	envPrefix = "BOARDCTL_"
)

// EmbeddedConfigLookup allows overriding how board defaults are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

type Config struct {
	Board         string         `yaml:"board"`
	DevicePattern string         `yaml:"device_pattern"`
	Buses         BusesConfig    `yaml:"buses"`
	Fallback      FallbackConfig `yaml:"fallback"`
	RetainAll     bool           `yaml:"retain_all"`
	Logging       LoggingConfig  `yaml:"logging"`
	Trace         TraceConfig    `yaml:"trace"`
}

// BusesConfig selects which bus numbers are scanned. Fixed pins a single
// bus; otherwise First..Last are tried, Prefer first when set.
type BusesConfig struct {
	First  int  `yaml:"first"`
	Last   int  `yaml:"last"`
	Prefer *int `yaml:"prefer,omitempty"`
	Fixed  *int `yaml:"fixed,omitempty"`
}

// FallbackConfig forces a device onto Bus at Addr when nothing answers.
type FallbackConfig struct {
	Bus  *int   `yaml:"bus,omitempty"`
	Addr uint16 `yaml:"addr,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TraceConfig enables the CBOR bus trace when Path is set.
type TraceConfig struct {
	Path string `yaml:"path"`
}

// Boards lists the boards with an embedded default.
func Boards() []string {
	return []string{"e1", "e2", "e3", "s1"}
}

// Default returns the embedded configuration for board.
func Default(board string) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return nil, &errcode.E{C: errcode.NotFound, Op: "config", Msg: "no embedded config for board " + board}
	}
	cfg := baseConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing embedded config for %s", board)
	}
	cfg.Board = board
	return cfg, nil
}

// Load overlays the file at path (optional) on the embedded default of
// board. An empty board is taken from the file.
func Load(path, board string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		if board == "" {
			var head struct {
				Board string `yaml:"board"`
			}
			if err := yaml.Unmarshal(data, &head); err != nil {
				return nil, errors.Wrap(err, "parsing config file")
			}
			board = head.Board
		}
	}
	if v := os.Getenv(envPrefix + "BOARD"); board == "" && v != "" {
		board = v
	}
	board = strings.ToLower(board)

	cfg, err := Default(board)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config file")
		}
	}
	cfg.Board = board

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}

func baseConfig() *Config {
	return &Config{
		DevicePattern: DefaultDevicePattern,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "DEVICE_PATTERN"); v != "" {
		cfg.DevicePattern = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "TRACE"); v != "" {
		cfg.Trace.Path = v
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.DevicePattern == "" || !strings.Contains(c.DevicePattern, "%d") {
		errs = append(errs, "device_pattern must contain %d")
	}

	b := c.Buses
	if b.Fixed != nil {
		if !validBus(*b.Fixed) {
			errs = append(errs, "buses.fixed must be between 0 and 255")
		}
	} else {
		if !validBus(b.First) || !validBus(b.Last) {
			errs = append(errs, "buses.first and buses.last must be between 0 and 255")
		} else if b.First > b.Last {
			errs = append(errs, "buses.first must not exceed buses.last")
		}
		if b.Prefer != nil && !mathx.Between(*b.Prefer, b.First, b.Last) {
			errs = append(errs, "buses.prefer must lie within buses.first..buses.last")
		}
	}

	f := c.Fallback
	if f.Bus != nil && !validBus(*f.Bus) {
		errs = append(errs, "fallback.bus must be between 0 and 255")
	}
	if f.Addr != 0 && !mathx.Between(f.Addr, 0x03, 0x77) {
		errs = append(errs, "fallback.addr must be a 7-bit address between 0x03 and 0x77")
	}
	if (f.Bus == nil) != (f.Addr == 0) {
		errs = append(errs, "fallback.bus and fallback.addr must be set together")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, "logging.format must be console or json")
	}

	if len(errs) > 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: strings.Join(errs, "; ")}
	}
	return nil
}

func validBus(n int) bool { return mathx.Between(n, 0, 255) }
