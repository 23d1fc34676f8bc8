// Package config loads the driver settings from a TOML file and the environment.
//
// Example file:
//
//	[serial]
//	baudrate = 9600
//	parity = "none"
//	readtimeout = "100ms"
//	resetdelay = "200ms"
//
//	[session]
//	skippps = false
//	verifychecksum = true
//
//	[log]
//	level = "info"
//
// Environment variables override the file: UICC_BAUD_RATE, UICC_READ_TIMEOUT,
// UICC_RESET_DELAY and UICC_LOG_LEVEL. UICC_DEBUG set to anything but "" or "0"
// forces the debug level.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gregLibert/uicc/pkg/transport"
)

// Duration is a time.Duration written as "100ms", "1s"...
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// SerialConfig holds the serial line settings.
type SerialConfig struct {
	BaudRate    int      `toml:"baudrate"`
	Parity      string   `toml:"parity"`
	ReadTimeout Duration `toml:"readtimeout"`
	ResetDelay  Duration `toml:"resetdelay"`
}

// SessionConfig holds the handshake settings.
type SessionConfig struct {
	SkipPPS        bool `toml:"skippps"`
	VerifyChecksum bool `toml:"verifychecksum"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Config holds all driver configuration.
type Config struct {
	Serial  SerialConfig  `toml:"serial"`
	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Serial: SerialConfig{
			BaudRate:    transport.DefaultBaudRate,
			Parity:      "none",
			ReadTimeout: Duration{transport.DefaultReadTimeout},
			ResetDelay:  Duration{transport.DefaultResetDelay},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file at path over the defaults, then applies the environment.
// An empty path skips the file.
func Load(path string) (Config, error) {
	conf := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &conf)
		if err != nil {
			return conf, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return conf, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
		}
	}

	if err := conf.applyEnv(); err != nil {
		return conf, err
	}
	return conf, conf.validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("UICC_BAUD_RATE"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UICC_BAUD_RATE: %w", err)
		}
		c.Serial.BaudRate = baud
	}

	for _, env := range []struct {
		name string
		dst  *Duration
	}{
		{"UICC_READ_TIMEOUT", &c.Serial.ReadTimeout},
		{"UICC_RESET_DELAY", &c.Serial.ResetDelay},
	} {
		v := os.Getenv(env.name)
		if v == "" {
			continue
		}
		if err := env.dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", env.name, err)
		}
	}

	if v := os.Getenv("UICC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("UICC_DEBUG"); v != "" && v != "0" {
		c.Log.Level = "debug"
	}
	return nil
}

func (c Config) validate() error {
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.BaudRate)
	}
	if c.Serial.ReadTimeout.Duration <= 0 {
		return fmt.Errorf("invalid read timeout %s", c.Serial.ReadTimeout)
	}
	if c.Serial.ResetDelay.Duration < 0 {
		return fmt.Errorf("invalid reset delay %s", c.Serial.ResetDelay)
	}
	if _, err := transport.ParseParity(c.Serial.Parity); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SerialConfig converts the serial section for transport.OpenSerial.
func (c Config) SerialConfig(logger *slog.Logger) (transport.SerialConfig, error) {
	parity, err := transport.ParseParity(c.Serial.Parity)
	if err != nil {
		return transport.SerialConfig{}, err
	}
	return transport.SerialConfig{
		BaudRate:    c.Serial.BaudRate,
		Parity:      parity,
		ReadTimeout: c.Serial.ReadTimeout.Duration,
		ResetDelay:  c.Serial.ResetDelay.Duration,
		Logger:      logger,
	}, nil
}

// SlogLevel maps Level ("debug", "info", "warn", "error") to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
