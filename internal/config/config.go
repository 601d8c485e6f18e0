// Package config holds the tool settings shared by all commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SW8B_"

// Transports
const (
	TransportI2C    = "i2c"
	TransportSerial = "serial"
)

// Page store backends
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config is the resolved tool configuration.
type Config struct {
	Transport string
	I2CBus    int
	Address   uint8
	Port      string
	Baud      int

	CacheDir        string
	Backend         string
	EnforceChecksum bool

	LogLevel string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Transport:       TransportI2C,
		I2CBus:          1,
		Address:         protocol.DefaultAddress,
		Baud:            protocol.DefaultBaudRate,
		CacheDir:        filepath.Join(os.TempDir(), "sw8b-flasher"),
		Backend:         BackendFile,
		EnforceChecksum: true,
		LogLevel:        "info",
	}
}

// LoadEnv applies SW8B_* environment overrides on top of c.
func (c *Config) LoadEnv() error {
	return c.load(os.LookupEnv)
}

func (c *Config) load(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("TRANSPORT", &c.Transport)
	str("PORT", &c.Port)
	str("CACHE_DIR", &c.CacheDir)
	str("BACKEND", &c.Backend)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup(EnvPrefix + "I2C_BUS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sI2C_BUS: %w", EnvPrefix, err)
		}
		c.I2CBus = n
	}
	if v, ok := lookup(EnvPrefix + "ADDRESS"); ok {
		n, err := ParseAddress(v)
		if err != nil {
			return fmt.Errorf("%sADDRESS: %w", EnvPrefix, err)
		}
		c.Address = n
	}
	if v, ok := lookup(EnvPrefix + "BAUD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBAUD: %w", EnvPrefix, err)
		}
		c.Baud = n
	}
	if v, ok := lookup(EnvPrefix + "ENFORCE_CHECKSUM"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sENFORCE_CHECKSUM: %w", EnvPrefix, err)
		}
		c.EnforceChecksum = b
	}
	return nil
}

// BindFlags registers the settings on fs with c's values as defaults.
// Parsed values are written back to c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Transport, "transport", c.Transport, "Bus to the device: i2c or serial")
	fs.IntVar(&c.I2CBus, "i2c-bus", c.I2CBus, "I2C bus number (/dev/i2c-N)")
	fs.Uint8Var(&c.Address, "address", c.Address, "7-bit I2C address of the device")
	fs.StringVarP(&c.Port, "port", "p", c.Port, "Serial port (auto-detect if not specified)")
	fs.IntVarP(&c.Baud, "baud", "b", c.Baud, "Baud rate")
	fs.StringVar(&c.CacheDir, "cache-dir", c.CacheDir, "Directory holding the page store")
	fs.StringVar(&c.Backend, "backend", c.Backend, "Page store backend: file, badger or memory")
	fs.BoolVar(&c.EnforceChecksum, "enforce-checksum", c.EnforceChecksum, "Skip HEX records with a bad checksum")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: trace, debug, info, warn, error")
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportI2C, TransportSerial:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.Backend {
	case BackendFile, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Address > 0x7F {
		return fmt.Errorf("address 0x%02X is not a 7-bit I2C address", c.Address)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	return nil
}

// ParseAddress parses a decimal or 0x-prefixed hex bus address.
func ParseAddress(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}
