package flasher

import (
	"io"
	"time"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// ProgressCallback is called after every row with the rows processed so far
// and the total (0 when the image size is unknown).
type ProgressCallback func(current, total int)

// Logger is the structured logger the programmer writes to. It is satisfied
// by hclog.Logger.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Delays are the fixed settle times of the protocol.
type Delays struct {
	Boot  time.Duration
	Row   time.Duration
	Apply time.Duration
	Reset time.Duration
}

// DefaultDelays returns the settle times the Wombat bootloader needs.
func DefaultDelays() Delays {
	return Delays{
		Boot:  protocol.BootSettle,
		Row:   protocol.RowSettle,
		Apply: protocol.ApplySettle,
		Reset: protocol.ResetSettle,
	}
}

// Config holds the programmer configuration.
type Config struct {
	Delays   Delays
	Report   io.Writer
	Progress ProgressCallback
	Logger   Logger
	Lock     *bus.Lock
}

func defaultConfig() Config {
	return Config{
		Delays: DefaultDelays(),
		Report: io.Discard,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithReport sets where human-readable progress lines are written.
func WithReport(w io.Writer) Option {
	return func(c *Config) {
		if w != nil {
			c.Report = w
		}
	}
}

// WithProgressCallback sets a callback tracking processed rows.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}

// WithLogger sets a structured logger.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithDelays overrides the settle delays.
func WithDelays(d Delays) Option {
	return func(c *Config) {
		c.Delays = d
	}
}

// WithLock makes the programmer hold l for the whole run.
func WithLock(l *bus.Lock) Option {
	return func(c *Config) {
		c.Lock = l
	}
}
