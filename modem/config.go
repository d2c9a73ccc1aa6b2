package modem

import (
	"log/slog"
	"time"
)

// Config holds everything required to bring up a Modem: the transport,
// SIM credentials, protocol timeouts, and the core control-plane
// parameters from spec.md §6 (command channel capacity, GNSS, power
// control).
type Config struct {
	Dialer Dialer
	SimPIN string

	MinSendInterval time.Duration
	MaxRetries      int
	EchoOn          bool
	ATTimeout       time.Duration
	InitTimeout     time.Duration

	// ReadBufferSize bounds each individual Read call's buffer.
	ReadBufferSize int
	// LineBufferSize bounds the LineBuffer's retained, unterminated bytes.
	LineBufferSize int
	// CommandChannelCapacity bounds the Sender's outbound command queue.
	CommandChannelCapacity int

	GNSSEnabled        bool
	GNSSReportInterval int

	PowerController          PowerController
	PowerControlRepowerOnFail bool

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.MinSendInterval == 0 {
		c.MinSendInterval = time.Minute / 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 4096
	}
	if c.LineBufferSize == 0 {
		c.LineBufferSize = 4096
	}
	if c.CommandChannelCapacity == 0 {
		c.CommandChannelCapacity = 32
	}
	if c.PowerController == nil {
		c.PowerController = NoopPowerController{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder builds a Config through a fluent interface, matching the
// style main.go already expects of this package.
type ConfigBuilder struct {
	cfg Config
}

// NewConfigBuilder returns an empty ConfigBuilder.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.cfg.Dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.cfg.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.cfg.MaxRetries = n
	return b
}

func (b *ConfigBuilder) WithMinSendInterval(d time.Duration) *ConfigBuilder {
	b.cfg.MinSendInterval = d
	return b
}

func (b *ConfigBuilder) WithCommandChannelCapacity(n int) *ConfigBuilder {
	b.cfg.CommandChannelCapacity = n
	return b
}

func (b *ConfigBuilder) WithReadBufferSize(n int) *ConfigBuilder {
	b.cfg.ReadBufferSize = n
	return b
}

func (b *ConfigBuilder) WithLineBufferSize(n int) *ConfigBuilder {
	b.cfg.LineBufferSize = n
	return b
}

func (b *ConfigBuilder) WithGNSS(enabled bool, reportInterval int) *ConfigBuilder {
	b.cfg.GNSSEnabled = enabled
	b.cfg.GNSSReportInterval = reportInterval
	return b
}

func (b *ConfigBuilder) WithPowerControl(pc PowerController, repowerOnFail bool) *ConfigBuilder {
	b.cfg.PowerController = pc
	b.cfg.PowerControlRepowerOnFail = repowerOnFail
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.cfg.Logger = l
	return b
}

func (b *ConfigBuilder) WithEchoOn(on bool) *ConfigBuilder {
	b.cfg.EchoOn = on
	return b
}

// Build applies defaults and validates the accumulated configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	cfg := b.cfg
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
