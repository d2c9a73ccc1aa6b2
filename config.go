package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	// BindAddress is the address the HTTP server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// SimPIN is the SIM card PIN code
	SimPIN string

	// DatabasePath is the SQLite file the Store opens.
	DatabasePath string
	// EncryptionKey is the 32-byte AES-256 key, base64-encoded in config.
	EncryptionKey []byte

	// GNSSEnabled turns on the modem's GNSS reporting commands.
	GNSSEnabled bool
	// GNSSReportInterval is the seconds between +CGNSURC reports.
	GNSSReportInterval int

	// WebhookURLs is a comma-separated list of webhook endpoints that
	// receive every event kind. Per-kind filtering and headers are not
	// exposed at this config layer; callers needing that wire
	// webhook.Target values directly.
	WebhookURLs []string

	// ListenerEnabled turns on the /events WebSocket live-listener endpoint.
	ListenerEnabled bool
}

// ConfigOption is a function that modifies a Config.
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order.
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values.
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.DatabasePath = "sms-gateway.db"
		c.GNSSReportInterval = 30
		return nil
	}
}

// WithEnv loads configuration from environment variables.
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.SimPIN = simPIN
		}

		if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
			c.DatabasePath = dbPath
		}

		if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
			decoded, err := base64.StdEncoding.DecodeString(key)
			if err != nil {
				return fmt.Errorf("config: ENCRYPTION_KEY is not valid base64: %w", err)
			}
			c.EncryptionKey = decoded
		}

		if gnss := os.Getenv("GNSS_ENABLED"); gnss != "" {
			c.GNSSEnabled = gnss == "true" || gnss == "1"
		}

		if interval := os.Getenv("GNSS_REPORT_INTERVAL"); interval != "" {
			if n, err := strconv.Atoi(interval); err == nil {
				c.GNSSReportInterval = n
			}
		}

		if hooks := os.Getenv("WEBHOOK_URLS"); hooks != "" {
			c.WebhookURLs = strings.Split(hooks, ",")
		}

		if listener := os.Getenv("LISTENER_ENABLED"); listener != "" {
			c.ListenerEnabled = listener == "true" || listener == "1"
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags.
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "sim-pin":
				c.SimPIN = f.Value.String()
			case "database-path":
				c.DatabasePath = f.Value.String()
			case "gnss-enabled":
				c.GNSSEnabled = f.Value.String() == "true"
			case "listener-enabled":
				c.ListenerEnabled = f.Value.String() == "true"
			}
		})
		return nil
	}
}
