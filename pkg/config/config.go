// Package config provides configuration handling for the Lurker daemon.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/events"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/hook"
	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
	"github.com/baiwei0427/Lurker/pkg/tcp"
)

// Config represents the complete daemon configuration.
type Config struct {
	// Filter selects the packets that reach the pipeline.
	Filter core.FilterConfig `json:"filter" yaml:"filter"`

	// Table sizes the flow table.
	Table core.TableConfig `json:"table" yaml:"table"`

	// Policy holds the window policy constants.
	Policy core.PolicyConfig `json:"policy" yaml:"policy"`

	// Queue selects the NFQUEUE.
	Queue hook.QueueConfig `json:"queue" yaml:"queue"`

	// Processor sizes the worker pool.
	Processor ProcessorConfig `json:"processor" yaml:"processor"`

	// Admin configures the HTTP admin server.
	Admin AdminConfig `json:"admin" yaml:"admin"`

	// Events configures the event sinks.
	Events EventsConfig `json:"events" yaml:"events"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ProcessorConfig sizes the packet worker pool.
type ProcessorConfig struct {
	Workers int `json:"workers" yaml:"workers"`

	// QueueCap is the queue length of each worker.
	QueueCap int `json:"queue_cap" yaml:"queueCap"`
}

// AdminConfig configures the admin server.
type AdminConfig struct {
	// Listen is the admin listen address. Empty disables the server.
	Listen string `json:"listen" yaml:"listen"`
}

// EventsConfig configures the event sinks.
type EventsConfig struct {
	NATS NATSConfig `json:"nats" yaml:"nats"`
}

// NATSConfig configures the NATS publisher. Empty URL disables it.
type NATSConfig struct {
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// JSON selects the JSON formatter.
	JSON bool `json:"json" yaml:"json"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"max_size" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"max_backups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"max_age" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Filter: core.FilterConfig{
			Port: 5001,
		},
		Table: core.TableConfig{
			Bits: 8,
		},
		Policy: pipeline.DefaultPolicy(),
		Queue: hook.QueueConfig{
			Num:    0,
			MaxLen: 1024,
		},
		Processor: ProcessorConfig{
			Workers:  4,
			QueueCap: 1000,
		},
		Admin: AdminConfig{
			Listen: "127.0.0.1:9105",
		},
		Events: EventsConfig{
			NATS: NATSConfig{Subject: events.DefaultSubject},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format based on extension
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

func envUint(name string, bits int, set func(uint64)) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	n, err := strconv.ParseUint(val, 10, bits)
	if err != nil {
		logging.Warnf("Ignoring %s=%q: %v", name, val, err)
		return
	}
	set(n)
}

func envInt(name string, set func(int)) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		logging.Warnf("Ignoring %s=%q: %v", name, val, err)
		return
	}
	set(n)
}

func envString(name string, set func(string)) {
	if val, ok := os.LookupEnv(name); ok {
		set(val)
	}
}

// LoadFromEnv overrides config from LURKER_* environment variables.
func LoadFromEnv(config *Config) {
	// Filter config
	envString("LURKER_FILTER_INTERFACE", func(v string) { config.Filter.Interface = v })
	envUint("LURKER_FILTER_PORT", 16, func(v uint64) { config.Filter.Port = uint16(v) })

	// Table config
	envUint("LURKER_TABLE_BITS", 8, func(v uint64) { config.Table.Bits = uint8(v) })
	envInt("LURKER_TABLE_MAX_ENTRIES", func(v int) { config.Table.MaxEntries = v })

	// Policy config
	envUint("LURKER_POLICY_INITIAL_CWND", 16, func(v uint64) { config.Policy.InitialCwnd = uint16(v) })
	envUint("LURKER_POLICY_DEFAULT_MSS", 16, func(v uint64) { config.Policy.DefaultMSS = uint16(v) })
	envUint("LURKER_POLICY_DEFAULT_WINDOW_SCALE", 8, func(v uint64) { config.Policy.DefaultWindowScale = uint8(v) })

	// Queue and processor config
	envUint("LURKER_QUEUE_NUM", 16, func(v uint64) { config.Queue.Num = uint16(v) })
	envUint("LURKER_QUEUE_MAX_LEN", 32, func(v uint64) { config.Queue.MaxLen = uint32(v) })
	envInt("LURKER_PROCESSOR_WORKERS", func(v int) { config.Processor.Workers = v })
	envInt("LURKER_PROCESSOR_QUEUE_CAP", func(v int) { config.Processor.QueueCap = v })

	// Admin and events config
	envString("LURKER_ADMIN_LISTEN", func(v string) { config.Admin.Listen = v })
	envString("LURKER_NATS_URL", func(v string) { config.Events.NATS.URL = v })
	envString("LURKER_NATS_SUBJECT", func(v string) { config.Events.NATS.Subject = v })

	// Logging config
	envString("LURKER_LOG_LEVEL", func(v string) { config.Logging.Level = v })
	envString("LURKER_LOG_FILE", func(v string) { config.Logging.File = v })
	if val := os.Getenv("LURKER_LOG_JSON"); val != "" {
		config.Logging.JSON = val == "true" || val == "1"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Table.Bits > flow.MaxBits {
		return fmt.Errorf("invalid table bits %d (max %d)", c.Table.Bits, flow.MaxBits)
	}
	if c.Table.MaxEntries < 0 {
		return fmt.Errorf("invalid table max entries: %d", c.Table.MaxEntries)
	}
	if c.Policy.InitialCwnd == 0 {
		return fmt.Errorf("policy initial cwnd must be positive")
	}
	if c.Policy.DefaultMSS == 0 {
		return fmt.Errorf("policy default MSS must be positive")
	}
	if c.Policy.DefaultWindowScale > tcp.MaxWindowScale {
		return fmt.Errorf("invalid policy default window scale: %d", c.Policy.DefaultWindowScale)
	}
	if c.Processor.Workers < 0 || c.Processor.QueueCap < 0 {
		return fmt.Errorf("invalid processor sizing: workers=%d queueCap=%d", c.Processor.Workers, c.Processor.QueueCap)
	}
	if c.Admin.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Listen); err != nil {
			return fmt.Errorf("invalid admin listen address %q: %w", c.Admin.Listen, err)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	logging.SetJSON(c.Logging.JSON)

	if c.Logging.File != "" {
		err := logging.EnableFileLogging(
			c.Logging.File,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
