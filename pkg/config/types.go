package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent graphstack configuration stored as
// config.toml in the .graphstack/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Model       ModelConfig       `toml:"model"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Import      ImportConfig      `toml:"import"`
	API         APIConfig         `toml:"api"`
}

// StorageConfig selects and locates the durable store.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "inmemory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ModelConfig locates the TOML model definition.
type ModelConfig struct {
	Path string `toml:"path,omitempty"`
}

// CoordinatorConfig sizes the save queues.
type CoordinatorConfig struct {
	SaveQueueSize  uint `toml:"save_queue_size,omitempty"`
	AsyncQueueSize uint `toml:"async_queue_size,omitempty"`
}

// EventStreamConfig holds save event publishing settings.
type EventStreamConfig struct {
	// Provider is "none" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// ImportConfig holds settings for the document importer.
type ImportConfig struct {
	WatchDir string `toml:"watch_dir,omitempty"`
}

// APIConfig holds settings for the HTTP API served by "graphstack serve".
type APIConfig struct {
	Listen   string `toml:"listen,omitempty"`
	ReadOnly bool   `toml:"read_only,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case DriverSQLite, DriverPostgres, DriverInMemory:
				c.Storage.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.driver: %q (expected %s, %s or %s)",
					v, DriverSQLite, DriverPostgres, DriverInMemory)
			}
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"model.path": {
		get: func(c *Config) string { return c.Model.Path },
		set: func(c *Config, v string) error { c.Model.Path = v; return nil },
	},
	"coordinator.save_queue_size": uintKey("coordinator.save_queue_size",
		func(c *Config) *uint { return &c.Coordinator.SaveQueueSize }),
	"coordinator.async_queue_size": uintKey("coordinator.async_queue_size",
		func(c *Config) *uint { return &c.Coordinator.AsyncQueueSize }),
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNone, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (expected %s or %s)",
					v, EventStreamNone, EventStreamKafka)
			}
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.EventStream.Brokers = append(c.EventStream.Brokers, b)
				}
			}
			return nil
		},
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"import.watch_dir": {
		get: func(c *Config) string { return c.Import.WatchDir },
		set: func(c *Config, v string) error { c.Import.WatchDir = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"api.read_only": boolKey("api.read_only", func(c *Config) *bool { return &c.API.ReadOnly }),
}
