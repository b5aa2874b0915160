package config

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverInMemory = "inmemory"
)

// Event stream providers.
const (
	EventStreamNone  = "none"
	EventStreamKafka = "kafka"
)

const (
	defaultDriver         = DriverSQLite
	defaultSaveQueueSize  = 256
	defaultAsyncQueueSize = 64

	defaultEventStreamProvider = EventStreamNone
	defaultEventStreamTopic    = "graphstack.saves"

	defaultAPIListen = ":8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultDriver,
		},
		Coordinator: CoordinatorConfig{
			SaveQueueSize:  defaultSaveQueueSize,
			AsyncQueueSize: defaultAsyncQueueSize,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}
