package config

const (
	defaultDataDir = "~/.local/share/loom"
	defaultLogDir  = "~/.local/share/loom/logs"

	defaultPriority     = 100
	defaultMaxAttempts  = 3
	defaultLeaseSeconds = 300

	defaultStaleStartedAfterHours = 24

	defaultPollIntervalSeconds = 5
	defaultBatchSize           = 1
	defaultConcurrency         = 2

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

var defaultUnits = []string{"CC", "ACS"}

// Default returns the repository default configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Business: Business{
			Units: append([]string(nil), defaultUnits...),
		},
		Queue: Queue{
			DefaultPriority:    defaultPriority,
			DefaultMaxAttempts: defaultMaxAttempts,
			DefaultLease:       defaultLeaseSeconds,
		},
		Ingestion: Ingestion{
			StaleStartedAfterHours: defaultStaleStartedAfterHours,
		},
		Worker: Worker{
			PollInterval: defaultPollIntervalSeconds,
			BatchSize:    defaultBatchSize,
			Concurrency:  defaultConcurrency,
			LeaseSeconds: defaultLeaseSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
