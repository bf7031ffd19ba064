package config

import "strings"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBusiness()
	c.normalizeQueue()
	c.normalizeWorker()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	dataDir, err := expandPath(c.Paths.DataDir)
	if err != nil {
		return err
	}
	c.Paths.DataDir = dataDir

	logDir, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	if strings.TrimSpace(c.Queue.PayloadSchemaDir) != "" {
		schemaDir, err := expandPath(c.Queue.PayloadSchemaDir)
		if err != nil {
			return err
		}
		c.Queue.PayloadSchemaDir = schemaDir
	}
	return nil
}

func (c *Config) normalizeBusiness() {
	units := make([]string, 0, len(c.Business.Units))
	seen := make(map[string]struct{}, len(c.Business.Units))
	for _, unit := range c.Business.Units {
		trimmed := strings.ToUpper(strings.TrimSpace(unit))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		units = append(units, trimmed)
	}
	c.Business.Units = units
}

func (c *Config) normalizeQueue() {
	if c.Queue.DefaultPriority == 0 {
		c.Queue.DefaultPriority = defaultPriority
	}
	if c.Queue.DefaultMaxAttempts <= 0 {
		c.Queue.DefaultMaxAttempts = defaultMaxAttempts
	}
	if c.Queue.DefaultLease <= 0 {
		c.Queue.DefaultLease = defaultLeaseSeconds
	}
}

func (c *Config) normalizeWorker() {
	queues := make([]string, 0, len(c.Worker.Queues))
	for _, queue := range c.Worker.Queues {
		if trimmed := strings.TrimSpace(queue); trimmed != "" {
			queues = append(queues, trimmed)
		}
	}
	c.Worker.Queues = queues

	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaultPollIntervalSeconds
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = defaultBatchSize
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = defaultConcurrency
	}
	if c.Worker.LeaseSeconds <= 0 {
		c.Worker.LeaseSeconds = defaultLeaseSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
