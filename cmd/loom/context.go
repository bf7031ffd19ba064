package main

import (
	"strings"
	"sync"

	"loom/internal/config"
	"loom/internal/contacts"
	"loom/internal/ingestion"
	"loom/internal/store"
	"loom/internal/workqueue"
)

// commandContext lazily shares config and the open store across subcommands.
type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	storeOnce sync.Once
	store     *store.Store
	storeErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureStore() (*store.Store, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	c.storeOnce.Do(func() {
		c.store, c.storeErr = store.Open(cfg)
	})
	return c.store, cfg, c.storeErr
}

func (c *commandContext) workQueue() (*workqueue.Queue, error) {
	st, cfg, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	return workqueue.New(st, cfg)
}

func (c *commandContext) tracker() (*ingestion.Tracker, error) {
	st, cfg, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	return ingestion.New(st, cfg)
}

func (c *commandContext) directory() (*contacts.Directory, error) {
	st, cfg, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	return contacts.New(st, cfg)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}
