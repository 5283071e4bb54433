package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/config"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/observability"
	"github.com/your-org/pitchview/internal/storage"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}
		// Tables go to stdout; keep logs quiet and readable on stderr.
		observability.SetupLogger("warn", "text")
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) lengthUnit() models.MetricUnit {
	cfg, err := c.ensureConfig()
	if err != nil {
		return models.UnitPixels
	}
	unit, err := models.ParseLengthUnit(cfg.Playback.DistanceUnit)
	if err != nil {
		return models.UnitPixels
	}
	return unit
}

func (c *commandContext) backendClient() (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
}

var errNoDatabase = errors.New("database is not configured (set database.host or PV_DB_HOST)")

func (c *commandContext) withDatabase(fn func(*storage.PostgresStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return errNoDatabase
	}
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// record fetches a record from the backend, falling back to the database
// mirror when one is configured.
func (c *commandContext) record(ctx context.Context, id string) (*models.HistoryRecord, error) {
	client, err := c.backendClient()
	if err != nil {
		return nil, err
	}
	rec, err := client.GetHistory(ctx, id)
	if err == nil {
		return rec, nil
	}
	cfg, _ := c.ensureConfig()
	if !cfg.Database.Enabled() {
		return nil, err
	}
	var mirrored *models.HistoryRecord
	if merr := c.withDatabase(func(db *storage.PostgresStore) error {
		var gerr error
		mirrored, gerr = db.GetRecord(ctx, id)
		return gerr
	}); merr != nil || mirrored == nil {
		return nil, err
	}
	return mirrored, nil
}
