package storage

import (
	"strings"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

var journalDrivers = map[string]func(*StorageConfig) Journal{
	"sqlite":     func(c *StorageConfig) Journal { return NewSQLiteJournal(c) },
	"postgres":   func(c *StorageConfig) Journal { return NewPostgresJournal(c) },
	"postgresql": func(c *StorageConfig) Journal { return NewPostgresJournal(c) },
}

// NewJournal creates a journal for the configured database
func NewJournal(cfg *config.StorageConfig) (Journal, error) {
	open, ok := journalDrivers[strings.ToLower(cfg.Type)]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported journal database", cfg.Type)
	}

	journalConfig := &StorageConfig{
		Type:             strings.ToLower(cfg.Type),
		ConnectionString: cfg.ConnectionString,
		MaxConnections:   cfg.MaxConnections,
		MaxIdleTime:      cfg.MaxIdleTime,
	}
	if journalConfig.MaxConnections <= 0 {
		journalConfig.MaxConnections = 1
	}
	return open(journalConfig), nil
}

// ValidateStorageConfig checks the journal settings before connecting
func ValidateStorageConfig(cfg *config.StorageConfig) error {
	if _, ok := journalDrivers[strings.ToLower(cfg.Type)]; !ok {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported journal database",
			"expected sqlite or postgres, got "+cfg.Type)
	}
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Journal connection string is required")
	}
	if cfg.MaxConnections < 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Journal max connections must not be negative")
	}
	return nil
}
