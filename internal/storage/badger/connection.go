package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB owns one badgerhold store. All storage types in this package
// share a single connection through it.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens the store at config.Path, wiping any existing data
// first when reset_on_startup is set.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if err := os.RemoveAll(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Could not remove existing store")
		} else {
			logger.Debug().Str("path", config.Path).Msg("Removed existing store (reset_on_startup)")
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // arbor is the only logging surface

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", config.Path, err)
	}
	logger.Debug().Str("path", config.Path).Msg("Store opened")

	return &BadgerDB{store: store, logger: logger, config: config}, nil
}

// Store returns the underlying badgerhold store
func (db *BadgerDB) Store() *badgerhold.Store {
	return db.store
}

func (db *BadgerDB) Close() error {
	if db.store == nil {
		return nil
	}
	db.logger.Debug().Msg("Closing store")
	return db.store.Close()
}
