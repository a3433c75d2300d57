package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/common"
	"github.com/ternarybob/cursus/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	entity   interfaces.EntityStorage
	schedule interfaces.ScheduleStorage
	record   interfaces.RecordStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		entity:   NewEntityStorage(db, logger),
		schedule: NewScheduleStorage(db, logger),
		record:   NewRecordStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// EntityStorage returns the entity storage interface
func (m *Manager) EntityStorage() interfaces.EntityStorage {
	return m.entity
}

// ScheduleStorage returns the schedule storage interface
func (m *Manager) ScheduleStorage() interfaces.ScheduleStorage {
	return m.schedule
}

// RecordStorage returns the record storage interface
func (m *Manager) RecordStorage() interfaces.RecordStorage {
	return m.record
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
