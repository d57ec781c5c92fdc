package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Ledger() Ledger
	Job() Job
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db     *gorm.DB
	ledger Ledger
	job    Job
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		ledger: NewLedgerStore(db),
		job:    NewJobStore(db),
		db:     db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Ledger() Ledger {
	return s.ledger
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) InitialMigration() error {
	ctx := context.Background()
	if err := s.Ledger().InitialMigration(ctx); err != nil {
		return err
	}
	return s.Job().InitialMigration(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
