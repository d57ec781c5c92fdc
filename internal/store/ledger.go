package store

import (
	"context"

	"github.com/ElasticProvisioner/attribution/internal/store/model"
	"gorm.io/gorm"
)

// Ledger persists the analysis cache across service restarts. The cache
// serializes its whole entry set on graceful shutdown and re-validates
// every row against the filesystem on load, so Replace rewrites the table
// instead of merging. Callers run it under a transaction context.
type Ledger interface {
	Replace(ctx context.Context, entries model.CacheEntryList) error
	List(ctx context.Context) (model.CacheEntryList, error)
	InitialMigration(ctx context.Context) error
}

type LedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) Ledger {
	return &LedgerStore{db: db}
}

func (l *LedgerStore) InitialMigration(ctx context.Context) error {
	return l.getDB(ctx).AutoMigrate(&model.CacheEntry{})
}

// Replace rewrites the table contents. The delete and the insert must run
// under one transaction context so a failed save never leaves the ledger
// half-empty.
func (l *LedgerStore) Replace(ctx context.Context, entries model.CacheEntryList) error {
	db := l.getDB(ctx).WithContext(ctx)
	if err := db.Where("1 = 1").Delete(&model.CacheEntry{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return db.Create(&entries).Error
}

func (l *LedgerStore) List(ctx context.Context) (model.CacheEntryList, error) {
	var entries model.CacheEntryList
	if err := l.getDB(ctx).WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *LedgerStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return l.db
}
