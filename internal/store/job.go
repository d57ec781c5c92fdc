package store

import (
	"context"
	"errors"
	"time"

	"github.com/ElasticProvisioner/attribution/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Job is the monitor's durable job-state table.
type Job interface {
	Upsert(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context) (model.JobList, error)
	ListByState(ctx context.Context, state string) (model.JobList, error)
	DeleteBefore(ctx context.Context, states []string, before time.Time) (int64, error)
	InitialMigration(ctx context.Context) error
}

type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) InitialMigration(ctx context.Context) error {
	return j.getDB(ctx).AutoMigrate(&model.Job{})
}

// Upsert writes the job's current tracking state, replacing any previous
// row for the same scheduler ID.
func (j *JobStore) Upsert(ctx context.Context, job model.Job) (*model.Job, error) {
	job.UpdatedAt = time.Now()
	if err := j.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job := model.Job{ID: id}
	if err := j.getDB(ctx).WithContext(ctx).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (j *JobStore) List(ctx context.Context) (model.JobList, error) {
	var jobs model.JobList
	if err := j.getDB(ctx).WithContext(ctx).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (j *JobStore) ListByState(ctx context.Context, state string) (model.JobList, error) {
	var jobs model.JobList
	if err := j.getDB(ctx).WithContext(ctx).Where("state = ?", state).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// DeleteBefore prunes rows in the given states not updated since the
// retention cutoff. Returns the number of pruned rows.
func (j *JobStore) DeleteBefore(ctx context.Context, states []string, before time.Time) (int64, error) {
	tx := j.getDB(ctx).WithContext(ctx).
		Where("state IN ?", states).
		Where("updated_at < ?", before).
		Delete(&model.Job{})
	return tx.RowsAffected, tx.Error
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return j.db
}
