package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatUnique/keyguard-pro/internal/domain"
	"github.com/chatUnique/keyguard-pro/internal/storage"
)

// JobRecord 任务快照表
//
// 统计字段单独成列便于查询，条目和配置整体以 JSON 存在 Payload 中。
type JobRecord struct {
	ID         string     `gorm:"primaryKey;size:36"`
	State      string     `gorm:"size:16;index;not null"`
	Total      int        `gorm:"not null;default:0"`
	Completed  int        `gorm:"not null;default:0"`
	Valid      int        `gorm:"not null;default:0"`
	Payload    []byte     `gorm:"not null"`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time  `gorm:"not null"`
	FinishedAt *time.Time `gorm:"index"`
}

// TableName 表名
func (JobRecord) TableName() string {
	return "keyguard_jobs"
}

func toRecord(job *domain.JobSnapshot) (*JobRecord, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = updated
	}
	return &JobRecord{
		ID:         job.ID,
		State:      string(job.State),
		Total:      job.Statistics.Total,
		Completed:  job.Statistics.Completed,
		Valid:      job.Statistics.Valid,
		Payload:    payload,
		CreatedAt:  created,
		UpdatedAt:  updated,
		FinishedAt: job.FinishedAt,
	}, nil
}

func fromRecord(rec *JobRecord) (*domain.JobSnapshot, error) {
	var job domain.JobSnapshot
	if err := json.Unmarshal(rec.Payload, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", rec.ID, err)
	}
	return &job, nil
}

// SaveJob 保存任务快照，同 ID 覆盖
func (s *Store) SaveJob(ctx context.Context, job *domain.JobSnapshot) error {
	rec, err := toRecord(job)
	if err != nil {
		return err
	}
	return s.gormDB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "total", "completed", "valid", "payload", "updated_at", "finished_at"}),
		}).
		Create(rec).Error
}

// GetJob 获取任务快照
func (s *Store) GetJob(ctx context.Context, id string) (*domain.JobSnapshot, error) {
	var rec JobRecord
	err := s.gormDB.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrJobNotFound
		}
		return nil, err
	}
	return fromRecord(&rec)
}

// DeleteJob 删除任务快照
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	result := s.gormDB.WithContext(ctx).Where("id = ?", id).Delete(&JobRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// PruneJobs 删除 before 之前结束的任务
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int, error) {
	result := s.gormDB.WithContext(ctx).
		Where("finished_at IS NOT NULL AND finished_at < ?", before.UTC()).
		Delete(&JobRecord{})
	return int(result.RowsAffected), result.Error
}

var _ storage.JobStore = (*Store)(nil)
