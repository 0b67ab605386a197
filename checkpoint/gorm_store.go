package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// checkpointRow 检查点持久化行
// 快照本体以 JSON 存储，结构演化不需要迁移表
type checkpointRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	ThreadID  string    `gorm:"index;size:128;not null"`
	Data      []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (checkpointRow) TableName() string {
	return "workflow_checkpoints"
}

// GormStore 基于 GORM 的持久化检查点存储
// 相同 ID 的写入走 upsert，整体替换已有行
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建 GORM 检查点存储并自动迁移表结构
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&checkpointRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate checkpoints: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("store", "gorm_checkpoint")),
	}, nil
}

// OpenSQLite 打开 SQLite 数据库（纯 Go 驱动，无 cgo）
// path 使用 ":memory:" 时为内存库，适合测试
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// OpenPostgres 打开 PostgreSQL 数据库
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func (s *GormStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	row := checkpointRow{
		ID:        cp.ID,
		ThreadID:  cp.ThreadID,
		Data:      data,
		CreatedAt: cp.CreatedAt,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"thread_id", "data", "created_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved",
		zap.String("checkpoint_id", cp.ID),
		zap.String("thread_id", cp.ThreadID),
	)
	return nil
}

func (s *GormStore) Load(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND id = ?", threadID, checkpointID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return decodeRow(&row)
}

func (s *GormStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return decodeRow(&row)
}

func (s *GormStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	q := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []checkpointRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]*Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := decodeRow(&rows[i])
		if err != nil {
			s.logger.Warn("skipping undecodable checkpoint",
				zap.String("checkpoint_id", rows[i].ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, threadID, checkpointID string) error {
	res := s.db.WithContext(ctx).
		Where("thread_id = ? AND id = ?", threadID, checkpointID).
		Delete(&checkpointRow{})
	if res.Error != nil {
		return fmt.Errorf("delete checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&checkpointRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old checkpoints: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func decodeRow(row *checkpointRow) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(row.Data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", row.ID, err)
	}
	return &cp, nil
}
