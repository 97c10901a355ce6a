// Package sqlstore persists voice profiles and memories in a SQL database
// through gorm. The schema mirrors the relay's original SQLite layout.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/haivivi/voicerelay/pkg/memo"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

// VoiceProfile is a row of voice_profiles.
type VoiceProfile struct {
	UserID    string `gorm:"primaryKey"`
	Profile   []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (VoiceProfile) TableName() string { return "voice_profiles" }

// MemoryRow is a row of memories.
type MemoryRow struct {
	UserID    string    `gorm:"primaryKey"`
	Content   string    `gorm:"not null"`
	Timestamp time.Time `gorm:"autoUpdateTime"`
}

func (MemoryRow) TableName() string { return "memories" }

// Store implements profile.Backend and memo.Store.
type Store struct {
	db *gorm.DB
}

// Open opens a SQLite database at dsn (":memory:" for tests) and migrates it.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	// SQLite serializes writers, and every ":memory:" connection is a
	// separate database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	sqlDB.SetMaxOpenConns(1)
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&VoiceProfile{}, &MemoryRow{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) LoadAll(ctx context.Context) ([]voiceprint.Candidate, error) {
	var rows []VoiceProfile
	if err := s.db.WithContext(ctx).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: load profiles: %w", err)
	}
	out := make([]voiceprint.Candidate, len(rows))
	for i, r := range rows {
		out[i] = voiceprint.Candidate{ID: r.UserID, Profile: r.Profile}
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, id string, p voiceprint.Profile) error {
	row := VoiceProfile{UserID: id, Profile: p}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"profile"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlstore: save profile %s: %w", id, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&VoiceProfile{}, "user_id = ?", id).Error; err != nil {
		return fmt.Errorf("sqlstore: remove profile %s: %w", id, err)
	}
	return nil
}

// Memories returns a memo.Store view over the memories table.
func (s *Store) Memories() memo.Store {
	return memories{db: s.db}
}

type memories struct {
	db *gorm.DB
}

func (m memories) Get(ctx context.Context, userID string) (memo.Memory, error) {
	var row MemoryRow
	err := m.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return memo.Memory{}, memo.ErrNotFound
	}
	if err != nil {
		return memo.Memory{}, fmt.Errorf("sqlstore: get memory %s: %w", userID, err)
	}
	return memo.Memory{UserID: row.UserID, Content: row.Content, UpdatedAt: row.Timestamp}, nil
}

func (m memories) Put(ctx context.Context, userID, content string) error {
	row := MemoryRow{UserID: userID, Content: content, Timestamp: time.Now().UTC()}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "timestamp"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlstore: put memory %s: %w", userID, err)
	}
	return nil
}
