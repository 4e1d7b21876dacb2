package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaenox/interviewbud/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStorage keeps all records in a single SQLite file through gorm.
type SQLiteStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewSQLiteStorage(path string, log *zap.Logger) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	s, err := NewSQLiteStorageWithDB(db, log)
	if err != nil {
		return nil, err
	}
	log.Info("Opened SQLite storage", zap.String("path", path))
	return s, nil
}

// NewSQLiteStorageWithDB wraps an already opened gorm handle and migrates it.
func NewSQLiteStorageWithDB(db *gorm.DB, log *zap.Logger) (*SQLiteStorage, error) {
	if err := db.AutoMigrate(&models.Question{}, &models.User{}, &models.Answer{}, &models.Message{}); err != nil {
		return nil, fmt.Errorf("error migrating sqlite schema: %w", err)
	}
	return &SQLiteStorage{db: db, logger: log}, nil
}

func (s *SQLiteStorage) RandomQuestionExcluding(ctx context.Context, excludeID string) (*models.Question, error) {
	var qs []models.Question
	if err := s.db.WithContext(ctx).Order("RANDOM()").Limit(1).Find(&qs).Error; err != nil {
		return nil, fmt.Errorf("error sampling question: %w", err)
	}
	if len(qs) == 0 || qs[0].ID == excludeID {
		return nil, nil
	}
	return &qs[0], nil
}

func (s *SQLiteStorage) CountQuestions(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Question{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("error counting questions: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := s.db.WithContext(ctx).First(&q, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying question: %w", err)
	}
	return &q, nil
}

func (s *SQLiteStorage) UpsertQuestion(ctx context.Context, q *models.Question) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "category", "updated_at"}),
	}).Create(q).Error
	if err != nil {
		return fmt.Errorf("error upserting question: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertUser(ctx context.Context, id string) (*models.User, error) {
	db := s.db.WithContext(ctx)
	user := models.User{ID: id}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("error upserting user: %w", err)
	}
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("error reading upserted user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStorage) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStorage) SaveUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("error saving user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	if err := s.db.WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("error creating answer: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LogMessage(ctx context.Context, msg *models.Message) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(msg).Error
	if err != nil {
		return fmt.Errorf("error logging message: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
