package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/interviewbud/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) RandomQuestionExcluding(ctx context.Context, excludeID string) (*models.Question, error) {
	query := `
		SELECT id, title, category, updated_at
		FROM questions
		ORDER BY random()
		LIMIT 1`

	q := &models.Question{}
	err := s.db.QueryRowContext(ctx, query).Scan(&q.ID, &q.Title, &q.Category, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error sampling question: %w", err)
	}
	if q.ID == excludeID {
		return nil, nil
	}
	return q, nil
}

func (s *PostgresStorage) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting questions: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	query := `
		SELECT id, title, category, updated_at
		FROM questions
		WHERE id = $1`

	q := &models.Question{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&q.ID, &q.Title, &q.Category, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying question: %w", err)
	}
	return q, nil
}

func (s *PostgresStorage) UpsertQuestion(ctx context.Context, q *models.Question) error {
	query := `
		INSERT INTO questions (id, title, category, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, category = EXCLUDED.category, updated_at = NOW()
		RETURNING updated_at`

	if err := s.db.QueryRowContext(ctx, query, q.ID, q.Title, q.Category).Scan(&q.UpdatedAt); err != nil {
		return fmt.Errorf("error upserting question: %w", err)
	}
	return nil
}

const userColumns = `id, current_question_id, last_message_received, last_message_received_at, answered, created_at, updated_at`

func (s *PostgresStorage) UpsertUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		INSERT INTO users (id)
		VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("error upserting user: %w", err)
	}
	return user, nil
}

func (s *PostgresStorage) FindUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return user, nil
}

func (s *PostgresStorage) SaveUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, current_question_id, last_message_received, last_message_received_at, answered)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET current_question_id = EXCLUDED.current_question_id,
		    last_message_received = EXCLUDED.last_message_received,
		    last_message_received_at = EXCLUDED.last_message_received_at,
		    answered = EXCLUDED.answered,
		    updated_at = NOW()
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		user.ID,
		user.CurrentQuestionID,
		user.LastMessageReceived,
		user.LastMessageReceivedAt,
		user.Answered,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	query := `
		INSERT INTO answers (id, user_id, question_id, answer_text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		answer.ID,
		answer.UserID,
		answer.QuestionID,
		answer.AnswerText,
	).Scan(&answer.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating answer: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LogMessage(ctx context.Context, msg *models.Message) error {
	var attachments sql.NullString
	if len(msg.Attachments) > 0 {
		raw, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("error encoding attachments: %w", err)
		}
		attachments = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO messages (id, user_id, timestamp, current_question_id, text, attachments, response_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.UserID,
		msg.Timestamp,
		msg.CurrentQuestionID,
		msg.Text,
		attachments,
		msg.ResponseType,
	)
	if err != nil {
		return fmt.Errorf("error logging message: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user        models.User
		questionID  sql.NullString
		lastMessage sql.NullString
		lastAt      sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&questionID,
		&lastMessage,
		&lastAt,
		&user.Answered,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if questionID.Valid {
		user.CurrentQuestionID = &questionID.String
	}
	if lastMessage.Valid {
		user.LastMessageReceived = &lastMessage.String
	}
	if lastAt.Valid {
		user.LastMessageReceivedAt = &lastAt.Time
	}
	return &user, nil
}
