package storage

import (
	"context"
	"errors"

	"github.com/xaenox/interviewbud/internal/models"
)

// ErrNotFound is returned when a record looked up by id does not exist.
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	QuestionStore
	UserStore
	AnswerStore
	MessageLog
	Close() error
}

type QuestionStore interface {
	// RandomQuestionExcluding samples one question uniformly from the whole
	// pool. It returns (nil, nil) when the sample is empty or equals
	// excludeID; callers treat that as "sample again".
	RandomQuestionExcluding(ctx context.Context, excludeID string) (*models.Question, error)
	CountQuestions(ctx context.Context) (int, error)
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	UpsertQuestion(ctx context.Context, q *models.Question) error
}

type UserStore interface {
	// UpsertUser returns the user with the given id, creating it when absent.
	UpsertUser(ctx context.Context, id string) (*models.User, error)
	// FindUser returns (nil, nil) when no user exists for id.
	FindUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

type AnswerStore interface {
	CreateAnswer(ctx context.Context, answer *models.Answer) error
}

type MessageLog interface {
	// LogMessage appends a message record. Redelivered ids are ignored.
	LogMessage(ctx context.Context, msg *models.Message) error
}
