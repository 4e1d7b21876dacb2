package storage

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xaenox/interviewbud/internal/models"
)

type MemoryStorage struct {
	mu        sync.RWMutex
	questions map[string]*models.Question
	order     []string
	users     map[string]*models.User
	answers   []*models.Answer
	messages  map[string]*models.Message
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		questions: make(map[string]*models.Question),
		users:     make(map[string]*models.User),
		messages:  make(map[string]*models.Message),
	}
}

// Question methods
func (s *MemoryStorage) RandomQuestionExcluding(ctx context.Context, excludeID string) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, nil
	}
	q := s.questions[s.order[rand.Intn(len(s.order))]]
	if q.ID == excludeID {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (s *MemoryStorage) CountQuestions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order), nil
}

func (s *MemoryStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, exists := s.questions[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *MemoryStorage) UpsertQuestion(ctx context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.questions[q.ID]; !exists {
		s.order = append(s.order, q.ID)
	}
	cp := *q
	cp.UpdatedAt = time.Now()
	s.questions[q.ID] = &cp
	return nil
}

// User methods
func (s *MemoryStorage) UpsertUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	user, exists := s.users[id]
	if !exists {
		user = &models.User{
			ID:        id,
			CreatedAt: now,
		}
		s.users[id] = user
	}
	user.UpdatedAt = now
	return copyUser(user), nil
}

func (s *MemoryStorage) FindUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		return copyUser(user), nil
	}
	return nil, nil
}

func (s *MemoryStorage) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.UpdatedAt = time.Now()
	if existing, exists := s.users[user.ID]; exists {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = user.UpdatedAt
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// Answer and message methods
func (s *MemoryStorage) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now()
	}
	cp := *answer
	s.answers = append(s.answers, &cp)
	return nil
}

func (s *MemoryStorage) LogMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return nil
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

// Answers returns a snapshot of the answer log in insertion order.
func (s *MemoryStorage) Answers() []models.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Answer, 0, len(s.answers))
	for _, a := range s.answers {
		out = append(out, *a)
	}
	return out
}

// Messages returns a snapshot of the message log.
func (s *MemoryStorage) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copyUser(u *models.User) *models.User {
	cp := *u
	if u.CurrentQuestionID != nil {
		id := *u.CurrentQuestionID
		cp.CurrentQuestionID = &id
	}
	if u.LastMessageReceived != nil {
		text := *u.LastMessageReceived
		cp.LastMessageReceived = &text
	}
	if u.LastMessageReceivedAt != nil {
		at := *u.LastMessageReceivedAt
		cp.LastMessageReceivedAt = &at
	}
	return &cp
}
