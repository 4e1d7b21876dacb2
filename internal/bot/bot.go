package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/interviewbud/internal/classifier"
	"github.com/xaenox/interviewbud/internal/models"
	"github.com/xaenox/interviewbud/internal/storage"
	"go.uber.org/zap"
)

const (
	maxSampleAttempts = 50

	// responseNoCurrentQuestion is logged when text arrives for a user who
	// has no question to attribute it to.
	responseNoCurrentQuestion = "no_current_question"
)

// ErrNoQuestions is returned when the question pool is empty.
var ErrNoQuestions = errors.New("bot: question pool is empty")

// Notifier delivers replies through a chat channel.
type Notifier interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendQuestionCard(ctx context.Context, recipientID, title, subtitle string) error
}

// Bot is the conversation dispatcher shared by every chat channel.
type Bot struct {
	storage    storage.Storage
	notifier   Notifier
	classifier classifier.Classifier
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(store storage.Storage, notifier Notifier, clf classifier.Classifier, logger *zap.Logger) (*Bot, error) {
	if store == nil {
		return nil, errors.New("bot: storage must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("bot: notifier must not be nil")
	}
	if clf == nil {
		clf = classifier.NewRuleClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		storage:    store,
		notifier:   notifier,
		classifier: clf,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Handle runs one inbound event through the decision list. Failures are
// logged and end the turn; nothing is returned to the transport.
func (b *Bot) Handle(ctx context.Context, event models.Event) {
	log := b.logger.With(zap.String("sender_id", event.SenderID))
	if event.SenderID == "" {
		log.Warn("Dropping event without sender")
		return
	}

	category := b.classifier.Classify(event)
	log = log.With(zap.String("category", string(category)))
	log.Debug("Classified event")

	var (
		user *models.User
		err  error
	)
	if category == classifier.NewUser {
		user, err = b.storage.UpsertUser(ctx, event.SenderID)
		if err != nil {
			log.Error("Failed to upsert user", zap.Error(err))
			return
		}
		user.Answered = false
		log.Info("Registered user")
	} else {
		if category == classifier.About {
			b.sendText(ctx, log, event.SenderID, GreetingText)
		}

		user, err = b.storage.FindUser(ctx, event.SenderID)
		if err != nil {
			log.Error("Failed to load user", zap.Error(err))
			return
		}
		if user == nil {
			log.Warn("No user record for sender, ignoring event")
			return
		}
	}

	previousQuestionID := user.CurrentQuestion()
	touched := b.recordLastMessage(user, event)

	responseType, persisted, err := b.respond(ctx, log, user, event, category)
	if err != nil {
		log.Error("Aborting turn", zap.Error(err))
		return
	}

	if touched && !persisted {
		if err := b.storage.SaveUser(ctx, user); err != nil {
			log.Error("Failed to save user", zap.Error(err))
			return
		}
	}

	b.logMessage(ctx, log, user, event, previousQuestionID, responseType)
}

// respond performs the side effects for category. persisted reports whether
// the user record was written during the turn.
func (b *Bot) respond(ctx context.Context, log *zap.Logger, user *models.User, event models.Event, category classifier.Category) (responseType string, persisted bool, err error) {
	responseType = string(category)

	switch category {
	case classifier.NewUser:
		return responseType, true, b.sendNewQuestion(ctx, log, user)

	case classifier.About:
		persisted, err = b.sendCurrentQuestion(ctx, log, user)
		return responseType, persisted, err

	case classifier.Attachment:
		b.sendText(ctx, log, user.ID, AttachmentText)
		persisted, err = b.sendCurrentQuestion(ctx, log, user)
		return responseType, persisted, err

	case classifier.Help:
		b.sendText(ctx, log, user.ID, HelpText)
		persisted, err = b.sendCurrentQuestion(ctx, log, user)
		return responseType, persisted, err

	case classifier.Skip:
		b.sendText(ctx, log, user.ID, SkipText)
		return responseType, true, b.sendNewQuestion(ctx, log, user)

	case classifier.ShortAnswer:
		b.sendText(ctx, log, user.ID, ShortAnswerText)
		persisted, err = b.sendCurrentQuestion(ctx, log, user)
		return responseType, persisted, err

	case classifier.Answer:
		if !user.HasCurrentQuestion() {
			log.Info("Text received without a current question")
			return responseNoCurrentQuestion, true, b.sendNewQuestion(ctx, log, user)
		}

		answer := &models.Answer{
			ID:         b.newID(),
			UserID:     user.ID,
			QuestionID: user.CurrentQuestion(),
			AnswerText: event.Text(),
			CreatedAt:  b.now(),
		}
		if err := b.storage.CreateAnswer(ctx, answer); err != nil {
			return responseType, false, fmt.Errorf("create answer: %w", err)
		}
		user.Answered = true
		log.Info("Recorded answer",
			zap.String("answer_id", answer.ID),
			zap.String("question_id", answer.QuestionID))

		return responseType, true, b.sendNewQuestion(ctx, log, user)
	}

	log.Info("Did not send any response")
	return responseType, false, nil
}

// sendNewQuestion rotates the user onto a question different from the
// current one and persists the user before notifying.
func (b *Bot) sendNewQuestion(ctx context.Context, log *zap.Logger, user *models.User) error {
	question, err := b.pickQuestion(ctx, log, user.CurrentQuestion())
	if err != nil {
		return fmt.Errorf("pick question: %w", err)
	}

	user.CurrentQuestionID = &question.ID
	user.Answered = false
	if err := b.storage.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	log.Debug("Rotated question", zap.String("question_id", question.ID))
	b.sendQuestionCard(ctx, log, user.ID, question)
	return nil
}

// sendCurrentQuestion re-sends the user's current question, falling back to
// a new one when the user has none. rotated reports whether a fallback
// rotation happened (and so whether the user was saved).
func (b *Bot) sendCurrentQuestion(ctx context.Context, log *zap.Logger, user *models.User) (rotated bool, err error) {
	if !user.HasCurrentQuestion() {
		return true, b.sendNewQuestion(ctx, log, user)
	}

	question, err := b.storage.GetQuestion(ctx, user.CurrentQuestion())
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("Current question no longer exists", zap.String("question_id", user.CurrentQuestion()))
		return true, b.sendNewQuestion(ctx, log, user)
	}
	if err != nil {
		return false, fmt.Errorf("load current question: %w", err)
	}

	b.sendQuestionCard(ctx, log, user.ID, question)
	return false, nil
}

// pickQuestion samples uniformly from the whole pool until the sample differs
// from currentID. A single-question pool returns that question as is. Empty
// samples, which concurrent turns for the same user can produce, are retried.
func (b *Bot) pickQuestion(ctx context.Context, log *zap.Logger, currentID string) (*models.Question, error) {
	count, err := b.storage.CountQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoQuestions
	}

	exclude := currentID
	if count == 1 {
		exclude = ""
	}

	for attempt := 1; attempt <= maxSampleAttempts; attempt++ {
		question, err := b.storage.RandomQuestionExcluding(ctx, exclude)
		if err != nil {
			return nil, err
		}
		if question != nil {
			return question, nil
		}
		log.Debug("Resampling question", zap.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("bot: no question sampled after %d attempts", maxSampleAttempts)
}

func (b *Bot) recordLastMessage(user *models.User, event models.Event) bool {
	text := event.Text()
	if text == "" {
		return false
	}
	at := b.now()
	user.LastMessageReceived = &text
	user.LastMessageReceivedAt = &at
	return true
}

func (b *Bot) logMessage(ctx context.Context, log *zap.Logger, user *models.User, event models.Event, questionID, responseType string) {
	msg := &models.Message{
		UserID:            user.ID,
		Timestamp:         event.Timestamp,
		CurrentQuestionID: questionID,
		ResponseType:      responseType,
		CreatedAt:         b.now(),
	}
	if event.Message != nil {
		msg.ID = event.Message.MID
		msg.Text = event.Message.Text
		msg.Attachments = event.Message.Attachments
	}
	if msg.ID == "" {
		msg.ID = b.newID()
	}

	if err := b.storage.LogMessage(ctx, msg); err != nil {
		log.Error("Failed to log message",
			zap.Error(err),
			zap.String("message_id", msg.ID))
	}
}

func (b *Bot) sendText(ctx context.Context, log *zap.Logger, recipientID, text string) {
	if err := b.notifier.SendText(ctx, recipientID, text); err != nil {
		log.Error("Failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendQuestionCard(ctx context.Context, log *zap.Logger, recipientID string, question *models.Question) {
	if err := b.notifier.SendQuestionCard(ctx, recipientID, QuestionCardTitle, question.Title); err != nil {
		log.Error("Failed to send question",
			zap.Error(err),
			zap.String("question_id", question.ID))
	}
}
