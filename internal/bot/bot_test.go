package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/interviewbud/internal/classifier"
	"github.com/xaenox/interviewbud/internal/models"
	"github.com/xaenox/interviewbud/internal/storage"
)

const sender = "psid-1"

type sent struct {
	kind      string
	recipient string
	title     string
	text      string
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []sent
	textErr error
	cardErr error
	onCard  func(recipientID, subtitle string)
}

func (n *recordingNotifier) SendText(_ context.Context, recipientID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{kind: "text", recipient: recipientID, text: text})
	return n.textErr
}

func (n *recordingNotifier) SendQuestionCard(_ context.Context, recipientID, title, subtitle string) error {
	if n.onCard != nil {
		n.onCard(recipientID, subtitle)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{kind: "card", recipient: recipientID, title: title, text: subtitle})
	return n.cardErr
}

func (n *recordingNotifier) messages() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

// flakyStorage wraps MemoryStorage and lets tests inject failures.
type flakyStorage struct {
	*storage.MemoryStorage
	answerErr    error
	getErr       error
	emptySamples int
	samples      int
}

func (s *flakyStorage) CreateAnswer(ctx context.Context, a *models.Answer) error {
	if s.answerErr != nil {
		return s.answerErr
	}
	return s.MemoryStorage.CreateAnswer(ctx, a)
}

func (s *flakyStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStorage.GetQuestion(ctx, id)
}

func (s *flakyStorage) RandomQuestionExcluding(ctx context.Context, excludeID string) (*models.Question, error) {
	s.samples++
	if s.emptySamples > 0 {
		s.emptySamples--
		return nil, nil
	}
	return s.MemoryStorage.RandomQuestionExcluding(ctx, excludeID)
}

func title(id string) string {
	return "Title of question " + id
}

func newStore(t *testing.T, ids ...string) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	for _, id := range ids {
		require.NoError(t, store.UpsertQuestion(context.Background(), &models.Question{ID: id, Title: title(id), Category: 1}))
	}
	return store
}

func newTestBot(t *testing.T, store storage.Storage, n Notifier) *Bot {
	t.Helper()
	b, err := New(store, n, classifier.NewRuleClassifier(), zap.NewNop())
	require.NoError(t, err)
	return b
}

func seedUser(t *testing.T, store storage.Storage, currentQuestionID string) {
	t.Helper()
	ctx := context.Background()
	user, err := store.UpsertUser(ctx, sender)
	require.NoError(t, err)
	if currentQuestionID != "" {
		user.CurrentQuestionID = &currentQuestionID
	}
	require.NoError(t, store.SaveUser(ctx, user))
}

func loadUser(t *testing.T, store storage.Storage) *models.User {
	t.Helper()
	user, err := store.FindUser(context.Background(), sender)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func textEvent(text string) models.Event {
	return models.Event{SenderID: sender, Timestamp: 1700000000, Message: &models.InboundMessage{MID: "mid-" + text, Text: text}}
}

func postbackEvent(payload string) models.Event {
	return models.Event{SenderID: sender, Timestamp: 1700000000, Postback: &models.Postback{Payload: payload}}
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil, &recordingNotifier{}, nil, nil)
	require.Error(t, err)

	_, err = New(storage.NewMemoryStorage(), nil, nil, nil)
	require.Error(t, err)

	b, err := New(storage.NewMemoryStorage(), &recordingNotifier{}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, b.classifier)
}

func TestHandle_NewUserCreatesUserAndSendsQuestion(t *testing.T) {
	store := newStore(t, "1", "2", "3")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), postbackEvent(models.PayloadNewUser))

	user := loadUser(t, store)
	require.True(t, user.HasCurrentQuestion())
	require.False(t, user.Answered)

	msgs := n.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "card", msgs[0].kind)
	require.Equal(t, sender, msgs[0].recipient)
	require.Equal(t, QuestionCardTitle, msgs[0].title)
	require.Equal(t, title(user.CurrentQuestion()), msgs[0].text)
	require.Empty(t, store.Answers())
}

func TestHandle_NewUserIsIdempotent(t *testing.T) {
	store := newStore(t, "1", "2")
	b := newTestBot(t, store, &recordingNotifier{})

	b.Handle(context.Background(), postbackEvent(models.PayloadNewUser))
	first := loadUser(t, store)
	b.Handle(context.Background(), postbackEvent(models.PayloadNewUser))
	second := loadUser(t, store)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.NotEqual(t, first.CurrentQuestion(), second.CurrentQuestion())
}

func TestHandle_UnknownSenderIsIgnored(t *testing.T) {
	store := newStore(t, "1", "2")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("an answer before any greeting"))
	b.Handle(context.Background(), textEvent("help"))

	require.Empty(t, n.messages())
	require.Empty(t, store.Answers())
	require.Empty(t, store.Messages())
	user, err := store.FindUser(context.Background(), sender)
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestHandle_SkipRotatesAwayFromCurrent(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newStore(t, "5", "6", "7")
		seedUser(t, store, "7")
		n := &recordingNotifier{}
		b := newTestBot(t, store, n)

		b.Handle(context.Background(), textEvent("skip"))

		user := loadUser(t, store)
		require.Contains(t, []string{"5", "6"}, user.CurrentQuestion())

		msgs := n.messages()
		require.Len(t, msgs, 2)
		require.Equal(t, sent{kind: "text", recipient: sender, text: SkipText}, msgs[0])
		require.Equal(t, "card", msgs[1].kind)
		require.Equal(t, title(user.CurrentQuestion()), msgs[1].text)
		require.Empty(t, store.Answers())
	}
}

func TestHandle_CommandsAreCaseInsensitive(t *testing.T) {
	helpCommands := []string{"help", "Help", "HELP", "q", "Q", "question", " help "}
	for _, cmd := range helpCommands {
		t.Run("help/"+cmd, func(t *testing.T) {
			store := newStore(t, "1", "2", "3")
			seedUser(t, store, "2")
			n := &recordingNotifier{}
			b := newTestBot(t, store, n)

			b.Handle(context.Background(), textEvent(cmd))

			msgs := n.messages()
			require.Len(t, msgs, 2)
			require.Equal(t, HelpText, msgs[0].text)
			require.Equal(t, title("2"), msgs[1].text)
			require.Equal(t, "2", loadUser(t, store).CurrentQuestion())
			require.Empty(t, store.Answers())
		})
	}

	skipCommands := []string{"skip", "Skip", "next", "Next", "NEXT"}
	for _, cmd := range skipCommands {
		t.Run("skip/"+cmd, func(t *testing.T) {
			store := newStore(t, "1", "2")
			seedUser(t, store, "2")
			n := &recordingNotifier{}
			b := newTestBot(t, store, n)

			b.Handle(context.Background(), textEvent(cmd))

			msgs := n.messages()
			require.Len(t, msgs, 2)
			require.Equal(t, SkipText, msgs[0].text)
			require.Equal(t, "1", loadUser(t, store).CurrentQuestion())
		})
	}
}

func TestHandle_AnswerRecordsPreRotationQuestion(t *testing.T) {
	store := newStore(t, "5", "6", "7")
	seedUser(t, store, "5")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("I once led a migration to Go"))

	answers := store.Answers()
	require.Len(t, answers, 1)
	require.Equal(t, sender, answers[0].UserID)
	require.Equal(t, "5", answers[0].QuestionID)
	require.Equal(t, "I once led a migration to Go", answers[0].AnswerText)
	require.NotEmpty(t, answers[0].ID)

	user := loadUser(t, store)
	require.NotEqual(t, "5", user.CurrentQuestion())
	require.False(t, user.Answered)
	require.Equal(t, "I once led a migration to Go", *user.LastMessageReceived)
	require.NotNil(t, user.LastMessageReceivedAt)

	msgs := n.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, title(user.CurrentQuestion()), msgs[0].text)

	logged := store.Messages()
	require.Len(t, logged, 1)
	require.Equal(t, "mid-I once led a migration to Go", logged[0].ID)
	require.Equal(t, "5", logged[0].CurrentQuestionID)
	require.Equal(t, string(classifier.Answer), logged[0].ResponseType)
	require.Equal(t, int64(1700000000), logged[0].Timestamp)
}

func TestHandle_TextWithoutCurrentQuestionSendsQuestion(t *testing.T) {
	store := newStore(t, "1", "2")
	seedUser(t, store, "")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("banana"))

	require.Empty(t, store.Answers())
	user := loadUser(t, store)
	require.True(t, user.HasCurrentQuestion())

	msgs := n.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "card", msgs[0].kind)

	logged := store.Messages()
	require.Len(t, logged, 1)
	require.Equal(t, responseNoCurrentQuestion, logged[0].ResponseType)
	require.Empty(t, logged[0].CurrentQuestionID)
}

func TestHandle_AttachmentResendsCurrentQuestion(t *testing.T) {
	store := newStore(t, "1", "2", "3")
	seedUser(t, store, "3")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	event := models.Event{
		SenderID: sender,
		Message: &models.InboundMessage{
			MID:         "mid-image",
			Attachments: []models.Attachment{{Type: "image", URL: "https://example.com/cat.png"}},
		},
	}
	b.Handle(context.Background(), event)

	msgs := n.messages()
	require.Len(t, msgs, 2)
	require.Equal(t, AttachmentText, msgs[0].text)
	require.Equal(t, title("3"), msgs[1].text)
	require.Equal(t, "3", loadUser(t, store).CurrentQuestion())
	require.Empty(t, store.Answers())

	logged := store.Messages()
	require.Len(t, logged, 1)
	require.Equal(t, string(classifier.Attachment), logged[0].ResponseType)
	require.Len(t, logged[0].Attachments, 1)
}

func TestHandle_ShortAnswerAsksAgain(t *testing.T) {
	store := newStore(t, "1", "2")
	seedUser(t, store, "1")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("ok"))

	msgs := n.messages()
	require.Len(t, msgs, 2)
	require.Equal(t, ShortAnswerText, msgs[0].text)
	require.Equal(t, title("1"), msgs[1].text)
	require.Empty(t, store.Answers())

	user := loadUser(t, store)
	require.Equal(t, "1", user.CurrentQuestion())
	require.Equal(t, "ok", *user.LastMessageReceived)
}

func TestHandle_MenuAboutGreetsAndResendsCurrent(t *testing.T) {
	store := newStore(t, "1", "2")
	seedUser(t, store, "2")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), postbackEvent(models.PayloadMenuAbout))

	msgs := n.messages()
	require.Len(t, msgs, 2)
	require.Equal(t, GreetingText, msgs[0].text)
	require.Equal(t, title("2"), msgs[1].text)
	require.Equal(t, "2", loadUser(t, store).CurrentQuestion())
}

func TestHandle_UnknownPostbackSendsNothing(t *testing.T) {
	store := newStore(t, "1")
	seedUser(t, store, "1")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), postbackEvent("dont_know"))

	require.Empty(t, n.messages())
	logged := store.Messages()
	require.Len(t, logged, 1)
	require.Equal(t, string(classifier.Unknown), logged[0].ResponseType)
}

func TestHandle_SingleQuestionPoolDoesNotLoop(t *testing.T) {
	store := newStore(t, "only")
	seedUser(t, store, "only")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("next"))

	require.Equal(t, "only", loadUser(t, store).CurrentQuestion())
	msgs := n.messages()
	require.Len(t, msgs, 2)
	require.Equal(t, title("only"), msgs[1].text)
}

func TestHandle_EmptyPoolSendsNoQuestion(t *testing.T) {
	store := newStore(t)
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), postbackEvent(models.PayloadNewUser))

	require.Empty(t, n.messages())
	user := loadUser(t, store)
	require.False(t, user.HasCurrentQuestion())
}

func TestPickQuestion_RetriesEmptySamples(t *testing.T) {
	store := &flakyStorage{MemoryStorage: newStore(t, "1", "2"), emptySamples: 3}
	b := newTestBot(t, store, &recordingNotifier{})

	q, err := b.pickQuestion(context.Background(), zap.NewNop(), "1")
	require.NoError(t, err)
	require.Equal(t, "2", q.ID)
	require.GreaterOrEqual(t, store.samples, 4)
}

func TestPickQuestion_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &flakyStorage{MemoryStorage: newStore(t, "1", "2"), emptySamples: maxSampleAttempts + 1}
	b := newTestBot(t, store, &recordingNotifier{})

	_, err := b.pickQuestion(context.Background(), zap.NewNop(), "1")
	require.Error(t, err)
	require.Equal(t, maxSampleAttempts, store.samples)
}

func TestPickQuestion_EmptyPool(t *testing.T) {
	b := newTestBot(t, newStore(t), &recordingNotifier{})

	_, err := b.pickQuestion(context.Background(), zap.NewNop(), "")
	require.ErrorIs(t, err, ErrNoQuestions)
}

func TestHandle_StoreFailureAbortsTurn(t *testing.T) {
	store := &flakyStorage{MemoryStorage: newStore(t, "1", "2"), answerErr: errors.New("connection reset")}
	seedUser(t, store, "1")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("a thoughtful answer"))

	require.Empty(t, n.messages())
	require.Empty(t, store.Answers())
	require.Empty(t, store.Messages())
	user := loadUser(t, store)
	require.Equal(t, "1", user.CurrentQuestion())
	require.Nil(t, user.LastMessageReceived)
}

func TestHandle_QuestionLookupFailureAbortsAfterReply(t *testing.T) {
	store := &flakyStorage{MemoryStorage: newStore(t, "1", "2"), getErr: errors.New("timeout")}
	seedUser(t, store, "1")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("help"))

	msgs := n.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, HelpText, msgs[0].text)
	require.Empty(t, store.Messages())
}

func TestHandle_MissingCurrentQuestionFallsBackToRotation(t *testing.T) {
	store := newStore(t, "1", "2")
	seedUser(t, store, "deleted")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("help"))

	user := loadUser(t, store)
	require.Contains(t, []string{"1", "2"}, user.CurrentQuestion())
	msgs := n.messages()
	require.Len(t, msgs, 2)
	require.Equal(t, title(user.CurrentQuestion()), msgs[1].text)
}

func TestHandle_NotifierFailureDoesNotAbort(t *testing.T) {
	store := newStore(t, "1", "2")
	seedUser(t, store, "1")
	n := &recordingNotifier{textErr: errors.New("send api down"), cardErr: errors.New("send api down")}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("skip"))

	require.Len(t, n.messages(), 2)
	require.Equal(t, "2", loadUser(t, store).CurrentQuestion())
	require.Len(t, store.Messages(), 1)
}

func TestHandle_PersistsUserBeforeSendingQuestion(t *testing.T) {
	store := newStore(t, "1", "2", "3")
	seedUser(t, store, "1")
	n := &recordingNotifier{}
	var persistedAtSend string
	n.onCard = func(recipientID, _ string) {
		user, err := store.FindUser(context.Background(), recipientID)
		if err == nil && user != nil {
			persistedAtSend = user.CurrentQuestion()
		}
	}
	b := newTestBot(t, store, n)

	b.Handle(context.Background(), textEvent("my answer here"))

	user := loadUser(t, store)
	require.Equal(t, user.CurrentQuestion(), persistedAtSend)
	require.NotEqual(t, "1", persistedAtSend)
}

func TestHandle_ConcurrentEventsForSameSender(t *testing.T) {
	store := newStore(t, "1", "2", "3", "4")
	seedUser(t, store, "1")
	n := &recordingNotifier{}
	b := newTestBot(t, store, n)

	const events = 20
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Handle(context.Background(), textEvent(fmt.Sprintf("answer number %d", i)))
		}(i)
	}
	wg.Wait()

	require.Len(t, store.Answers(), events)
	require.Len(t, store.Messages(), events)
	require.True(t, loadUser(t, store).HasCurrentQuestion())
}
