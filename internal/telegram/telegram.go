package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/interviewbud/internal/models"
	"go.uber.org/zap"
)

// SenderPrefix namespaces Telegram chat ids inside the shared user store.
const SenderPrefix = "tg-"

// Dispatcher consumes inbound events.
type Dispatcher interface {
	Handle(ctx context.Context, event models.Event)
}

type Channel struct {
	api        *tgbotapi.BotAPI
	dispatcher Dispatcher
	logger     *zap.Logger

	inflight sync.WaitGroup
}

// NewAPI connects to the Bot API with token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return api, nil
}

func NewChannel(api *tgbotapi.BotAPI, dispatcher Dispatcher, logger *zap.Logger) (*Channel, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("telegram: dispatcher must not be nil")
	}
	return &Channel{
		api:        api,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Start long-polls for updates until ctx is done, handling each message in
// its own goroutine.
func (c *Channel) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := c.api.GetUpdatesChan(u)
	c.logger.Info("Telegram polling started", zap.String("bot", c.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			c.inflight.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				c.inflight.Wait()
				return nil
			}
			if update.Message == nil {
				continue
			}

			event := EventFromMessage(update.Message)
			c.inflight.Add(1)
			go func() {
				defer c.inflight.Done()
				c.dispatcher.Handle(context.WithoutCancel(ctx), event)
			}()
		}
	}
}

// EventFromMessage maps a Telegram message onto an inbound event.
func EventFromMessage(message *tgbotapi.Message) models.Event {
	event := models.Event{
		SenderID:  SenderID(message.Chat.ID),
		Timestamp: int64(message.Date) * 1000,
	}

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			event.Postback = &models.Postback{Payload: models.PayloadNewUser}
			return event
		case "about":
			event.Postback = &models.Postback{Payload: models.PayloadMenuAbout}
			return event
		}
	}

	msg := &models.InboundMessage{
		MID:  SenderID(message.Chat.ID) + ":" + strconv.Itoa(message.MessageID),
		Text: message.Text,
	}
	if message.IsCommand() {
		msg.Text = message.Command()
	}
	if msg.Text == "" {
		msg.Text = message.Caption
	}
	msg.Attachments = attachments(message)
	event.Message = msg
	return event
}

func attachments(message *tgbotapi.Message) []models.Attachment {
	var out []models.Attachment
	if len(message.Photo) > 0 {
		out = append(out, models.Attachment{Type: "image", URL: message.Photo[len(message.Photo)-1].FileID})
	}
	if message.Document != nil {
		out = append(out, models.Attachment{Type: "file", URL: message.Document.FileID})
	}
	if message.Video != nil {
		out = append(out, models.Attachment{Type: "video", URL: message.Video.FileID})
	}
	if message.Audio != nil {
		out = append(out, models.Attachment{Type: "audio", URL: message.Audio.FileID})
	}
	if message.Voice != nil {
		out = append(out, models.Attachment{Type: "audio", URL: message.Voice.FileID})
	}
	if message.Sticker != nil {
		out = append(out, models.Attachment{Type: "sticker", URL: message.Sticker.FileID})
	}
	if message.Location != nil {
		out = append(out, models.Attachment{Type: "location"})
	}
	return out
}

// Wait blocks until every dispatched message has been handled.
func (c *Channel) Wait() {
	c.inflight.Wait()
}

// SenderID returns the store identity for a chat.
func SenderID(chatID int64) string {
	return SenderPrefix + strconv.FormatInt(chatID, 10)
}

// ChatID parses a store identity produced by SenderID.
func ChatID(senderID string) (int64, error) {
	raw, ok := strings.CutPrefix(senderID, SenderPrefix)
	if !ok {
		return 0, fmt.Errorf("telegram: %q is not a telegram sender", senderID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: bad chat id in %q: %w", senderID, err)
	}
	return id, nil
}
