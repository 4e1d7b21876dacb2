package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends replies through the Bot API.
type Notifier struct {
	api    sender
	logger *zap.Logger
}

func NewNotifier(api *tgbotapi.BotAPI, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, logger: logger}
}

func (n *Notifier) SendText(ctx context.Context, recipientID, text string) error {
	chatID, err := ChatID(recipientID)
	if err != nil {
		return err
	}
	return n.send(tgbotapi.NewMessage(chatID, text))
}

// SendQuestionCard renders the card as a bold title over the question.
func (n *Notifier) SendQuestionCard(ctx context.Context, recipientID, title, subtitle string) error {
	chatID, err := ChatID(recipientID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, "*"+escapeMarkdown(title)+"*\n"+escapeMarkdown(subtitle))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return n.send(msg)
}

func (n *Notifier) send(msg tgbotapi.MessageConfig) error {
	sent, err := n.api.Send(msg)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.logger.Debug("Sent telegram message",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("message_id", sent.MessageID))
	return nil
}

var markdownReplacer = func() *strings.Replacer {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	pairs := make([]string, 0, len(specialChars)*2)
	for _, char := range specialChars {
		pairs = append(pairs, char, "\\"+char)
	}
	return strings.NewReplacer(pairs...)
}()

// escapeMarkdown escapes the characters MarkdownV2 treats as markup.
func escapeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}
