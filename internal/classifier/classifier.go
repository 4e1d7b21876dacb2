package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/xaenox/interviewbud/internal/models"
)

// Category is the response category chosen for an inbound event.
type Category string

const (
	NewUser     Category = "new_user"
	About       Category = "menu_about"
	Attachment  Category = "attachment"
	Help        Category = "help"
	Skip        Category = "skip"
	ShortAnswer Category = "short_answer"
	Answer      Category = "answer"
	Unknown     Category = "unknown"
)

// MinAnswerLength is the shortest text, in characters, accepted as an answer.
const MinAnswerLength = 4

var commands = map[string]Category{
	"help":     Help,
	"question": Help,
	"q":        Help,
	"skip":     Skip,
	"next":     Skip,
}

type Classifier interface {
	Classify(event models.Event) Category
}

// RuleClassifier applies the fixed, ordered rule list. The first rule that
// matches wins.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (c *RuleClassifier) Classify(event models.Event) Category {
	switch event.PostbackPayload() {
	case models.PayloadNewUser:
		return NewUser
	case models.PayloadMenuAbout:
		return About
	}

	if event.Postback != nil {
		return Unknown
	}

	text := strings.TrimSpace(event.Text())
	if text == "" {
		if event.HasAttachments() {
			return Attachment
		}
		return Unknown
	}

	if category, ok := Command(text); ok {
		return category
	}

	if utf8.RuneCountInString(text) < MinAnswerLength {
		return ShortAnswer
	}
	return Answer
}

// Command matches text against the command words, ignoring case and a
// leading slash.
func Command(text string) (Category, bool) {
	word := strings.ToLower(strings.TrimSpace(text))
	word = strings.TrimPrefix(word, "/")
	category, ok := commands[word]
	return category, ok
}
