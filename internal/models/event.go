package models

// Postback payloads sent by the chat platform's buttons.
const (
	PayloadNewUser   = "new_user"
	PayloadMenuAbout = "menu_about"
)

// Event is one inbound messaging event delivered by a chat channel.
type Event struct {
	SenderID  string          `json:"sender_id"`
	Message   *InboundMessage `json:"message,omitempty"`
	Postback  *Postback       `json:"postback,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type InboundMessage struct {
	MID         string       `json:"mid,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Postback struct {
	Payload string `json:"payload"`
}

// Attachment is an opaque non-text part of an inbound message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// HasAttachments reports whether the event carries any attachment.
func (e Event) HasAttachments() bool {
	return e.Message != nil && len(e.Message.Attachments) > 0
}

// Text returns the message text, or "" for postbacks and attachment-only messages.
func (e Event) Text() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Text
}

// PostbackPayload returns the postback payload, or "" when the event is not a postback.
func (e Event) PostbackPayload() string {
	if e.Postback == nil {
		return ""
	}
	return e.Postback.Payload
}
