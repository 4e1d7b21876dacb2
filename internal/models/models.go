package models

import "time"

// Question is an interview question synced from the content source.
type Question struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"type:text;not null"`
	Category  int       `json:"category" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the conversational state kept for one sender identity.
type User struct {
	ID                    string     `json:"id" gorm:"primaryKey"`
	CurrentQuestionID     *string    `json:"current_question_id,omitempty" gorm:"index"`
	LastMessageReceived   *string    `json:"last_message_received,omitempty" gorm:"type:text"`
	LastMessageReceivedAt *time.Time `json:"last_message_received_at,omitempty"`
	Answered              bool       `json:"answered" gorm:"not null;default:false"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasCurrentQuestion reports whether the user points at a question.
func (u *User) HasCurrentQuestion() bool {
	return u.CurrentQuestionID != nil && *u.CurrentQuestionID != ""
}

// CurrentQuestion returns the current question id, or "" when none is set.
func (u *User) CurrentQuestion() string {
	if u.CurrentQuestionID == nil {
		return ""
	}
	return *u.CurrentQuestionID
}

// Answer is one accepted free-text answer. Answers are never updated.
type Answer struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"index;not null"`
	QuestionID string    `json:"question_id" gorm:"index;not null"`
	AnswerText string    `json:"answer_text" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is the audit record written for every dispatched inbound event.
type Message struct {
	ID                string       `json:"id" gorm:"primaryKey"`
	UserID            string       `json:"user_id" gorm:"index;not null"`
	Timestamp         int64        `json:"timestamp"`
	CurrentQuestionID string       `json:"current_question_id"`
	Text              string       `json:"text" gorm:"type:text"`
	Attachments       []Attachment `json:"attachments,omitempty" gorm:"serializer:json"`
	ResponseType      string       `json:"response_type" gorm:"index"`
	CreatedAt         time.Time    `json:"created_at"`
}
