// Package sms serves the reduced SMS channel: first contact gets a welcome,
// every later text gets a random question.
package sms

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/xaenox/interviewbud/internal/models"
	"github.com/xaenox/interviewbud/internal/storage"
	"go.uber.org/zap"
)

const WelcomeText = "Oh hey, I'm Interviewbud -- a bot who asks you job interview questions.\n\n" +
	"I don't know whether your answers are any good or not, I'm just a bot here to help you practice.\n\n" +
	"Ready to begin?"

const maxSampleAttempts = 10

// Store is the subset of storage the SMS channel needs.
type Store interface {
	storage.UserStore
	RandomQuestionExcluding(ctx context.Context, excludeID string) (*models.Question, error)
}

type Handler struct {
	store  Store
	logger *zap.Logger
}

func NewHandler(store Store, logger *zap.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("sms: store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}, nil
}

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.logger.Error("Failed to parse SMS form", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	senderID := r.PostForm.Get("From")
	if senderID == "" {
		h.logger.Warn("SMS without sender")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	log := h.logger.With(zap.String("sender_id", senderID))

	reply, err := h.reply(r.Context(), log, senderID)
	if err != nil {
		// Silence is the failure mode: acknowledge without a message.
		log.Error("Failed to build SMS reply", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeTwiML(w, log, reply)
}

func (h *Handler) reply(ctx context.Context, log *zap.Logger, senderID string) (string, error) {
	user, err := h.store.FindUser(ctx, senderID)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		if _, err := h.store.UpsertUser(ctx, senderID); err != nil {
			return "", fmt.Errorf("create user: %w", err)
		}
		log.Debug("Sending SMS welcome")
		return WelcomeText, nil
	}

	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		q, err := h.store.RandomQuestionExcluding(ctx, "")
		if err != nil {
			return "", fmt.Errorf("sample question: %w", err)
		}
		if q != nil {
			return q.Title, nil
		}
	}
	return "", errors.New("sms: no question available")
}

func (h *Handler) writeTwiML(w http.ResponseWriter, log *zap.Logger, message string) {
	body, err := xml.Marshal(twiml{Message: message})
	if err != nil {
		log.Error("Failed to encode TwiML", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	w.Write(body)
	log.Debug("Sent TwiML reply", zap.Int("bytes", len(body)))
}
