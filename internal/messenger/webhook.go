package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/xaenox/interviewbud/internal/models"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Dispatcher consumes parsed inbound events.
type Dispatcher interface {
	Handle(ctx context.Context, event models.Event)
}

// WebhookHandler serves the Messenger webhook: GET for subscription
// verification, POST for batched event delivery.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	dispatcher  Dispatcher
	logger      *zap.Logger

	inflight sync.WaitGroup
}

func NewWebhookHandler(verifyToken, appSecret string, dispatcher Dispatcher, logger *zap.Logger) (*WebhookHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("messenger: dispatcher must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		dispatcher:  dispatcher,
		logger:      logger,
	}, nil
}

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging"`
}

type messagingEvent struct {
	Sender    participant      `json:"sender"`
	Recipient participant      `json:"recipient"`
	Timestamp int64            `json:"timestamp"`
	Message   *inboundMessage  `json:"message"`
	Postback  *inboundPostback `json:"postback"`
}

type participant struct {
	ID string `json:"id"`
}

type inboundMessage struct {
	MID         string              `json:"mid"`
	Text        string              `json:"text"`
	Attachments []inboundAttachment `json:"attachments"`
}

type inboundAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

type inboundPostback struct {
	Payload string `json:"payload"`
}

func (e messagingEvent) toEvent() models.Event {
	event := models.Event{
		SenderID:  e.Sender.ID,
		Timestamp: e.Timestamp,
	}
	if e.Message != nil {
		msg := &models.InboundMessage{MID: e.Message.MID, Text: e.Message.Text}
		for _, a := range e.Message.Attachments {
			msg.Attachments = append(msg.Attachments, models.Attachment{Type: a.Type, URL: a.Payload.URL})
		}
		event.Message = msg
	}
	if e.Postback != nil {
		event.Postback = &models.Postback{Payload: e.Postback.Payload}
	}
	return event
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		h.logger.Info("Validating webhook")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, q.Get("hub.challenge"))
		return
	}

	h.logger.Error("Failed webhook validation, make sure the validation tokens match")
	w.WriteHeader(http.StatusForbidden)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := VerifySignature(h.appSecret, r.Header.Get(SignatureHeader), body); err != nil {
		if !errors.Is(err, ErrMissingSignature) {
			h.logger.Error("Rejecting webhook delivery", zap.Error(err))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		h.logger.Error("Couldn't validate the signature", zap.Error(err))
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("Failed to decode webhook body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.Object != "page" {
		h.logger.Warn("Ignoring webhook for unsupported object", zap.String("object", payload.Object))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Processing outlives the request; only its values are kept.
	ctx := context.WithoutCancel(r.Context())
	dispatched := 0
	for _, e := range payload.Entry {
		for _, m := range e.Messaging {
			h.dispatch(ctx, m.toEvent())
			dispatched++
		}
	}

	h.logger.Debug("Accepted webhook delivery",
		zap.Int("entries", len(payload.Entry)),
		zap.Int("events", dispatched))
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) dispatch(ctx context.Context, event models.Event) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.dispatcher.Handle(ctx, event)
	}()
}

// Wait blocks until every dispatched event has been handled.
func (h *WebhookHandler) Wait() {
	h.inflight.Wait()
}
