package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultGraphURL = "https://graph.facebook.com/v2.6/me"

// Client talks to the Messenger Send API and thread settings endpoints.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewClient(baseURL, accessToken string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

type recipient struct {
	ID string `json:"id"`
}

type outboundMessage struct {
	Text       string              `json:"text,omitempty"`
	Attachment *outboundAttachment `json:"attachment,omitempty"`
}

type outboundAttachment struct {
	Type    string          `json:"type"`
	Payload templatePayload `json:"payload"`
}

type templatePayload struct {
	TemplateType string            `json:"template_type"`
	Elements     []templateElement `json:"elements"`
}

type templateElement struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

type sendRequest struct {
	Recipient recipient       `json:"recipient"`
	Message   outboundMessage `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	return c.postMessage(ctx, sendRequest{
		Recipient: recipient{ID: recipientID},
		Message:   outboundMessage{Text: text},
	})
}

// SendQuestionCard sends a generic template with a single titled element.
func (c *Client) SendQuestionCard(ctx context.Context, recipientID, title, subtitle string) error {
	return c.postMessage(ctx, sendRequest{
		Recipient: recipient{ID: recipientID},
		Message: outboundMessage{
			Attachment: &outboundAttachment{
				Type: "template",
				Payload: templatePayload{
					TemplateType: "generic",
					Elements:     []templateElement{{Title: title, Subtitle: subtitle}},
				},
			},
		},
	})
}

func (c *Client) postMessage(ctx context.Context, req sendRequest) error {
	var resp sendResponse
	if err := c.post(ctx, "/messages", req, &resp); err != nil {
		return fmt.Errorf("send api: %w", err)
	}

	if resp.MessageID != "" {
		c.logger.Debug("Sent message",
			zap.String("recipient_id", resp.RecipientID),
			zap.String("message_id", resp.MessageID))
	} else {
		c.logger.Debug("Called Send API", zap.String("recipient_id", req.Recipient.ID))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL + path + "?" + url.Values{"access_token": {c.accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("post %s: status %d: %s (code %d)", path, res.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("post %s: status %d", path, res.StatusCode)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
