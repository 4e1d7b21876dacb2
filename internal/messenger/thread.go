package messenger

import (
	"context"
	"fmt"

	"github.com/xaenox/interviewbud/internal/models"
	"go.uber.org/zap"
)

type threadSetting struct {
	SettingType   string         `json:"setting_type"`
	ThreadState   string         `json:"thread_state,omitempty"`
	Greeting      *greeting      `json:"greeting,omitempty"`
	CallToActions []callToAction `json:"call_to_actions,omitempty"`
}

type greeting struct {
	Text string `json:"text"`
}

type callToAction struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// threadSettings builds the greeting, the get-started button and the
// persistent menu registered for the page.
func threadSettings(greetingText, websiteURL string) []threadSetting {
	settings := []threadSetting{
		{
			SettingType: "greeting",
			Greeting:    &greeting{Text: "Hey {{user_first_name}}, " + greetingText},
		},
		{
			SettingType:   "call_to_actions",
			ThreadState:   "new_thread",
			CallToActions: []callToAction{{Payload: models.PayloadNewUser}},
		},
	}

	menu := []callToAction{{Type: "postback", Title: "About Interviewbud", Payload: models.PayloadMenuAbout}}
	if websiteURL != "" {
		menu = append(menu, callToAction{Type: "web_url", Title: "View website", URL: websiteURL})
	}
	settings = append(settings, threadSetting{
		SettingType:   "call_to_actions",
		ThreadState:   "existing_thread",
		CallToActions: menu,
	})
	return settings
}

// SetupThread posts every thread setting. It stops at the first failure.
func (c *Client) SetupThread(ctx context.Context, greetingText, websiteURL string) error {
	for _, setting := range threadSettings(greetingText, websiteURL) {
		if err := c.post(ctx, "/thread_settings", setting, nil); err != nil {
			return fmt.Errorf("thread settings %s: %w", setting.SettingType, err)
		}
		c.logger.Info("Posted thread setting",
			zap.String("setting_type", setting.SettingType),
			zap.String("thread_state", setting.ThreadState))
	}
	return nil
}
