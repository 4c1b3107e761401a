// Package telegram is a thin Bot API client used as the primary
// notification channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewClient(cfg config.TelegramConfig, log *logger.Logger) *Client {
	if cfg.GetTelegramBotToken() == "" {
		return nil
	}

	baseURL := cfg.GetTelegramAPIBaseURL()
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.GetTelegramBotToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Send delivers text to a chat. Satisfies the notifier Channel interface.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	if c == nil {
		return fmt.Errorf("telegram client not configured")
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err == nil && !parsed.OK {
		return fmt.Errorf("telegram rejected message: %s", parsed.Description)
	}

	c.log.Debug("telegram message sent", "chat_id", chatID)
	return nil
}
