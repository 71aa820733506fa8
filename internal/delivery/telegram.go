package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
)

const DefaultTelegramAPIBase = "https://api.telegram.org"

// TelegramClient uploads translation files to a chat via the Bot API.
//
// apiBase: Bot API root, normally https://api.telegram.org
// token: bot token, placed in the request path
// chatID: target chat or channel id
type TelegramClient struct {
	apiBase    string
	token      string
	chatID     string
	httpClient *http.Client
}

type TelegramOption func(*TelegramClient)

func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(t *TelegramClient) {
		if c != nil {
			t.httpClient = c
		}
	}
}

func NewTelegramClient(apiBase, token, chatID string, timeout time.Duration, opts ...TelegramOption) *TelegramClient {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &TelegramClient{
		apiBase:    apiBase,
		token:      strings.TrimSpace(token),
		chatID:     strings.TrimSpace(chatID),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a bot token and chat id are set.
func (c *TelegramClient) Configured() bool {
	return c != nil && c.token != "" && c.chatID != ""
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Caption is the message shown under the uploaded document.
func Caption(languageCode string, count int) string {
	return fmt.Sprintf("🌍 Translation file for %s\n📊 %d translations", strings.ToUpper(languageCode), count)
}

// SendDocument uploads content as <lang>.yml with a caption naming the
// language and entry count.
//
// Returns a Delivery error when the request fails or Telegram answers with
// ok=false; the error message carries Telegram's description.
func (c *TelegramClient) SendDocument(ctx context.Context, languageCode, content string, count int) error {
	if !c.Configured() {
		return apperr.New(apperr.ErrDelivery, "Failed to send to Telegram: bot token or chat id not configured")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", c.chatID); err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "build upload", err)
	}
	part, err := w.CreateFormFile("document", Filename(languageCode))
	if err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "build upload", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "build upload", err)
	}
	if err := w.WriteField("caption", Caption(languageCode, count)); err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "build upload", err)
	}
	if err := w.Close(); err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "build upload", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "build upload", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL embeds the bot token; keep it out of the message
		return apperr.New(apperr.ErrDelivery, "Failed to send to Telegram: "+redact(err.Error(), c.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.NewWithCause(apperr.ErrDelivery, "Failed to send to Telegram: read response", err)
	}
	var result telegramResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return apperr.Newf(apperr.ErrDelivery, "Failed to send to Telegram: unexpected response (status %d)", resp.StatusCode)
	}
	if !result.OK {
		desc := result.Description
		if desc == "" {
			desc = "Failed to send to Telegram"
		}
		return apperr.New(apperr.ErrDelivery, "Failed to send to Telegram: "+desc).
			WithContext("status", resp.StatusCode)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
