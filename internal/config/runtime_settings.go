package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the values editable while the service runs.
type RuntimeSettings struct {
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
	SourceBaseURL    string `json:"source_base_url"`
	RefreshCron      string `json:"refresh_cron"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.SourceBaseURL) == "" {
		return fmt.Errorf("source_base_url is required")
	}
	u, err := url.Parse(s.SourceBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid source_base_url: must be an http(s) URL")
	}
	if (strings.TrimSpace(s.TelegramBotToken) == "") != (strings.TrimSpace(s.TelegramChatID) == "") {
		return fmt.Errorf("telegram_bot_token and telegram_chat_id must be set together")
	}
	if strings.TrimSpace(s.RefreshCron) != "" {
		if _, err := cron.ParseStandard(s.RefreshCron); err != nil {
			return fmt.Errorf("invalid refresh_cron: %w", err)
		}
	}
	return nil
}

// Redacted hides the bot token, keeping only whether one is set.
func (s RuntimeSettings) Redacted() RuntimeSettings {
	if s.TelegramBotToken != "" {
		s.TelegramBotToken = "********"
	}
	return s
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		TelegramBotToken: c.Telegram.BotToken,
		TelegramChatID:   c.Telegram.ChatID,
		SourceBaseURL:    c.Source.BaseURL,
		RefreshCron:      c.Refresh.CronExpr,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.TelegramBotToken) != "" {
			c.Telegram.BotToken = settings.TelegramBotToken
		}
		if strings.TrimSpace(settings.TelegramChatID) != "" {
			c.Telegram.ChatID = settings.TelegramChatID
		}
		if strings.TrimSpace(settings.SourceBaseURL) != "" {
			c.Source.BaseURL = settings.SourceBaseURL
		}
		c.Refresh.CronExpr = strings.TrimSpace(settings.RefreshCron)
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore keeps the current settings and persists every update.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// UpdateRuntimeSettings validates, writes and applies next. A token of
// "********" keeps the current one.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next.TelegramBotToken == "********" {
		next.TelegramBotToken = s.current.TelegramBotToken
	}
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = next
	return next, nil
}
