package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// Config holds all application configuration.
// Values come from the environment, optionally seeded from a .env file in
// the working directory.
//
// Environment Variables:
// HTTP:
// - HTTP_ADDR: listen address (default: :8080)
// - BASE_PATH: path prefix the app is served under (default: /)
// - UI_STATIC_DIR: built browser UI (default: /app/web)
// - UI_ENABLED: serve the browser UI (default: true)
//
// Source:
// - SOURCE_BASE_URL: where <lang>.yml files are published
// - SOURCE_LANGUAGE: canonical source language (default: en)
// - LANGS_DIR: local mirror written by refresh (default: $DATA_DIR/langs)
//
// Telegram:
// - TELEGRAM_API_BASE (default: https://api.telegram.org)
// - TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID: upload target
// - TELEGRAM_TIMEOUT: seconds (default: 30)
//
// Translation:
// - TRANSLATION_ETA_SECONDS: estimated seconds per key shown to users (default: 30)
// - TRANSLATION_WARNING_ENABLED, TRANSLATION_WARNING_TITLE,
//   TRANSLATION_WARNING_DESCRIPTION, TRANSLATION_WARNING_VARIANT: banner above the editor
//
// Storage:
// - DATA_DIR: database and mirror location (default: /app/data)
// - EPHEMERAL: keep sessions in memory only (default: false)
//
// Refresh:
// - REFRESH_CRON: language refresh schedule, empty disables (default: 0 3 * * *)
// - REFRESH_CONCURRENCY: parallel downloads (default: 8)
//
// System:
// - LOG_LEVEL: DEBUG, INFO, WARN, ERROR (default: INFO)
// - LOG_FILE: append logs to this file instead of stdout
// - UI_LOCALE: locale for notifications (default: en)
type Config struct {
	AppName     string            `json:"app_name"`
	HTTP        HTTPConfig        `json:"http"`
	Source      SourceConfig      `json:"source"`
	Telegram    TelegramConfig    `json:"telegram"`
	Translation TranslationConfig `json:"translation"`
	Storage     StorageConfig     `json:"storage"`
	Refresh     RefreshConfig     `json:"refresh"`
	Links       LinksConfig       `json:"links"`
	System      SystemConfig      `json:"system"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	BasePath    string `json:"base_path"`
	UIStaticDir string `json:"ui_static_dir"`
	UIEnabled   bool   `json:"ui_enabled"`
}

type SourceConfig struct {
	BaseURL  string `json:"base_url"`
	Language string `json:"language"`
	LangsDir string `json:"langs_dir"`
}

type TelegramConfig struct {
	APIBase  string        `json:"api_base"`
	BotToken string        `json:"-"`
	ChatID   string        `json:"chat_id"`
	Timeout  time.Duration `json:"timeout"`
}

type TranslationConfig struct {
	ETASeconds int           `json:"eta_seconds"`
	Warning    WarningConfig `json:"warning"`
}

// WarningConfig is the banner shown above the translation editor.
type WarningConfig struct {
	Enabled     bool   `json:"enabled"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}

type StorageConfig struct {
	DataDir   string `json:"data_dir"`
	Ephemeral bool   `json:"ephemeral"`
}

type RefreshConfig struct {
	CronExpr    string `json:"cron_expr"`
	Concurrency int    `json:"concurrency"`
}

type LinksConfig struct {
	SourceRepo     string `json:"source_repo"`
	TranslatorRepo string `json:"translator_repo"`
	Telegram       string `json:"telegram"`
	GitHub         string `json:"github"`
}

type SystemConfig struct {
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
	UILocale string `json:"ui_locale"`
}

const (
	DefaultSourceBaseURL = "https://raw.githubusercontent.com/TheTeamVivek/YukkiMusic/master/strings/langs"
	DefaultWarningTitle  = "⚠️ IMPORTANT:"
	DefaultWarningText   = "Do not edit content inside curly braces {...} - keep them as is. You can use Telegram-supported HTML formatting like <b>bold</b>, <i>italic</i>, <code>code</code>."
	dbFileName           = "translateit.db"
)

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	dataDir := getEnvString("DATA_DIR", "/app/data")
	config := &Config{
		AppName: "translateit",
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			BasePath:    NormalizeBasePath(getEnvString("BASE_PATH", "/")),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
		},
		Source: SourceConfig{
			BaseURL:  getEnvString("SOURCE_BASE_URL", DefaultSourceBaseURL),
			Language: getEnvString("SOURCE_LANGUAGE", "en"),
			LangsDir: getEnvString("LANGS_DIR", filepath.Join(dataDir, "langs")),
		},
		Telegram: TelegramConfig{
			APIBase:  getEnvString("TELEGRAM_API_BASE", "https://api.telegram.org"),
			BotToken: getEnvString("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvString("TELEGRAM_CHAT_ID", ""),
			Timeout:  time.Duration(getEnvInt("TELEGRAM_TIMEOUT", 30)) * time.Second,
		},
		Translation: TranslationConfig{
			ETASeconds: getEnvInt("TRANSLATION_ETA_SECONDS", 30),
			Warning: WarningConfig{
				Enabled:     getEnvBool("TRANSLATION_WARNING_ENABLED", true),
				Title:       getEnvString("TRANSLATION_WARNING_TITLE", DefaultWarningTitle),
				Description: getEnvString("TRANSLATION_WARNING_DESCRIPTION", DefaultWarningText),
				Variant:     getEnvString("TRANSLATION_WARNING_VARIANT", "destructive"),
			},
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			Ephemeral: getEnvBool("EPHEMERAL", false),
		},
		Refresh: RefreshConfig{
			CronExpr:    getEnvStringAllowEmpty("REFRESH_CRON", "0 3 * * *"),
			Concurrency: getEnvInt("REFRESH_CONCURRENCY", 8),
		},
		Links: LinksConfig{
			SourceRepo:     getEnvString("LINK_SOURCE_REPO", "https://github.com/TheTeamVivek/YukkiMusic"),
			TranslatorRepo: getEnvString("LINK_TRANSLATOR_REPO", "https://github.com/Vivekkumar-IN/translateit"),
			Telegram:       getEnvString("LINK_TELEGRAM", "https://t.me/TheTeamVivek"),
			GitHub:         getEnvString("LINK_GITHUB", "https://github.com/TheTeamVivek/YukkiMusic"),
		},
		System: SystemConfig{
			LogLevel: getEnvString("LOG_LEVEL", "INFO"),
			LogFile:  getEnvString("LOG_FILE", ""),
			UILocale: getEnvString("UI_LOCALE", "en"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: addr=%s base_path=%s source=%s data_dir=%s ephemeral=%t telegram=%t",
		config.HTTP.Addr, config.HTTP.BasePath, config.Source.BaseURL, config.Storage.DataDir,
		config.Storage.Ephemeral, config.Telegram.BotToken != "" && config.Telegram.ChatID != "")
	return config, nil
}

// DBPath is the SQLite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, dbFileName)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return fmt.Errorf("SOURCE_BASE_URL is required")
	}
	if strings.TrimSpace(c.Source.Language) == "" {
		return fmt.Errorf("SOURCE_LANGUAGE is required")
	}
	if c.Translation.ETASeconds < 0 {
		return fmt.Errorf("TRANSLATION_ETA_SECONDS must not be negative")
	}
	if c.Refresh.Concurrency <= 0 {
		return fmt.Errorf("REFRESH_CONCURRENCY must be positive")
	}
	if !c.Storage.Ephemeral && strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required unless EPHEMERAL is set")
	}
	return nil
}

// NormalizeBasePath returns "/" or a path with a leading and no trailing slash.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return "/" + p
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvStringAllowEmpty treats a variable set to "" as an explicit value.
func getEnvStringAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
