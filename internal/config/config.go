package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type SheetBackend string

const (
	SheetGoogle SheetBackend = "google"
	SheetXLSX   SheetBackend = "xlsx"
	SheetMemory SheetBackend = "memory"
)

type PropsBackend string

const (
	PropsFile  PropsBackend = "file"
	PropsRedis PropsBackend = "redis"
)

type Config struct {
	// LINE
	LineAccessToken   string `env:"LINE_CHANNEL_ACCESS_TOKEN"`
	LineChannelSecret string `env:"LINE_CHANNEL_SECRET"`
	LineAPIBaseURL    string `env:"LINE_API_BASE_URL" envDefault:"https://api.line.me"`
	BotUserID         string `env:"BOT_USER_ID"`

	// Telegram (optional second channel)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	QuipPrompt  string `env:"QUIP_PROMPT" envDefault:"あなたはLINEBOTです。上記の発言に1行でかわいくツッコんでください！"`
	TitlePrompt string `env:"TITLE_PROMPT" envDefault:"あなたはタイトル命名AIです。20文字以内で今日のパワーワードを１つピックアップして！(タイトルだけを返却して)"`
	TitleMaxLen int    `env:"TITLE_MAX_LEN" envDefault:"20"`

	// Notion
	NotionToken         string `env:"NOTION_TOKEN"`
	NotionDatabaseID    string `env:"NOTION_DATABASE_ID"`
	NotionBaseURL       string `env:"NOTION_BASE_URL" envDefault:"https://api.notion.com"`
	NotionAPIVersion    string `env:"NOTION_API_VERSION" envDefault:"2022-06-28"`
	NotionTitleProperty string `env:"NOTION_TITLE_PROPERTY" envDefault:"title"`
	NotionLabelProperty string `env:"NOTION_LABEL_PROPERTY" envDefault:"ラベル"`
	NotionMemoProperty  string `env:"NOTION_MEMO_PROPERTY" envDefault:"作成者メモ"`
	DailyLabel          string `env:"DAILY_LABEL" envDefault:"今日のおきもち"`
	MonthlyLabel        string `env:"MONTHLY_LABEL" envDefault:"ひと月のおきもち"`
	FooterURL           string `env:"FOOTER_URL" envDefault:"https://line.me/R/ti/p/@838dxysu"`

	// Storage
	SheetBackend          SheetBackend `env:"SHEET_BACKEND" envDefault:"xlsx"`
	SpreadsheetID         string       `env:"SPREADSHEET_ID"`
	GoogleCredentialsJSON string       `env:"GOOGLE_CREDENTIALS_JSON"`
	GoogleRefreshToken    string       `env:"GOOGLE_REFRESH_TOKEN"`
	XLSXPath              string       `env:"XLSX_PATH" envDefault:"data/omochi.xlsx"`
	MessageSheet          string       `env:"MESSAGE_SHEET" envDefault:"おもちログ"`
	EventSheet            string       `env:"EVENT_SHEET" envDefault:"processed_events"`
	UserSheet             string       `env:"USER_SHEET" envDefault:"ユーザー"`

	PropsBackend  PropsBackend `env:"PROPS_BACKEND" envDefault:"file"`
	PropsFilePath string       `env:"PROPS_FILE_PATH" envDefault:"data/properties.json"`
	RedisURL      string       `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix   string       `env:"REDIS_PREFIX" envDefault:"omochi:"`

	// Time and scheduling
	TimeZone    string        `env:"TIMEZONE" envDefault:"Asia/Tokyo"`
	HourlyCron  string        `env:"HOURLY_CRON" envDefault:"5 * * * *"`
	MonthlyCron string        `env:"MONTHLY_CRON" envDefault:"30 * 1-7 * *"`
	SyncTimeout time.Duration `env:"SYNC_TIMEOUT" envDefault:"5m"`
	DedupWindow time.Duration `env:"DEDUP_WINDOW" envDefault:"24h"`

	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TitleMaxLen <= 0 {
		cfg.TitleMaxLen = 20
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves TimeZone. Day and month windows depend on it, so an
// unknown name is an error.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// NotionConfigured reports whether the document store can be used at all.
func (c *Config) NotionConfigured() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}
