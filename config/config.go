package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config is the effective service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	STT     STTConfig     `mapstructure:"stt" yaml:"stt"`
	Memory  MemoryConfig  `mapstructure:"memory" yaml:"memory"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// BrowserConfig selects and tunes the automation engine.
type BrowserConfig struct {
	Engine         string        `mapstructure:"engine" yaml:"engine"` // playwright | rod
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"` // CDP websocket of a remote browser
	BinPath        string        `mapstructure:"bin_path" yaml:"bin_path"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	ScrollAmount   int           `mapstructure:"scroll_amount" yaml:"scroll_amount"`
	MaxWait        time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	ContentTokens  int           `mapstructure:"content_tokens" yaml:"content_tokens"`

	BrowserbaseAPIKey    string `mapstructure:"browserbase_api_key" yaml:"-"`
	BrowserbaseProjectID string `mapstructure:"browserbase_project_id" yaml:"browserbase_project_id"`
	BrowserbaseURL       string `mapstructure:"browserbase_url" yaml:"browserbase_url"`
}

// RemoteEndpoint returns the CDP endpoint to connect to, or "" to launch locally.
func (b BrowserConfig) RemoteEndpoint() string {
	if b.Endpoint != "" {
		return b.Endpoint
	}
	if b.BrowserbaseAPIKey != "" {
		ep := "wss://connect.browserbase.com?apiKey=" + b.BrowserbaseAPIKey
		if b.BrowserbaseProjectID != "" {
			ep += "&projectId=" + b.BrowserbaseProjectID
		}
		return ep
	}
	return ""
}

// HostedSessions reports whether sessions are created through the
// Browserbase API, which needs both the key and the project id.
func (b BrowserConfig) HostedSessions() bool {
	return b.Endpoint == "" && b.BrowserbaseAPIKey != "" && b.BrowserbaseProjectID != ""
}

type LLMConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"` // claude | openai | gemini
	Model             string        `mapstructure:"model" yaml:"model"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AnthropicAPIKey   string        `mapstructure:"anthropic_api_key" yaml:"-"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key" yaml:"-"`
	GeminiAPIKey      string        `mapstructure:"gemini_api_key" yaml:"-"`
}

type STTConfig struct {
	Provider       string `mapstructure:"provider" yaml:"provider"` // deepgram | whisper
	Model          string `mapstructure:"model" yaml:"model"`
	Language       string `mapstructure:"language" yaml:"language"`
	DeepgramAPIKey string `mapstructure:"deepgram_api_key" yaml:"-"`
	DeepgramURL    string `mapstructure:"deepgram_url" yaml:"deepgram_url"`
}

type MemoryConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"` // none | inmemory | postgres | mem0
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`
	PostgresDSN  string `mapstructure:"postgres_dsn" yaml:"-"`
	Mem0APIKey   string `mapstructure:"mem0_api_key" yaml:"-"`
	Mem0URL      string `mapstructure:"mem0_url" yaml:"mem0_url"`
}

// SessionConfig governs the idle reaper; a zero IdleTimeout disables it.
type SessionConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReapSchedule string        `mapstructure:"reap_schedule" yaml:"reap_schedule"`
}

var (
	instance *Config
	once     sync.Once
)

// GetInstance loads the configuration once from file and environment.
func GetInstance() *Config {
	once.Do(func() {
		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range SearchPaths() {
			v.AddConfigPath(path)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				panic(fmt.Sprintf("Fatal error reading config file: %s", err))
			}
		}
		cfg, err := Load(v)
		if err != nil {
			panic(fmt.Sprintf("Fatal error decoding config: %s", err))
		}
		instance = cfg
	})
	return instance
}

// SearchPaths lists the directories config.yaml is looked up in, in order.
func SearchPaths() []string {
	return []string{
		".",
		filepath.Join(xdg.ConfigHome, "voicepilot"),
		filepath.Join(xdg.Home, ".voicepilot"),
		"/etc/voicepilot",
	}
}

// Load applies defaults and environment bindings to v and decodes it.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Browser.Engine = strings.ToLower(cfg.Browser.Engine)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.STT.Provider = strings.ToLower(cfg.STT.Provider)
	cfg.Memory.Backend = strings.ToLower(cfg.Memory.Backend)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 28090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("browser.engine", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.default_timeout", 15*time.Second)
	v.SetDefault("browser.scroll_amount", 500)
	v.SetDefault("browser.max_wait", 30*time.Second)
	v.SetDefault("browser.content_tokens", 6000)
	v.SetDefault("browser.browserbase_url", "https://api.browserbase.com")

	v.SetDefault("llm.provider", "claude")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("stt.provider", "deepgram")
	v.SetDefault("stt.model", "nova-2")
	v.SetDefault("stt.language", "en")
	v.SetDefault("stt.deepgram_url", "https://api.deepgram.com/v1/listen")

	v.SetDefault("memory.backend", "")
	v.SetDefault("memory.history_limit", 50)
	v.SetDefault("memory.mem0_url", "https://api.mem0.ai")

	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("session.reap_schedule", "@every 1m")
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.file", "LOG_FILE")
	_ = v.BindEnv("browser.engine", "BROWSER_ENGINE")
	_ = v.BindEnv("browser.headless", "BROWSER_HEADLESS")
	_ = v.BindEnv("browser.endpoint", "BROWSER_ENDPOINT")
	_ = v.BindEnv("browser.bin_path", "BROWSER_BIN")
	_ = v.BindEnv("browser.browserbase_api_key", "BROWSERBASE_API_KEY")
	_ = v.BindEnv("browser.browserbase_project_id", "BROWSERBASE_PROJECT_ID")
	_ = v.BindEnv("llm.provider", "LLM_PROVIDER")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("llm.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("stt.provider", "STT_PROVIDER")
	_ = v.BindEnv("stt.deepgram_api_key", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("memory.backend", "MEMORY_BACKEND")
	_ = v.BindEnv("memory.postgres_dsn", "DATABASE_URL")
	_ = v.BindEnv("memory.mem0_api_key", "MEM0_API_KEY")
	_ = v.BindEnv("session.idle_timeout", "SESSION_IDLE_TIMEOUT")
}

// KeyStatus reports which credentials are configured without exposing them.
func (c *Config) KeyStatus() map[string]bool {
	return map[string]bool{
		"ANTHROPIC_API_KEY":   c.LLM.AnthropicAPIKey != "",
		"OPENAI_API_KEY":      c.LLM.OpenAIAPIKey != "",
		"GEMINI_API_KEY":      c.LLM.GeminiAPIKey != "",
		"DEEPGRAM_API_KEY":    c.STT.DeepgramAPIKey != "",
		"MEM0_API_KEY":        c.Memory.Mem0APIKey != "",
		"DATABASE_URL":        c.Memory.PostgresDSN != "",
		"BROWSERBASE_API_KEY": c.Browser.BrowserbaseAPIKey != "",
	}
}
