package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/echosoul/backend/internal/core"
	"github.com/echosoul/backend/internal/service/ai"
	redisx "github.com/echosoul/backend/pkg/redis"
)

const (
	ClassifierHTTP = "http"
	ClassifierLLM  = "llm"

	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config 聚合整个服务的配置项。
type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"http://localhost:3000"`

	LLM        ai.ProviderConfig
	Classifier ClassifierConfig
	Store      StoreConfig
	Redis      redisx.Config

	HistoryWindow      int    `envconfig:"CHAT_HISTORY_WINDOW" default:"5"`
	EmotionLogCapacity int    `envconfig:"EMOTION_LOG_CAPACITY" default:"10"`
	EmotionLogPath     string `envconfig:"EMOTION_LOG_PATH"`
}

// ClassifierConfig 描述情绪分类器配置。
type ClassifierConfig struct {
	Backend           string        `envconfig:"CLASSIFIER_BACKEND" default:"http"`
	URL               string        `envconfig:"CLASSIFIER_URL"`
	Token             string        `envconfig:"CLASSIFIER_TOKEN"`
	Timeout           time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"30s"`
	MaxRetries        int           `envconfig:"CLASSIFIER_MAX_RETRIES" default:"2"`
	RetryDelay        time.Duration `envconfig:"CLASSIFIER_RETRY_DELAY" default:"500ms"`
	OverrideThreshold float64       `envconfig:"CLASSIFIER_OVERRIDE_THRESHOLD" default:"0.20"`
}

// StoreConfig 描述对话存储配置。
type StoreConfig struct {
	Backend    string `envconfig:"STORE_BACKEND" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/echosoul.db"`
}

// Load 从环境变量加载并校验配置。
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Environment 返回解析后的运行环境。
func (c *Config) Environment() core.Environment {
	return core.ParseEnvironment(strings.ToLower(strings.TrimSpace(c.AppEnv)))
}

// Addr 返回 HTTP 监听地址。
func (c *Config) Addr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// Validate 检查配置组合是否可用。
func (c *Config) Validate() error {
	var errs []error

	if strings.Contains(strings.TrimSpace(c.Port), " ") {
		errs = append(errs, fmt.Errorf("invalid PORT value: %q", c.Port))
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Classifier.Backend) {
	case ClassifierHTTP:
		if strings.TrimSpace(c.Classifier.URL) == "" {
			errs = append(errs, errors.New("CLASSIFIER_URL is required when CLASSIFIER_BACKEND=http"))
		}
	case ClassifierLLM:
	default:
		errs = append(errs, fmt.Errorf("unsupported CLASSIFIER_BACKEND %q", c.Classifier.Backend))
	}
	if c.Classifier.OverrideThreshold <= 0 || c.Classifier.OverrideThreshold >= 1 {
		errs = append(errs, fmt.Errorf("CLASSIFIER_OVERRIDE_THRESHOLD must be in (0, 1), got %v", c.Classifier.OverrideThreshold))
	}
	if c.Classifier.MaxRetries < 0 {
		errs = append(errs, errors.New("CLASSIFIER_MAX_RETRIES must not be negative"))
	}

	switch strings.ToLower(c.Store.Backend) {
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_BACKEND=sqlite"))
		}
	case StoreRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_BACKEND %q", c.Store.Backend))
	}

	if c.HistoryWindow <= 0 {
		errs = append(errs, errors.New("CHAT_HISTORY_WINDOW must be positive"))
	}
	if c.EmotionLogCapacity <= 0 {
		errs = append(errs, errors.New("EMOTION_LOG_CAPACITY must be positive"))
	}

	return errors.Join(errs...)
}
