package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// ProviderConfig 描述大模型供应商与模型参数。
type ProviderConfig struct {
	Provider       string        `envconfig:"LLM_PROVIDER" default:"gemini"`
	ChatModel      string        `envconfig:"LLM_CHAT_MODEL" default:"gemini-1.5-flash"`
	RecommendModel string        `envconfig:"LLM_RECOMMEND_MODEL" default:"gemini-1.5-pro"`
	Temperature    *float32      `envconfig:"LLM_TEMPERATURE"`
	MaxTokens      *int          `envconfig:"LLM_MAX_TOKENS"`
	Timeout        time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`

	ArkAPIKey    string `envconfig:"ARK_API_KEY"`
	ArkAccessKey string `envconfig:"ARK_ACCESS_KEY"`
	ArkSecretKey string `envconfig:"ARK_SECRET_KEY"`
	ArkBaseURL   string `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `envconfig:"ARK_REGION" default:"cn-beijing"`
}

// Validate 检查所选供应商的凭证是否齐全。
func (c ProviderConfig) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case ProviderArk:
		if c.ArkAPIKey == "" && (c.ArkAccessKey == "" || c.ArkSecretKey == "") {
			return errors.New("ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY is required when LLM_PROVIDER=ark")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.Provider)
	}
	if strings.TrimSpace(c.ChatModel) == "" || strings.TrimSpace(c.RecommendModel) == "" {
		return errors.New("LLM_CHAT_MODEL and LLM_RECOMMEND_MODEL must not be empty")
	}
	return nil
}

// NewChatModel 使用配置创建指定名称的模型实例。
func (c ProviderConfig) NewChatModel(ctx context.Context, modelName string) (model.ChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(c.Provider) {
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.ArkBaseURL,
			Region:      c.ArkRegion,
			APIKey:      c.ArkAPIKey,
			AccessKey:   c.ArkAccessKey,
			SecretKey:   c.ArkSecretKey,
			Model:       modelName,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
	default:
		clientCfg := &genai.ClientConfig{
			APIKey:  c.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if c.GeminiBaseURL != "" {
			clientCfg.HTTPOptions.BaseURL = c.GeminiBaseURL
		}

		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, fmt.Errorf("error creating Gemini client: %w", err)
		}

		return gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       modelName,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		})
	}
}
