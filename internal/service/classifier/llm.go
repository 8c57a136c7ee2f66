package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/echosoul/backend/internal/model/emotion"
)

// LLMModel 通过对话大模型打分，适用于没有专用分类端点的部署。
type LLMModel struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMModel compiles the scoring chain on top of chatModel.
func NewLLMModel(ctx context.Context, chatModel model.ChatModel) (*LLMModel, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(scoringSystemPrompt),
		schema.UserMessage("Text: {text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion scoring chain: %w", err)
	}
	return &LLMModel{runnable: runnable}, nil
}

// Predict implements Model. Labels are emotion names, not indices.
func (m *LLMModel) Predict(ctx context.Context, text string) ([]LabelScore, error) {
	msg, err := m.runnable.Invoke(ctx, map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, errors.New("empty scoring response")
	}
	return parseScoringOutput(msg.Content)
}

func parseScoringOutput(content string) ([]LabelScore, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	raw := map[string]float64{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err != nil {
		return nil, err
	}

	scores := make([]LabelScore, 0, len(emotion.Known))
	for _, e := range emotion.Known {
		score, ok := raw[string(e)]
		if !ok {
			continue
		}
		scores = append(scores, LabelScore{Label: string(e), Score: clampScore(score)})
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no known emotion scores in response")
	}
	return scores, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const scoringSystemPrompt = "You rate the emotional tone of a short user message. " +
	"Reply with a single JSON object and nothing else. The object has exactly the keys joy, sadness, anger and fear, " +
	"each mapped to a confidence between 0 and 1."
