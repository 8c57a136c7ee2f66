package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	analysis "github.com/echosoul/backend/internal/analysis/emotion"
	"github.com/echosoul/backend/internal/model/emotion"
)

// ErrUnavailable 表示底层情绪模型不可用，没有本地兜底。
var ErrUnavailable = errors.New("emotion classifier unavailable")

// LabelScore is one entry of a text-classification response.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Model is the black-box classifier.
type Model interface {
	Predict(ctx context.Context, text string) ([]LabelScore, error)
}

// DefaultLabels maps the fine-tuned model's opaque indices onto emotion names.
var DefaultLabels = map[string]emotion.Emotion{
	"LABEL_0": emotion.Joy,
	"LABEL_1": emotion.Sadness,
	"LABEL_2": emotion.Anger,
	"LABEL_3": emotion.Fear,
}

// Result 是一次分类的输出。
type Result struct {
	Emotion  emotion.Emotion
	Scores   emotion.Distribution
	Baseline emotion.Emotion
	Override string
}

// Service 调用模型并叠加关键词覆盖规则。
type Service struct {
	model     Model
	overrides *analysis.Overrides
	labels    map[string]emotion.Emotion
}

// Option customises a Service.
type Option func(*Service)

// WithLabels replaces the index table.
func WithLabels(labels map[string]emotion.Emotion) Option {
	return func(s *Service) {
		s.labels = labels
	}
}

// NewService 创建分类服务。overrides 为空时使用默认规则与阈值。
func NewService(m Model, overrides *analysis.Overrides, opts ...Option) (*Service, error) {
	if m == nil {
		return nil, errors.New("classifier model is required")
	}
	if overrides == nil {
		overrides = analysis.NewOverrides(nil, analysis.DefaultThreshold)
	}
	svc := &Service{
		model:     m,
		overrides: overrides,
		labels:    DefaultLabels,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Classify scores normalized text and applies override rules against raw.
func (s *Service) Classify(ctx context.Context, raw, normalized string) (Result, error) {
	if strings.TrimSpace(normalized) == "" {
		return Result{Emotion: emotion.Unknown, Baseline: emotion.Unknown, Scores: emotion.Distribution{}}, nil
	}

	predictions, err := s.model.Predict(ctx, normalized)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	scores := make(emotion.Distribution, len(emotion.Known))
	baseline := emotion.Unknown
	bestScore := -1.0
	for _, p := range predictions {
		label := s.resolve(p.Label)
		if p.Score > bestScore {
			bestScore = p.Score
			baseline = label
		}
		if label == emotion.Unknown {
			continue
		}
		if current, ok := scores[label]; !ok || p.Score > current {
			scores[label] = p.Score
		}
	}

	decision := s.overrides.Apply(raw, baseline, scores)
	return Result{
		Emotion:  decision.Emotion,
		Scores:   scores,
		Baseline: decision.Baseline,
		Override: decision.Rule,
	}, nil
}

func (s *Service) resolve(label string) emotion.Emotion {
	if e, ok := s.labels[strings.ToUpper(strings.TrimSpace(label))]; ok {
		return e
	}
	return emotion.Parse(label)
}
