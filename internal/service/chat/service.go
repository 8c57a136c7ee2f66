package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echosoul/backend/internal/core/errx"
	"github.com/echosoul/backend/internal/emotionlog"
	"github.com/echosoul/backend/internal/metrics"
	"github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
	"github.com/echosoul/backend/internal/service/ai"
	"github.com/echosoul/backend/internal/service/classifier"
	"github.com/echosoul/backend/internal/store"
	logx "github.com/echosoul/backend/pkg/logger"
)

// DefaultHistoryWindow is how many previous turns the reply prompt sees.
const DefaultHistoryWindow = 5

var ErrMessageRequired = errors.New("message is required")

type Normalizer interface {
	Normalize(text string) string
}

type Classifier interface {
	Classify(ctx context.Context, raw, normalized string) (classifier.Result, error)
}

type Responder interface {
	Respond(ctx context.Context, query string, emo emotion.Emotion, history []chat.Message) ai.Reply
}

// Dependencies wires the pipeline collaborators. Emotions and Metrics are optional.
type Dependencies struct {
	Normalizer Normalizer
	Classifier Classifier
	Responder  Responder
	Store      store.Store
	Emotions   *emotionlog.Ring
	Metrics    *metrics.Metrics
}

// Service runs one chat turn: normalize, classify, read the history window,
// generate, then persist.
type Service struct {
	deps   Dependencies
	window int
}

// NewService validates deps. window <= 0 uses DefaultHistoryWindow.
func NewService(deps Dependencies, window int) (*Service, error) {
	switch {
	case deps.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Responder == nil:
		return nil, errors.New("responder is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Service{deps: deps, window: window}, nil
}

// TurnRequest is one inbound user message. MessageID lets clients retry a turn
// without duplicating it; the server assigns one when empty.
type TurnRequest struct {
	Message        string
	ConversationID string
	MessageID      string
}

// TurnResult is what the client sees for a turn.
type TurnResult struct {
	Response       string               `json:"response"`
	Emotion        emotion.Emotion      `json:"emotion"`
	EmotionScores  emotion.Distribution `json:"emotion_scores"`
	ConversationID string               `json:"chat_id"`
	MessageID      string               `json:"message_id"`
}

// Process handles a chat turn. Errors are errx.AppErrors: 400 for an empty
// message, 503 when the classifier is down, 500 for store failures.
func (s *Service) Process(ctx context.Context, req TurnRequest) (TurnResult, error) {
	raw := req.Message
	if strings.TrimSpace(raw) == "" {
		return TurnResult{}, errx.New(ErrMessageRequired, http.StatusBadRequest, ErrMessageRequired.Error())
	}

	normalized := s.deps.Normalizer.Normalize(raw)

	started := time.Now()
	classified, err := s.deps.Classifier.Classify(ctx, raw, normalized)
	s.deps.Metrics.ObserveClassification(time.Since(started))
	if err != nil {
		logx.Error().Err(err).Str("chat_id", req.ConversationID).Msg("emotion classification failed")
		return TurnResult{}, errx.New(err, http.StatusServiceUnavailable, errx.ClassifierMessage)
	}
	if classified.Override != "" {
		s.deps.Metrics.ObserveOverride(classified.Override)
		logx.Debug().Str("rule", classified.Override).Str("baseline", classified.Baseline.String()).
			Str("emotion", classified.Emotion.String()).Msg("emotion override applied")
	}
	s.recordEmotion(classified.Emotion)

	var history []chat.Message
	if req.ConversationID != "" {
		history, err = s.deps.Store.RecentWindow(ctx, req.ConversationID, s.window)
		if err != nil {
			logx.Error().Err(err).Str("chat_id", req.ConversationID).Msg("failed to load history window")
			return TurnResult{}, err
		}
	}

	reply := s.deps.Responder.Respond(ctx, normalized, classified.Emotion, history)
	s.deps.Metrics.ObserveGeneration(string(reply.Outcome))

	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	stored, err := s.deps.Store.AppendMessage(ctx, req.ConversationID, chat.Message{
		ID:            messageID,
		UserInput:     raw,
		BotResponse:   reply.Text,
		Emotion:       classified.Emotion,
		EmotionScores: classified.Scores,
	})
	if err != nil {
		logx.Error().Err(err).Str("chat_id", req.ConversationID).Msg("failed to save chat turn")
		return TurnResult{}, err
	}
	s.deps.Metrics.ObserveTurn(stored.Emotion.String())

	logx.Info().Str("chat_id", stored.ConversationID).Str("emotion", stored.Emotion.String()).
		Str("outcome", string(reply.Outcome)).Int("history", len(history)).Msg("chat turn processed")

	scores := stored.EmotionScores
	if scores == nil {
		scores = emotion.Distribution{}
	}
	return TurnResult{
		Response:       stored.BotResponse,
		Emotion:        stored.Emotion,
		EmotionScores:  scores,
		ConversationID: stored.ConversationID,
		MessageID:      stored.ID,
	}, nil
}

// Messages returns the full chronological history of a conversation.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return s.deps.Store.FullHistory(ctx, conversationID)
}

// Conversations lists conversations, most recently updated first.
func (s *Service) Conversations(ctx context.Context, limit int) ([]chat.Conversation, error) {
	return s.deps.Store.ListConversations(ctx, limit)
}

// Delete removes a conversation and all of its messages.
func (s *Service) Delete(ctx context.Context, conversationID string) error {
	if err := s.deps.Store.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	logx.Info().Str("chat_id", conversationID).Msg("chat deleted")
	return nil
}

// RecentEmotions returns the rolling emotion log, oldest first.
func (s *Service) RecentEmotions() []emotionlog.Entry {
	if s.deps.Emotions == nil {
		return []emotionlog.Entry{}
	}
	return s.deps.Emotions.Snapshot()
}

func (s *Service) recordEmotion(e emotion.Emotion) {
	if s.deps.Emotions == nil {
		return
	}
	if err := s.deps.Emotions.Add(emotionlog.Entry{Emotion: e}); err != nil {
		logx.Warn().Err(err).Msg("failed to persist emotion log snapshot")
	}
}
