package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/echosoul/backend/internal/core/errx"
	"github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/recommendation"
	"github.com/echosoul/backend/internal/store"
	logx "github.com/echosoul/backend/pkg/logger"
)

// ErrGenerationFailed wraps model call failures during recommendation synthesis.
var ErrGenerationFailed = errors.New("recommendation generation failed")

// GenerationFailedMessage is the client-facing text for ErrGenerationFailed.
const GenerationFailedMessage = "Failed to process chat and generate recommendations"

const recommendPrompt = `Based on the following chat history, recommend music, movies, books and activities, and give a brief emotion summary of the conversation.

Chat History:
{history}

Provide:
1. Emotion Summary
2. Music Recommendations (5 items)
3. Movie Recommendations (5 items)
4. Book Recommendations (5 items)
5. Activity Suggestions (5 items)

Answer with a single JSON object and no markdown formatting. Use the keys emotion_summary (string), music_recommendations, movie_recommendations, book_recommendations and activity_suggestions (each a list of strings).`

// HistorySource supplies the full chronological history of a conversation.
type HistorySource interface {
	FullHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// Recommender synthesizes end-of-conversation recommendations.
type Recommender struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	history HistorySource
	timeout time.Duration
}

// NewRecommender compiles the recommendation chain.
func NewRecommender(ctx context.Context, chatModel model.ChatModel, history HistorySource, timeout time.Duration) (*Recommender, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if history == nil {
		return nil, errors.New("history source is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage(recommendPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile recommendation chain: %w", err)
	}

	return &Recommender{chain: runnable, history: history, timeout: timeout}, nil
}

// Recommend reads the whole conversation and asks the model once.
//
// Errors carry an errx.AppError status: 404 for unknown or empty
// conversations, 500 for model failures and for a *ParseError.
func (r *Recommender) Recommend(ctx context.Context, conversationID string) (*recommendation.Recommendation, error) {
	messages, err := r.history.FullHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, store.NotFound(conversationID)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	msg, err := r.chain.Invoke(ctx, map[string]any{"history": FormatHistory(messages)})
	if err != nil {
		logx.Error().Err(err).Str("chat_id", conversationID).Msg("recommendation model call failed")
		return nil, errx.New(fmt.Errorf("%w: %w", ErrGenerationFailed, err), http.StatusInternalServerError, GenerationFailedMessage)
	}

	content := ""
	if msg != nil {
		content = msg.Content
	}

	raw, err := ExtractJSON(content)
	if err == nil {
		var rec *recommendation.Recommendation
		if rec, err = ParseRecommendation(raw); err == nil {
			logx.Info().Str("chat_id", conversationID).Int("messages", len(messages)).Msg("recommendations generated")
			return rec, nil
		}
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		logx.Error().Str("chat_id", conversationID).Str("diagnostic", parseErr.Diagnostic).
			Str("raw", parseErr.Raw).Msg("recommendation response parse failed")
		return nil, errx.New(parseErr, http.StatusInternalServerError, "Failed to parse API response: "+parseErr.Diagnostic)
	}
	return nil, err
}
