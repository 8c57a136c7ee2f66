package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
	logx "github.com/echosoul/backend/pkg/logger"
)

// User-facing fallback texts.
const (
	RefusalReply   = "I'm sorry, I can't provide a response to that input."
	MalformedReply = "Sorry, there was an error processing the response."
	FailedReply    = "Sorry, I couldn't generate a response at the moment."
)

// Outcome classifies how a reply was produced.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeRefused   Outcome = "refused"
	OutcomeMalformed Outcome = "malformed"
	OutcomeFailed    Outcome = "failed"
)

// Reply is always safe to show to the user.
type Reply struct {
	Text    string
	Outcome Outcome
}

const replyPrompt = "Chat History:\n{history}\n\n# Current Emotion: {emotion}\nUser: {query}\nBot:"

// safetyFinishReasons covers the finish reasons providers use for blocked output.
var safetyFinishReasons = []string{"safety", "content_filter", "prohibited_content", "blocklist", "spii"}

// promptBlockMarkers show up in invoke errors when the provider rejects the
// prompt itself and returns no candidates (Gemini prompt feedback).
var promptBlockMarkers = []string{"block_reason", "blockreason", "prompt blocked", "prompt was blocked"}

// Generator renders the reply prompt and calls the chat model.
type Generator struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
}

// NewGenerator compiles the reply chain. timeout <= 0 disables the per-call deadline.
func NewGenerator(ctx context.Context, chatModel model.ChatModel, timeout time.Duration) (*Generator, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage(replyPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Generator{chain: runnable, timeout: timeout}, nil
}

// Respond never fails: model errors, refusals and malformed responses map to
// fixed fallback texts and are logged with distinct failure tags.
func (g *Generator) Respond(ctx context.Context, query string, emo emotion.Emotion, history []chat.Message) Reply {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	input := map[string]any{
		"history": FormatHistory(history),
		"emotion": emo.String(),
		"query":   query,
	}

	msg, err := g.chain.Invoke(ctx, input)
	if err != nil {
		if promptBlocked(err) {
			logx.Warn().Err(err).Str("failure", "prompt_blocked").Msg("prompt rejected for safety")
			return Reply{Text: RefusalReply, Outcome: OutcomeRefused}
		}
		logx.Error().Err(err).Str("failure", "model_error").Msg("reply generation failed")
		return Reply{Text: FailedReply, Outcome: OutcomeFailed}
	}
	if msg == nil {
		logx.Error().Str("failure", "malformed_response").Msg("model returned no message")
		return Reply{Text: MalformedReply, Outcome: OutcomeMalformed}
	}
	if reason, blocked := safetyBlocked(msg); blocked {
		logx.Warn().Str("finish_reason", reason).Msg("response flagged for safety")
		return Reply{Text: RefusalReply, Outcome: OutcomeRefused}
	}

	formatted := FormatReply(msg.Content)
	if formatted == "" {
		logx.Error().Str("failure", "malformed_response").Msg("model returned empty content")
		return Reply{Text: MalformedReply, Outcome: OutcomeMalformed}
	}

	logx.Debug().Int("length", len(formatted)).Str("emotion", emo.String()).Msg("generated reply")
	return Reply{Text: formatted, Outcome: OutcomeOK}
}

// FormatHistory renders messages as alternating User/Bot lines.
func FormatHistory(messages []chat.Message) string {
	var builder strings.Builder
	for i, msg := range messages {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("User: ")
		builder.WriteString(msg.UserInput)
		builder.WriteString("\nBot: ")
		builder.WriteString(msg.BotResponse)
	}
	return builder.String()
}

func safetyBlocked(msg *schema.Message) (string, bool) {
	if msg.ResponseMeta == nil {
		return "", false
	}
	reason := strings.ToLower(strings.TrimSpace(msg.ResponseMeta.FinishReason))
	for _, blocked := range safetyFinishReasons {
		if strings.Contains(reason, blocked) {
			return msg.ResponseMeta.FinishReason, true
		}
	}
	return "", false
}

func promptBlocked(err error) bool {
	text := strings.ToLower(err.Error())
	for _, marker := range promptBlockMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	for _, reason := range safetyFinishReasons {
		if strings.Contains(text, reason) {
			return true
		}
	}
	return false
}
