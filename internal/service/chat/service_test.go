package chat_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	analysis "github.com/echosoul/backend/internal/analysis/emotion"
	"github.com/echosoul/backend/internal/core/errx"
	"github.com/echosoul/backend/internal/emotionlog"
	"github.com/echosoul/backend/internal/metrics"
	modelchat "github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
	"github.com/echosoul/backend/internal/nlp"
	"github.com/echosoul/backend/internal/service/ai"
	chat "github.com/echosoul/backend/internal/service/chat"
	"github.com/echosoul/backend/internal/service/classifier"
	"github.com/echosoul/backend/internal/store"
)

type scoresModel struct {
	scores []classifier.LabelScore
	err    error
}

func (m scoresModel) Predict(context.Context, string) ([]classifier.LabelScore, error) {
	return m.scores, m.err
}

type recordingResponder struct {
	queries   []string
	histories [][]modelchat.Message
}

func (r *recordingResponder) Respond(_ context.Context, query string, emo emotion.Emotion, history []modelchat.Message) ai.Reply {
	r.queries = append(r.queries, query)
	r.histories = append(r.histories, history)
	return ai.Reply{Text: "reply to " + emo.String(), Outcome: ai.OutcomeOK}
}

type fixture struct {
	svc       *chat.Service
	store     *store.Memory
	responder *recordingResponder
	ring      *emotionlog.Ring
}

func newFixture(t *testing.T, model classifier.Model) fixture {
	t.Helper()
	cls, err := classifier.NewService(model, analysis.NewOverrides(nil, analysis.DefaultThreshold))
	if err != nil {
		t.Fatalf("classifier.NewService err: %v", err)
	}
	f := fixture{
		store:     store.NewMemory(),
		responder: &recordingResponder{},
		ring:      emotionlog.New(emotionlog.DefaultCapacity),
	}
	f.svc, err = chat.NewService(chat.Dependencies{
		Normalizer: nlp.NewNormalizerWith(nil),
		Classifier: cls,
		Responder:  f.responder,
		Store:      f.store,
		Emotions:   f.ring,
		Metrics:    metrics.New(),
	}, 0)
	if err != nil {
		t.Fatalf("chat.NewService err: %v", err)
	}
	return f
}

func angryLeaningJoy() scoresModel {
	return scoresModel{scores: []classifier.LabelScore{
		{Label: "LABEL_0", Score: 0.55},
		{Label: "LABEL_1", Score: 0.05},
		{Label: "LABEL_2", Score: 0.35},
		{Label: "LABEL_3", Score: 0.05},
	}}
}

func TestProcessAngryMessageCreatesConversation(t *testing.T) {
	f := newFixture(t, angryLeaningJoy())
	ctx := context.Background()

	res, err := f.svc.Process(ctx, chat.TurnRequest{Message: "I am so angry right now"})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}
	if res.ConversationID == "" {
		t.Fatal("expected a new chat id")
	}
	if res.Emotion != emotion.Anger {
		t.Fatalf("expected anger, got %s", res.Emotion)
	}
	if res.EmotionScores[emotion.Joy] != 0.55 {
		t.Fatalf("distribution should be untouched, got %+v", res.EmotionScores)
	}
	if res.Response != "reply to anger" {
		t.Fatalf("unexpected response %q", res.Response)
	}

	messages, err := f.svc.Messages(ctx, res.ConversationID)
	if err != nil {
		t.Fatalf("Messages err: %v", err)
	}
	if len(messages) != 1 || messages[0].Emotion != emotion.Anger || messages[0].UserInput != "I am so angry right now" {
		t.Fatalf("unexpected stored messages %+v", messages)
	}
	if f.ring.Len() != 1 {
		t.Fatalf("expected one emotion log entry, got %d", f.ring.Len())
	}
	if f.responder.queries[0] != "i am so angry right now" {
		t.Fatalf("responder should receive normalized text, got %q", f.responder.queries[0])
	}
}

func TestProcessUsesBoundedHistoryWindow(t *testing.T) {
	f := newFixture(t, angryLeaningJoy())
	ctx := context.Background()

	first, err := f.svc.Process(ctx, chat.TurnRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}
	for i := 0; i < 6; i++ {
		if _, err := f.svc.Process(ctx, chat.TurnRequest{Message: "more", ConversationID: first.ConversationID}); err != nil {
			t.Fatalf("Process err: %v", err)
		}
	}

	last := f.responder.histories[len(f.responder.histories)-1]
	if len(last) != chat.DefaultHistoryWindow {
		t.Fatalf("expected window of %d, got %d", chat.DefaultHistoryWindow, len(last))
	}
	for i := 1; i < len(last); i++ {
		if !last[i].Timestamp.After(last[i-1].Timestamp) {
			t.Fatal("history window must be chronological")
		}
	}
	if len(f.responder.histories[0]) != 0 {
		t.Fatal("a new conversation starts with no history")
	}
}

func TestProcessRetryIsIdempotent(t *testing.T) {
	f := newFixture(t, angryLeaningJoy())
	ctx := context.Background()

	first, err := f.svc.Process(ctx, chat.TurnRequest{Message: "hi", ConversationID: "fixed", MessageID: "m-1"})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}
	if _, err := f.svc.Process(ctx, chat.TurnRequest{Message: "hi", ConversationID: "fixed", MessageID: "m-1"}); err != nil {
		t.Fatalf("Process retry err: %v", err)
	}

	messages, _ := f.svc.Messages(ctx, first.ConversationID)
	if len(messages) != 1 {
		t.Fatalf("expected one stored message, got %d", len(messages))
	}
}

func TestProcessFirstTurnRetryReusesConversation(t *testing.T) {
	f := newFixture(t, angryLeaningJoy())
	ctx := context.Background()

	first, err := f.svc.Process(ctx, chat.TurnRequest{Message: "hi", MessageID: "opening"})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}
	second, err := f.svc.Process(ctx, chat.TurnRequest{Message: "hi", MessageID: "opening"})
	if err != nil {
		t.Fatalf("Process retry err: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatalf("retry moved to a new chat: %s vs %s", first.ConversationID, second.ConversationID)
	}

	convs, _ := f.svc.Conversations(ctx, 0)
	if len(convs) != 1 {
		t.Fatalf("expected one conversation, got %d", len(convs))
	}
	messages, _ := f.svc.Messages(ctx, first.ConversationID)
	if len(messages) != 1 {
		t.Fatalf("expected one stored message, got %d", len(messages))
	}
}

func TestProcessEmptyMessage(t *testing.T) {
	f := newFixture(t, angryLeaningJoy())

	_, err := f.svc.Process(context.Background(), chat.TurnRequest{Message: "   "})
	if !errors.Is(err, chat.ErrMessageRequired) {
		t.Fatalf("expected ErrMessageRequired, got %v", err)
	}
	if status, _ := errx.Resolve(err); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestProcessClassifierUnavailable(t *testing.T) {
	f := newFixture(t, scoresModel{err: errors.New("dial tcp: connection refused")})

	_, err := f.svc.Process(context.Background(), chat.TurnRequest{Message: "hello"})
	if !errors.Is(err, classifier.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	status, msg := errx.Resolve(err)
	if status != http.StatusServiceUnavailable || msg != errx.ClassifierMessage {
		t.Fatalf("unexpected resolution %d %q", status, msg)
	}

	convs, _ := f.svc.Conversations(context.Background(), 0)
	if len(convs) != 0 {
		t.Fatal("nothing should be stored when classification fails")
	}
}

func TestDeleteUnknownConversation(t *testing.T) {
	f := newFixture(t, angryLeaningJoy())
	if err := f.svc.Delete(context.Background(), "missing"); !errors.Is(err, store.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
