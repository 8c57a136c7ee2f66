package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	modelchat "github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
	"github.com/echosoul/backend/internal/metrics"
	"github.com/echosoul/backend/internal/nlp"
	"github.com/echosoul/backend/internal/service/ai"
	chatService "github.com/echosoul/backend/internal/service/chat"
	"github.com/echosoul/backend/internal/service/classifier"
	"github.com/echosoul/backend/internal/store"
)

type joyModel struct{}

func (joyModel) Predict(context.Context, string) ([]classifier.LabelScore, error) {
	return []classifier.LabelScore{{Label: "LABEL_0", Score: 0.9}, {Label: "LABEL_1", Score: 0.1}}, nil
}

type cannedResponder struct{}

func (cannedResponder) Respond(context.Context, string, emotion.Emotion, []modelchat.Message) ai.Reply {
	return ai.Reply{Text: "hello", Outcome: ai.OutcomeOK}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cls, err := classifier.NewService(joyModel{}, nil)
	if err != nil {
		t.Fatalf("classifier err: %v", err)
	}
	m := metrics.New()
	svc, err := chatService.NewService(chatService.Dependencies{
		Normalizer: nlp.NewNormalizerWith(nil),
		Classifier: cls,
		Responder:  cannedResponder{},
		Store:      store.NewMemory(),
		Metrics:    m,
	}, 0)
	if err != nil {
		t.Fatalf("chat service err: %v", err)
	}
	return NewRouter(Services{Chat: svc, Metrics: m})
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestChatRouteMountedUnderAPI(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi there"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRecommendationsUnavailableWithoutModel(t *testing.T) {
	r := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recommendations/abc", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"lovely day"}`))
	r.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "echosoul_chat_turns_total") {
		t.Fatal("expected chat turn counter in metrics output")
	}
}
