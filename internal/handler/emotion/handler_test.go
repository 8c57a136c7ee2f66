package emotion

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/echosoul/backend/internal/emotionlog"
	model "github.com/echosoul/backend/internal/model/emotion"
)

type ringSource struct {
	ring *emotionlog.Ring
}

func (s ringSource) RecentEmotions() []emotionlog.Entry {
	return s.ring.Snapshot()
}

func TestRecentEmotions(t *testing.T) {
	ring := emotionlog.New(2)
	for _, e := range []model.Emotion{model.Joy, model.Fear, model.Sadness} {
		_ = ring.Add(emotionlog.Entry{Emotion: e})
	}

	r := chi.NewRouter()
	New(ringSource{ring: ring}).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/emotions/recent", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var entries []emotionlog.Entry
	if err := json.Unmarshal(resp.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[0].Emotion != model.Fear || entries[1].Emotion != model.Sadness {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
