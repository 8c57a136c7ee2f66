package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/datatypes"

	"github.com/echosoul/backend/internal/core"
	"github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
	logx "github.com/echosoul/backend/pkg/logger"
)

func TestSQLiteStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("OpenSQLite err: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteCorruptScoresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logx.Init(logx.LoggerOpts{Environment: core.Testing, Output: &buf})
	t.Cleanup(func() { logx.Init() })

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite err: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	if _, err := s.AppendMessage(ctx, "corrupt", chat.Message{ID: "bad-scores", UserInput: "hi", Emotion: emotion.Joy}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if err := s.db.Model(&messageRecord{}).Where("id = ?", "bad-scores").
		Update("emotion_scores", datatypes.JSON(`{"joy":`)).Error; err != nil {
		t.Fatalf("corrupt row err: %v", err)
	}

	history, err := s.FullHistory(ctx, "corrupt")
	if err != nil {
		t.Fatalf("FullHistory err: %v", err)
	}
	if len(history) != 1 || len(history[0].EmotionScores) != 0 {
		t.Fatalf("expected empty scores for corrupt payload, got %+v", history)
	}
	if !strings.Contains(buf.String(), "bad-scores") {
		t.Fatalf("expected warning naming the message, got %q", buf.String())
	}
}
