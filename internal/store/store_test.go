package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/echosoul/backend/internal/core/errx"
	"github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
)

// runContract exercises behaviour every backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("AppendCreatesConversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		msg, err := s.AppendMessage(ctx, "", chat.Message{
			UserInput:     "I am so angry right now",
			BotResponse:   "Take a breath.",
			Emotion:       emotion.Anger,
			EmotionScores: emotion.Distribution{emotion.Anger: 0.8, emotion.Joy: 0.1},
		})
		if err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
		if msg.ConversationID == "" || msg.ID == "" {
			t.Fatalf("expected ids to be assigned, got %+v", msg)
		}

		conv, err := s.GetConversation(ctx, msg.ConversationID)
		if err != nil {
			t.Fatalf("GetConversation err: %v", err)
		}
		if !conv.LastUpdated.Equal(msg.Timestamp) {
			t.Fatalf("last_updated %v should match message timestamp %v", conv.LastUpdated, msg.Timestamp)
		}

		history, err := s.FullHistory(ctx, msg.ConversationID)
		if err != nil {
			t.Fatalf("FullHistory err: %v", err)
		}
		if len(history) != 1 || history[0].Emotion != emotion.Anger {
			t.Fatalf("unexpected history %+v", history)
		}
		if history[0].EmotionScores[emotion.Anger] != 0.8 {
			t.Fatalf("scores not preserved: %+v", history[0].EmotionScores)
		}
	})

	t.Run("RecentWindowBoundedAndChronological", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "window-" + t.Name()

		for i := 0; i < 8; i++ {
			if _, err := s.AppendMessage(ctx, id, chat.Message{UserInput: fmt.Sprintf("m%d", i), Emotion: emotion.Joy}); err != nil {
				t.Fatalf("AppendMessage err: %v", err)
			}
		}

		window, err := s.RecentWindow(ctx, id, 5)
		if err != nil {
			t.Fatalf("RecentWindow err: %v", err)
		}
		if len(window) != 5 {
			t.Fatalf("expected 5 messages, got %d", len(window))
		}
		for i := 1; i < len(window); i++ {
			if !window[i].Timestamp.After(window[i-1].Timestamp) {
				t.Fatalf("timestamps not strictly increasing at %d", i)
			}
		}
		if window[0].UserInput != "m3" || window[4].UserInput != "m7" {
			t.Fatalf("unexpected window %q..%q", window[0].UserInput, window[4].UserInput)
		}

		short, err := s.RecentWindow(ctx, "missing-"+t.Name(), 5)
		if err != nil || len(short) != 0 {
			t.Fatalf("expected empty window for unknown chat, got %v %v", short, err)
		}
	})

	t.Run("AppendIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "idem-" + t.Name()

		first, err := s.AppendMessage(ctx, id, chat.Message{ID: "msg-1", UserInput: "hi", Emotion: emotion.Joy})
		if err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
		second, err := s.AppendMessage(ctx, id, chat.Message{ID: "msg-1", UserInput: "hi", Emotion: emotion.Joy})
		if err != nil {
			t.Fatalf("AppendMessage retry err: %v", err)
		}
		if !first.Timestamp.Equal(second.Timestamp) {
			t.Fatalf("retry should return the stored message")
		}

		history, _ := s.FullHistory(ctx, id)
		if len(history) != 1 {
			t.Fatalf("expected a single message, got %d", len(history))
		}
	})

	t.Run("FirstTurnRetryWithoutConversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.AppendMessage(ctx, "", chat.Message{ID: "first-turn", UserInput: "hello", Emotion: emotion.Joy})
		if err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
		second, err := s.AppendMessage(ctx, "", chat.Message{ID: "first-turn", UserInput: "hello", Emotion: emotion.Joy})
		if err != nil {
			t.Fatalf("AppendMessage retry err: %v", err)
		}
		if second.ConversationID != first.ConversationID {
			t.Fatalf("retry created a second conversation: %s vs %s", first.ConversationID, second.ConversationID)
		}
		if !second.Timestamp.Equal(first.Timestamp) {
			t.Fatalf("retry should return the stored message")
		}

		convs, err := s.ListConversations(ctx, 0)
		if err != nil {
			t.Fatalf("ListConversations err: %v", err)
		}
		if len(convs) != 1 {
			t.Fatalf("expected 1 conversation, got %d", len(convs))
		}
		history, err := s.FullHistory(ctx, first.ConversationID)
		if err != nil {
			t.Fatalf("FullHistory err: %v", err)
		}
		if len(history) != 1 || history[0].ID != "first-turn" {
			t.Fatalf("expected exactly the first turn, got %+v", history)
		}
	})

	t.Run("MessageIDReusedInAnotherConversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.AppendMessage(ctx, "chat-a", chat.Message{ID: "shared", UserInput: "a", Emotion: emotion.Joy}); err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
		_, err := s.AppendMessage(ctx, "chat-b", chat.Message{ID: "shared", UserInput: "b", Emotion: emotion.Joy})
		if !errors.Is(err, ErrMessageConflict) {
			t.Fatalf("expected ErrMessageConflict, got %v", err)
		}
		if status, _ := errx.Resolve(err); status != http.StatusConflict {
			t.Fatalf("expected 409, got %d", status)
		}
		if _, err := s.GetConversation(ctx, "chat-b"); err == nil {
			t.Fatal("rejected append must not create its conversation")
		}
	})

	t.Run("DeletedMessageIDsCanBeReused", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.AppendMessage(ctx, "old-chat", chat.Message{ID: "recycled", UserInput: "x", Emotion: emotion.Joy}); err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
		if err := s.DeleteConversation(ctx, "old-chat"); err != nil {
			t.Fatalf("DeleteConversation err: %v", err)
		}
		if _, err := s.AppendMessage(ctx, "new-chat", chat.Message{ID: "recycled", UserInput: "y", Emotion: emotion.Joy}); err != nil {
			t.Fatalf("AppendMessage after delete err: %v", err)
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "delete-" + t.Name()

		for i := 0; i < 3; i++ {
			if _, err := s.AppendMessage(ctx, id, chat.Message{UserInput: "x", Emotion: emotion.Sadness}); err != nil {
				t.Fatalf("AppendMessage err: %v", err)
			}
		}
		if err := s.DeleteConversation(ctx, id); err != nil {
			t.Fatalf("DeleteConversation err: %v", err)
		}

		history, err := s.FullHistory(ctx, id)
		if err != nil || len(history) != 0 {
			t.Fatalf("expected no messages, got %d (%v)", len(history), err)
		}
		if _, err := s.GetConversation(ctx, id); !errors.Is(err, ErrConversationNotFound) {
			t.Fatalf("expected ErrConversationNotFound, got %v", err)
		}
		convs, _ := s.ListConversations(ctx, 0)
		for _, c := range convs {
			if c.ID == id {
				t.Fatal("deleted conversation still listed")
			}
		}
	})

	t.Run("DeleteUnknown", func(t *testing.T) {
		s := newStore(t)
		err := s.DeleteConversation(context.Background(), "nope-"+t.Name())
		if !errors.Is(err, ErrConversationNotFound) {
			t.Fatalf("expected ErrConversationNotFound, got %v", err)
		}
		if status, _ := errx.Resolve(err); status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", status)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ids := []string{"a-" + t.Name(), "b-" + t.Name(), "c-" + t.Name()}
		for _, id := range ids {
			if _, err := s.AppendMessage(ctx, id, chat.Message{UserInput: "hello", Emotion: emotion.Joy}); err != nil {
				t.Fatalf("AppendMessage err: %v", err)
			}
		}
		// Touch the first conversation again so it becomes the newest.
		if _, err := s.AppendMessage(ctx, ids[0], chat.Message{UserInput: "again", Emotion: emotion.Joy}); err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}

		convs, err := s.ListConversations(ctx, 2)
		if err != nil {
			t.Fatalf("ListConversations err: %v", err)
		}
		if len(convs) != 2 || convs[0].ID != ids[0] || convs[1].ID != ids[2] {
			t.Fatalf("unexpected order %+v", convs)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "concurrent-" + t.Name()

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.AppendMessage(ctx, id, chat.Message{UserInput: fmt.Sprintf("m%d", i), Emotion: emotion.Fear})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("AppendMessage err: %v", err)
			}
		}

		history, err := s.FullHistory(ctx, id)
		if err != nil {
			t.Fatalf("FullHistory err: %v", err)
		}
		if len(history) != 10 {
			t.Fatalf("expected 10 messages, got %d", len(history))
		}
		seen := map[int64]bool{}
		for _, m := range history {
			if seen[m.Timestamp.UnixMicro()] {
				t.Fatalf("duplicate timestamp %v", m.Timestamp)
			}
			seen[m.Timestamp.UnixMicro()] = true
		}
	})
}

func TestNextTimestamp(t *testing.T) {
	prev := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := nextTimestamp(prev, prev); !got.After(prev) {
		t.Fatalf("expected bump past %v, got %v", prev, got)
	}
	later := prev.Add(time.Second)
	if got := nextTimestamp(later, prev); !got.Equal(later) {
		t.Fatalf("expected %v, got %v", later, got)
	}
}

func TestStoreErrorsAreSanitized(t *testing.T) {
	err := writeErr("append message", errors.New("disk I/O error at /var/lib/data.db"))
	if !errors.Is(err, ErrWrite) {
		t.Fatal("expected ErrWrite in chain")
	}
	status, msg := errx.Resolve(err)
	if status != http.StatusInternalServerError || msg != errx.StoreWriteMessage {
		t.Fatalf("unexpected resolution %d %q", status, msg)
	}
}
