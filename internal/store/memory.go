package store

import (
	"context"
	"sort"
	"sync"

	"github.com/echosoul/backend/internal/model/chat"
)

// Memory keeps everything in process. Suitable for tests and local runs.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	owners        map[string]string // message id -> conversation id
}

// NewMemory bootstraps an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		owners:        make(map[string]string),
	}
}

func (m *Memory) AppendMessage(_ context.Context, conversationID string, msg chat.Message) (chat.Message, error) {
	conversationID, msg.ID = resolveIDs(conversationID, msg.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.messages[conversationID]
	if owner, ok := m.owners[msg.ID]; ok {
		if owner != conversationID {
			return chat.Message{}, conflictErr(msg.ID)
		}
		for _, stored := range existing {
			if stored.ID == msg.ID {
				return cloneMessage(stored), nil
			}
		}
	}

	now := clock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		conv = chat.Conversation{ID: conversationID, CreatedAt: now}
	}

	msg.ConversationID = conversationID
	msg.EmotionScores = msg.EmotionScores.Clone()
	msg.Timestamp = nextTimestamp(now, conv.LastUpdated)
	conv.LastUpdated = msg.Timestamp

	m.conversations[conversationID] = conv
	m.messages[conversationID] = append(existing, msg)
	m.owners[msg.ID] = conversationID
	return cloneMessage(msg), nil
}

func (m *Memory) RecentWindow(_ context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[conversationID]
	start := len(messages) - limit
	if start < 0 {
		start = 0
	}
	return cloneMessages(messages[start:]), nil
}

func (m *Memory) FullHistory(_ context.Context, conversationID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMessages(m.messages[conversationID]), nil
}

func (m *Memory) DeleteConversation(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return NotFound(conversationID)
	}
	for _, msg := range m.messages[conversationID] {
		delete(m.owners, msg.ID)
	}
	delete(m.messages, conversationID)
	delete(m.conversations, conversationID)
	return nil
}

func (m *Memory) ListConversations(_ context.Context, limit int) ([]chat.Conversation, error) {
	m.mu.RLock()
	out := make([]chat.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, NotFound(conversationID)
	}
	return conv, nil
}

func (m *Memory) Close() error { return nil }

func cloneMessage(msg chat.Message) chat.Message {
	msg.EmotionScores = msg.EmotionScores.Clone()
	return msg
}

func cloneMessages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, msg := range messages {
		out[i] = cloneMessage(msg)
	}
	return out
}
