// Package store persists conversations and their messages.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echosoul/backend/internal/core/errx"
	"github.com/echosoul/backend/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRead                 = errors.New("history store read failed")
	ErrWrite                = errors.New("history store write failed")
	ErrMessageConflict      = errors.New("message id belongs to another conversation")
)

// NotFoundMessage is the client-facing text for unknown conversations.
const NotFoundMessage = "chat not found"

// ConflictMessage is the client-facing text for a reused message id.
const ConflictMessage = "message id already used in another chat"

// conversationNamespace seeds conversation ids derived from message ids.
var conversationNamespace = uuid.MustParse("6f1c3a52-8e0b-4f5e-9d2a-3c7b1e4a9f60")

// Store is an append-only per-conversation message log.
//
// AppendMessage creates the conversation when conversationID is unknown and
// bumps LastUpdated in the same atomic unit as the message insert. With an
// empty conversationID the new conversation's id is derived from the message
// id, so retrying a first turn lands in the same conversation. Message ids are
// unique across the store: an id already stored in the same conversation is
// returned as is, one stored in another conversation is ErrMessageConflict.
// Windows and histories are always oldest first.
type Store interface {
	AppendMessage(ctx context.Context, conversationID string, msg chat.Message) (chat.Message, error)
	RecentWindow(ctx context.Context, conversationID string, limit int) ([]chat.Message, error)
	FullHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ListConversations(ctx context.Context, limit int) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error)
	Close() error
}

var (
	clockMu  sync.Mutex
	lastTick time.Time
)

// clock returns microsecond precision UTC times that never repeat within the
// process, so ordering survives backends that round sub-microsecond values.
func clock() time.Time {
	clockMu.Lock()
	defer clockMu.Unlock()
	lastTick = nextTimestamp(time.Now().UTC().Truncate(time.Microsecond), lastTick)
	return lastTick
}

// nextTimestamp returns now unless it would not be strictly after previous.
func nextTimestamp(now, previous time.Time) time.Time {
	if !now.After(previous) {
		return previous.Add(time.Microsecond)
	}
	return now
}

// resolveIDs fills in a missing message id and derives the conversation id
// from it when none is given.
func resolveIDs(conversationID, messageID string) (string, string) {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if conversationID == "" {
		conversationID = uuid.NewSHA1(conversationNamespace, []byte(messageID)).String()
	}
	return conversationID, messageID
}

// NotFound builds the 404 error for an unknown conversation.
func NotFound(conversationID string) error {
	return errx.New(fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID), http.StatusNotFound, NotFoundMessage)
}

func conflictErr(messageID string) error {
	return errx.New(fmt.Errorf("%w: %s", ErrMessageConflict, messageID), http.StatusConflict, ConflictMessage)
}

func readErr(op string, err error) error {
	return errx.New(fmt.Errorf("%s: %w: %w", op, ErrRead, err), http.StatusInternalServerError, errx.StoreReadMessage)
}

func writeErr(op string, err error) error {
	return errx.New(fmt.Errorf("%s: %w: %w", op, ErrWrite, err), http.StatusInternalServerError, errx.StoreWriteMessage)
}

func reverse(messages []chat.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
