package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echosoul/backend/internal/model/chat"
)

const (
	defaultRedisPrefix = "echosoul:"
	maxWatchRetries    = 16
)

// Redis stores each conversation as a hash, its messages as a hash of JSON
// documents and their order as a sorted set scored by timestamp. A global
// sorted set indexes conversations by last update and a global hash maps
// message ids to their conversation.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps client. An empty prefix uses "echosoul:".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) convKey(id string) string  { return r.prefix + "chat:" + id }
func (r *Redis) msgKey(id string) string   { return r.prefix + "chat:" + id + ":msg" }
func (r *Redis) orderKey(id string) string { return r.prefix + "chat:" + id + ":order" }
func (r *Redis) indexKey() string          { return r.prefix + "chats" }
func (r *Redis) ownerKey() string          { return r.prefix + "messages" }

func (r *Redis) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) (chat.Message, error) {
	conversationID, msg.ID = resolveIDs(conversationID, msg.ID)
	msg.ConversationID = conversationID

	convKey, msgKey, orderKey := r.convKey(conversationID), r.msgKey(conversationID), r.orderKey(conversationID)

	var stored chat.Message
	txf := func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, r.ownerKey(), msg.ID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != conversationID {
			return ErrMessageConflict
		}

		raw, err := tx.HGet(ctx, msgKey, msg.ID).Result()
		if err == nil {
			return json.Unmarshal([]byte(raw), &stored)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}

		now := clock()
		fields, err := tx.HGetAll(ctx, convKey).Result()
		if err != nil {
			return err
		}
		conv, exists, err := decodeConversation(conversationID, fields)
		if err != nil {
			return err
		}
		if !exists {
			conv.CreatedAt = now
		}

		stored = msg
		stored.Timestamp = nextTimestamp(now, conv.LastUpdated)
		conv.LastUpdated = stored.Timestamp

		payload, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		score := float64(stored.Timestamp.UnixMicro())

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, convKey,
				"id", conv.ID,
				"created_at", conv.CreatedAt.Format(time.RFC3339Nano),
				"last_updated", conv.LastUpdated.Format(time.RFC3339Nano),
			)
			pipe.HSet(ctx, msgKey, stored.ID, payload)
			pipe.HSet(ctx, r.ownerKey(), stored.ID, conversationID)
			pipe.ZAdd(ctx, orderKey, redis.Z{Score: score, Member: stored.ID})
			pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: score, Member: conversationID})
			return nil
		})
		return err
	}

	err := r.watch(ctx, txf, convKey, msgKey, orderKey)
	if errors.Is(err, ErrMessageConflict) {
		return chat.Message{}, conflictErr(msg.ID)
	}
	if err != nil {
		return chat.Message{}, writeErr("append message", err)
	}
	return stored, nil
}

func (r *Redis) RecentWindow(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}
	ids, err := r.client.ZRevRange(ctx, r.orderKey(conversationID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, readErr("recent window", err)
	}
	messages, err := r.loadMessages(ctx, conversationID, ids)
	if err != nil {
		return nil, readErr("recent window", err)
	}
	reverse(messages)
	return messages, nil
}

func (r *Redis) FullHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	ids, err := r.client.ZRange(ctx, r.orderKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, readErr("full history", err)
	}
	messages, err := r.loadMessages(ctx, conversationID, ids)
	if err != nil {
		return nil, readErr("full history", err)
	}
	return messages, nil
}

func (r *Redis) DeleteConversation(ctx context.Context, conversationID string) error {
	convKey, msgKey, orderKey := r.convKey(conversationID), r.msgKey(conversationID), r.orderKey(conversationID)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, convKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConversationNotFound
		}
		ids, err := tx.HKeys(ctx, msgKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(ids) > 0 {
				pipe.HDel(ctx, r.ownerKey(), ids...)
			}
			pipe.Del(ctx, msgKey, orderKey)
			pipe.Del(ctx, convKey)
			pipe.ZRem(ctx, r.indexKey(), conversationID)
			return nil
		})
		return err
	}

	err := r.watch(ctx, txf, convKey, msgKey, orderKey)
	if errors.Is(err, ErrConversationNotFound) {
		return NotFound(conversationID)
	}
	if err != nil {
		return writeErr("delete conversation", err)
	}
	return nil
}

func (r *Redis) ListConversations(ctx context.Context, limit int) ([]chat.Conversation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, readErr("list conversations", err)
	}
	if len(ids) == 0 {
		return []chat.Conversation{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.convKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, readErr("list conversations", err)
	}

	out := make([]chat.Conversation, 0, len(ids))
	for i, cmd := range cmds {
		conv, exists, err := decodeConversation(ids[i], cmd.Val())
		if err != nil {
			return nil, readErr("list conversations", err)
		}
		if exists {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (r *Redis) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	fields, err := r.client.HGetAll(ctx, r.convKey(conversationID)).Result()
	if err != nil {
		return chat.Conversation{}, readErr("get conversation", err)
	}
	conv, exists, err := decodeConversation(conversationID, fields)
	if err != nil {
		return chat.Conversation{}, readErr("get conversation", err)
	}
	if !exists {
		return chat.Conversation{}, NotFound(conversationID)
	}
	return conv, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changed underneath it.
func (r *Redis) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *Redis) loadMessages(ctx context.Context, conversationID string, ids []string) ([]chat.Message, error) {
	if len(ids) == 0 {
		return []chat.Message{}, nil
	}
	values, err := r.client.HMGet(ctx, r.msgKey(conversationID), ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]chat.Message, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var msg chat.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func decodeConversation(id string, fields map[string]string) (chat.Conversation, bool, error) {
	conv := chat.Conversation{ID: id}
	if len(fields) == 0 {
		return conv, false, nil
	}
	var err error
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return conv, true, fmt.Errorf("decode created_at: %w", err)
	}
	if conv.LastUpdated, err = time.Parse(time.RFC3339Nano, fields["last_updated"]); err != nil {
		return conv, true, fmt.Errorf("decode last_updated: %w", err)
	}
	return conv, true, nil
}
