package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/echosoul/backend/internal/model/chat"
	"github.com/echosoul/backend/internal/model/emotion"
	logx "github.com/echosoul/backend/pkg/logger"
)

// errMessageRaced rolls back an append whose insert lost to a concurrent one.
var errMessageRaced = errors.New("message inserted concurrently")

type conversationRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	CreatedAt   time.Time `gorm:"not null"`
	LastUpdated time.Time `gorm:"index;not null"`
}

func (conversationRecord) TableName() string { return "conversations" }

type messageRecord struct {
	ID             string         `gorm:"primaryKey;size:64"`
	ConversationID string         `gorm:"size:64;not null;index:idx_messages_conversation_ts,priority:1"`
	UserInput      string         `gorm:"type:text"`
	BotResponse    string         `gorm:"type:text"`
	Emotion        string         `gorm:"size:16"`
	EmotionScores  datatypes.JSON `gorm:"type:json"`
	Timestamp      time.Time      `gorm:"column:sent_at;not null;index:idx_messages_conversation_ts,priority:2"`
}

func (messageRecord) TableName() string { return "messages" }

// SQL stores history through GORM.
type SQL struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
func OpenSQLite(path string) (*SQL, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	return NewSQL(db)
}

// NewSQL wraps an open GORM handle and runs migrations.
func NewSQL(db *gorm.DB) (*SQL, error) {
	s := &SQL{db: db}
	if err := s.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate history tables: %w", err)
	}
	return s, nil
}

// AutoMigrate creates the conversation and message tables.
func (s *SQL) AutoMigrate() error {
	return s.db.AutoMigrate(&conversationRecord{}, &messageRecord{})
}

func (s *SQL) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) (chat.Message, error) {
	conversationID, msg.ID = resolveIDs(conversationID, msg.ID)

	scores, err := json.Marshal(msg.EmotionScores)
	if err != nil {
		return chat.Message{}, writeErr("encode emotion scores", err)
	}

	var stored messageRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, found, err := findMessage(tx, msg.ID)
		if err != nil {
			return err
		}
		if found {
			if existing.ConversationID != conversationID {
				return ErrMessageConflict
			}
			stored = existing
			return nil
		}

		now := clock()
		var convs []conversationRecord
		if err := tx.Where("id = ?", conversationID).Limit(1).Find(&convs).Error; err != nil {
			return err
		}

		conv := conversationRecord{ID: conversationID, CreatedAt: now}
		if len(convs) > 0 {
			conv = convs[0]
		}

		stored = messageRecord{
			ID:             msg.ID,
			ConversationID: conversationID,
			UserInput:      msg.UserInput,
			BotResponse:    msg.BotResponse,
			Emotion:        string(msg.Emotion),
			EmotionScores:  datatypes.JSON(scores),
			Timestamp:      nextTimestamp(now, conv.LastUpdated.UTC()),
		}
		conv.LastUpdated = stored.Timestamp

		if len(convs) == 0 {
			if err := tx.Create(&conv).Error; err != nil {
				return err
			}
		} else if err := tx.Model(&conversationRecord{}).Where("id = ?", conversationID).
			Update("last_updated", conv.LastUpdated).Error; err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stored)
		if res.Error != nil {
			return res.Error
		}
		// Nothing inserted: undo the conversation changes too.
		if res.RowsAffected == 0 {
			return errMessageRaced
		}
		return nil
	})

	if errors.Is(err, errMessageRaced) {
		existing, found, findErr := findMessage(s.db.WithContext(ctx), msg.ID)
		switch {
		case findErr != nil:
			return chat.Message{}, writeErr("append message", findErr)
		case !found:
			return chat.Message{}, writeErr("append message", err)
		case existing.ConversationID != conversationID:
			return chat.Message{}, conflictErr(msg.ID)
		}
		return toMessage(existing), nil
	}
	if errors.Is(err, ErrMessageConflict) {
		return chat.Message{}, conflictErr(msg.ID)
	}
	if err != nil {
		return chat.Message{}, writeErr("append message", err)
	}
	return toMessage(stored), nil
}

func findMessage(db *gorm.DB, messageID string) (messageRecord, bool, error) {
	var records []messageRecord
	if err := db.Where("id = ?", messageID).Limit(1).Find(&records).Error; err != nil {
		return messageRecord{}, false, err
	}
	if len(records) == 0 {
		return messageRecord{}, false, nil
	}
	return records[0], true, nil
}

func (s *SQL) RecentWindow(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	var records []messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, readErr("recent window", err)
	}

	messages := toMessages(records)
	reverse(messages)
	return messages, nil
}

func (s *SQL) FullHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var records []messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, readErr("full history", err)
	}
	return toMessages(records), nil
}

func (s *SQL) DeleteConversation(ctx context.Context, conversationID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&messageRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&conversationRecord{}, "id = ?", conversationID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
	if errors.Is(err, ErrConversationNotFound) {
		return NotFound(conversationID)
	}
	if err != nil {
		return writeErr("delete conversation", err)
	}
	return nil
}

func (s *SQL) ListConversations(ctx context.Context, limit int) ([]chat.Conversation, error) {
	query := s.db.WithContext(ctx).Order("last_updated DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []conversationRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, readErr("list conversations", err)
	}

	out := make([]chat.Conversation, len(records))
	for i, r := range records {
		out[i] = toConversation(r)
	}
	return out, nil
}

func (s *SQL) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	var record conversationRecord
	err := s.db.WithContext(ctx).Where("id = ?", conversationID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Conversation{}, NotFound(conversationID)
	}
	if err != nil {
		return chat.Conversation{}, readErr("get conversation", err)
	}
	return toConversation(record), nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toConversation(r conversationRecord) chat.Conversation {
	return chat.Conversation{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt.UTC(),
		LastUpdated: r.LastUpdated.UTC(),
	}
}

func toMessage(r messageRecord) chat.Message {
	var scores emotion.Distribution
	if len(r.EmotionScores) > 0 {
		// Corrupt score payloads degrade to an empty distribution.
		if err := json.Unmarshal(r.EmotionScores, &scores); err != nil {
			logx.Warn().Err(err).Str("message_id", r.ID).Str("chat_id", r.ConversationID).
				Msg("discarding corrupt emotion scores")
			scores = nil
		}
	}
	return chat.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		UserInput:      r.UserInput,
		BotResponse:    r.BotResponse,
		Emotion:        emotion.Parse(r.Emotion),
		EmotionScores:  scores,
		Timestamp:      r.Timestamp.UTC(),
	}
}

func toMessages(records []messageRecord) []chat.Message {
	out := make([]chat.Message, len(records))
	for i, r := range records {
		out[i] = toMessage(r)
	}
	return out
}
