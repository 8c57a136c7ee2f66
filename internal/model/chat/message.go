package chat

import (
	"time"

	"github.com/echosoul/backend/internal/model/emotion"
)

// Message is one chat turn: the user's input, the bot's reply and the emotion
// classified for the input. Messages are immutable once stored.
type Message struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"chat_id"`
	UserInput      string               `json:"user_input"`
	BotResponse    string               `json:"bot_response"`
	Emotion        emotion.Emotion      `json:"emotion"`
	EmotionScores  emotion.Distribution `json:"emotion_scores,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}
