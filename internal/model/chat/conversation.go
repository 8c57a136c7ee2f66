package chat

import "time"

// Conversation owns an ordered sequence of messages. It is created by the first
// message and only its LastUpdated field moves afterwards.
type Conversation struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}
