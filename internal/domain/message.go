// File: internal/domain/message.go
package domain

import "time"

// Message roles. Only completed turns from these two roles reach the store.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message within a chat.
//
// Ordering within a chat is (created_at, seq). CreatedAt alone is not a total
// order: fast streaming can persist two messages in the same millisecond, so
// every insert also gets a value from the store's monotonic counter.
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	ChatID    string    `json:"chat_id" gorm:"index;not null"`
	Role      string    `json:"role" gorm:"not null"` // "user" or "assistant"
	Content   string    `json:"content"`
	Seq       uint64    `json:"-" gorm:"index"`
	IsPartial bool      `json:"isPartial,omitempty"` // still receiving streamed content
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
