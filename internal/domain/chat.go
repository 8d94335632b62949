// File: internal/domain/chat.go
package domain

import "time"

// Chat represents a single conversation thread, root or branch.
type Chat struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	Title              string    `json:"title"`
	BranchedFromChatID string    `json:"branchedFromChatId,omitempty" gorm:"index"` // set when this chat was forked from another
	CreatedAt          time.Time `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"index"`
}

// IsBranch reports whether this chat was forked from another chat. The
// referenced chat may have been deleted since; the reference is kept anyway.
func (c *Chat) IsBranch() bool {
	return c.BranchedFromChatID != ""
}
