// File: internal/repository/message/interface.go
package message

import (
	"context"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/store"
)

// MessageRepository handles message record operations. Same transaction rules
// as the chat repository: writes only through a WithTx-bound instance.
type MessageRepository interface {
	WithTx(tx *store.Tx) MessageRepository

	Create(ctx context.Context, message *domain.Message) (*domain.Message, error)
	CreateInBatch(ctx context.Context, messages []*domain.Message, batchSize int) error
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	FindByChatID(ctx context.Context, chatID string) ([]domain.Message, error)
	CountByChatID(ctx context.Context, chatID string) (int64, error)
	UpdateContent(ctx context.Context, chatID, messageID, content string) error
	Finalize(ctx context.Context, chatID, messageID, content string) error
	DeletePartial(ctx context.Context, chatID, messageID string) error
	DeleteByChatID(ctx context.Context, chatID string) (int64, error)
}
