// File: internal/repository/chat/interface.go
package chat

import (
	"context"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/store"
)

// ChatRepository handles chat record operations.
//
// Reads on a plain repository run against committed state. Writes are only
// permitted on a repository bound to a transaction via WithTx; a tx-bound
// repository also reads the in-flight transaction state.
type ChatRepository interface {
	WithTx(tx *store.Tx) ChatRepository

	Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error)
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	FindAll(ctx context.Context) ([]domain.Chat, error)
	FindBranches(ctx context.Context, originalChatID string) ([]domain.Chat, error)
	UpdateTitle(ctx context.Context, chatID, title string) error
	TouchUpdatedAt(ctx context.Context, chatID string) error
	Delete(ctx context.Context, chatID string) error
	ExistsByID(ctx context.Context, chatID string) (bool, error)
	CountAll(ctx context.Context) (int64, error)
}
