// File: internal/repository/chat/chat_repository.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/store"
)

// ErrChatNotFound is returned when a chat id does not resolve to a record.
var ErrChatNotFound = domain.NewNotFoundError("chat_repository", "chat not found")

const maxTitleLength = 200

type gormChatRepository struct {
	db *gorm.DB
	tx *store.Tx
}

func NewChatRepository(st *store.Store) ChatRepository {
	return &gormChatRepository{db: st.DB()}
}

// WithTx binds the repository to an in-flight transaction.
func (r *gormChatRepository) WithTx(tx *store.Tx) ChatRepository {
	return &gormChatRepository{db: tx.DB(), tx: tx}
}

func (r *gormChatRepository) requireTx(operation string) error {
	if r.tx == nil {
		return domain.NewInvalidStateError(operation, "record mutation outside a transaction")
	}
	return nil
}

// Create inserts a new chat record. A missing id is generated; timestamps are
// filled on insert. branchedFromChatId is deliberately not checked for
// existence: the referenced chat may be deleted later anyway, so the edge is
// a weak reference from the start.
func (r *gormChatRepository) Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	if err := r.requireTx("chat.Create"); err != nil {
		return nil, err
	}
	if err := validateChatInput(chat); err != nil {
		return nil, err
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.ID == chat.BranchedFromChatID {
		return nil, domain.NewInvalidArgumentError("chat.Create", "chat cannot branch from itself")
	}

	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		log.Printf("[ChatRepository] Database error during chat creation: %v", err)
		return nil, domain.NewStorageError("chat.Create", "database error creating chat", err)
	}
	r.tx.Touch(store.KindChats, chat.ID)
	return chat, nil
}

func (r *gormChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	if chatID == "" {
		return nil, domain.NewInvalidArgumentError("chat.FindByID", "chat id is required")
	}
	var chat domain.Chat
	err := r.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		log.Printf("[ChatRepository] FindByID database error: %v", err)
		return nil, domain.NewStorageError("chat.FindByID", "database query failed", err)
	}
	return &chat, nil
}

// FindAll returns every chat, most recently active first. The id tiebreak
// keeps repeated reads identical when updated_at collides.
func (r *gormChatRepository) FindAll(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := r.db.WithContext(ctx).
		Order("updated_at DESC, id DESC").
		Find(&chats).Error
	if err != nil {
		log.Printf("[ChatRepository] Database error fetching chats: %v", err)
		return nil, domain.NewStorageError("chat.FindAll", "database error fetching chats", err)
	}
	return chats, nil
}

// FindBranches returns the chats branched from originalChatID, oldest branch
// first.
func (r *gormChatRepository) FindBranches(ctx context.Context, originalChatID string) ([]domain.Chat, error) {
	if originalChatID == "" {
		return nil, domain.NewInvalidArgumentError("chat.FindBranches", "original chat id is required")
	}
	var chats []domain.Chat
	err := r.db.WithContext(ctx).
		Where("branched_from_chat_id = ?", originalChatID).
		Order("created_at ASC, id ASC").
		Find(&chats).Error
	if err != nil {
		log.Printf("[ChatRepository] Database error fetching branches for chat %s: %v", originalChatID, err)
		return nil, domain.NewStorageError("chat.FindBranches", "database error fetching branches", err)
	}
	return chats, nil
}

func (r *gormChatRepository) UpdateTitle(ctx context.Context, chatID, title string) error {
	if err := r.requireTx("chat.UpdateTitle"); err != nil {
		return err
	}
	if chatID == "" {
		return domain.NewInvalidArgumentError("chat.UpdateTitle", "chat id is required")
	}
	if err := validateTitle(title); err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		log.Printf("[ChatRepository] Database error updating title for chat %s: %v", chatID, result.Error)
		return domain.NewStorageError("chat.UpdateTitle", "database error updating chat title", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	r.tx.Touch(store.KindChats, chatID)
	return nil
}

// TouchUpdatedAt bumps the chat's updated_at, which drives chat-list
// ordering.
func (r *gormChatRepository) TouchUpdatedAt(ctx context.Context, chatID string) error {
	if err := r.requireTx("chat.TouchUpdatedAt"); err != nil {
		return err
	}
	if chatID == "" {
		return domain.NewInvalidArgumentError("chat.TouchUpdatedAt", "chat id is required")
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", time.Now())
	if result.Error != nil {
		log.Printf("[ChatRepository] Database error updating timestamp for chat %s: %v", chatID, result.Error)
		return domain.NewStorageError("chat.TouchUpdatedAt", "database error updating chat timestamp", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	r.tx.Touch(store.KindChats, chatID)
	return nil
}

func (r *gormChatRepository) Delete(ctx context.Context, chatID string) error {
	if err := r.requireTx("chat.Delete"); err != nil {
		return err
	}
	if chatID == "" {
		return domain.NewInvalidArgumentError("chat.Delete", "chat id is required")
	}

	result := r.db.WithContext(ctx).Delete(&domain.Chat{}, "id = ?", chatID)
	if result.Error != nil {
		log.Printf("[ChatRepository] Database error deleting chat %s: %v", chatID, result.Error)
		return domain.NewStorageError("chat.Delete", "database error deleting chat", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	r.tx.Touch(store.KindChats, chatID)
	return nil
}

func (r *gormChatRepository) ExistsByID(ctx context.Context, chatID string) (bool, error) {
	if chatID == "" {
		return false, domain.NewInvalidArgumentError("chat.ExistsByID", "chat id is required")
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Chat{}).Where("id = ?", chatID).Count(&count).Error
	if err != nil {
		log.Printf("[ChatRepository] Database error checking chat existence for %s: %v", chatID, err)
		return false, domain.NewStorageError("chat.ExistsByID", "database error checking chat existence", err)
	}
	return count > 0, nil
}

func (r *gormChatRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Chat{}).Count(&count).Error
	if err != nil {
		log.Printf("[ChatRepository] Database error counting chats: %v", err)
		return 0, domain.NewStorageError("chat.CountAll", "database error counting chats", err)
	}
	return count, nil
}

func validateChatInput(chat *domain.Chat) error {
	if chat == nil {
		return domain.NewInvalidArgumentError("chat.validate", "chat cannot be nil")
	}
	return validateTitle(chat.Title)
}

func validateTitle(title string) error {
	if len(title) > maxTitleLength {
		return domain.NewInvalidArgumentError("chat.validate",
			fmt.Sprintf("title must be %d characters or less", maxTitleLength))
	}
	return nil
}
