// File: internal/repository/message/message_repository.go
package message

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/store"
)

// Sentinel errors surfaced by message operations.
var (
	ErrMessageNotFound  = domain.NewNotFoundError("message_repository", "message not found")
	ErrAlreadyFinalized = domain.NewInvalidStateError("message_repository", "message is already finalized")
)

type gormMessageRepository struct {
	db *gorm.DB
	tx *store.Tx
}

func NewMessageRepository(st *store.Store) MessageRepository {
	return &gormMessageRepository{db: st.DB()}
}

// WithTx binds the repository to an in-flight transaction.
func (r *gormMessageRepository) WithTx(tx *store.Tx) MessageRepository {
	return &gormMessageRepository{db: tx.DB(), tx: tx}
}

func (r *gormMessageRepository) requireTx(operation string) error {
	if r.tx == nil {
		return domain.NewInvalidStateError(operation, "record mutation outside a transaction")
	}
	return nil
}

// Create inserts one message. Missing id and sequence number are assigned
// here; a caller-provided CreatedAt is kept (branch copies rely on this),
// otherwise the insert time is used.
func (r *gormMessageRepository) Create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	if err := r.requireTx("message.Create"); err != nil {
		return nil, err
	}
	if err := validateMessageInput(message); err != nil {
		return nil, err
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Seq == 0 {
		message.Seq = r.tx.NextSeq()
	}

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		log.Printf("[MessageRepository] Database error during message creation for chat %s: %v", message.ChatID, err)
		return nil, domain.NewStorageError("message.Create", "database error creating message", err)
	}
	r.tx.Touch(store.KindMessages, message.ChatID)
	return message, nil
}

// CreateInBatch inserts the messages in order. Sequence numbers are assigned
// in slice order, so the relative ordering of equal timestamps is preserved.
func (r *gormMessageRepository) CreateInBatch(ctx context.Context, messages []*domain.Message, batchSize int) error {
	if err := r.requireTx("message.CreateInBatch"); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if batchSize <= 0 || batchSize > 1000 {
		batchSize = 100
	}

	for i, message := range messages {
		if err := validateMessageInput(message); err != nil {
			return domain.NewInvalidArgumentError("message.CreateInBatch",
				fmt.Sprintf("validation failed for message at index %d: %v", i, err))
		}
		if message.ID == "" {
			message.ID = uuid.NewString()
		}
		if message.Seq == 0 {
			message.Seq = r.tx.NextSeq()
		}
	}

	if err := r.db.WithContext(ctx).CreateInBatches(messages, batchSize).Error; err != nil {
		log.Printf("[MessageRepository] Batch creation failed for %d messages: %v", len(messages), err)
		return domain.NewStorageError("message.CreateInBatch", "database error creating messages", err)
	}
	for _, message := range messages {
		r.tx.Touch(store.KindMessages, message.ChatID)
	}
	return nil
}

func (r *gormMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	if messageID == "" {
		return nil, domain.NewInvalidArgumentError("message.FindByID", "message id is required")
	}
	var message domain.Message
	err := r.db.WithContext(ctx).First(&message, "id = ?", messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		log.Printf("[MessageRepository] FindByID database error: %v", err)
		return nil, domain.NewStorageError("message.FindByID", "database query failed", err)
	}
	return &message, nil
}

// FindByChatID returns the chat's messages in chronological order. The seq
// tiebreak makes the order total even when created_at collides.
func (r *gormMessageRepository) FindByChatID(ctx context.Context, chatID string) ([]domain.Message, error) {
	if chatID == "" {
		return nil, domain.NewInvalidArgumentError("message.FindByChatID", "chat id is required")
	}
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, seq ASC").
		Find(&messages).Error
	if err != nil {
		log.Printf("[MessageRepository] Database error fetching messages for chat %s: %v", chatID, err)
		return nil, domain.NewStorageError("message.FindByChatID", "database error fetching messages", err)
	}
	return messages, nil
}

func (r *gormMessageRepository) CountByChatID(ctx context.Context, chatID string) (int64, error) {
	if chatID == "" {
		return 0, domain.NewInvalidArgumentError("message.CountByChatID", "chat id is required")
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID).Count(&count).Error
	if err != nil {
		log.Printf("[MessageRepository] Database error counting messages for chat %s: %v", chatID, err)
		return 0, domain.NewStorageError("message.CountByChatID", "database error counting messages", err)
	}
	return count, nil
}

// UpdateContent replaces the content of an in-flight message while it
// streams. It does not touch is_partial.
func (r *gormMessageRepository) UpdateContent(ctx context.Context, chatID, messageID, content string) error {
	if err := r.requireTx("message.UpdateContent"); err != nil {
		return err
	}
	if chatID == "" || messageID == "" {
		return domain.NewInvalidArgumentError("message.UpdateContent", "chat id and message id are required")
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND chat_id = ?", messageID, chatID).
		Update("content", content)
	if result.Error != nil {
		log.Printf("[MessageRepository] Database error updating message %s: %v", messageID, result.Error)
		return domain.NewStorageError("message.UpdateContent", "database error updating message", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	r.tx.Touch(store.KindMessages, chatID)
	return nil
}

// Finalize sets the final content and clears is_partial. The partial flag is
// cleared exactly once: finalizing an already-final message fails with
// ErrAlreadyFinalized instead of silently rewriting history.
func (r *gormMessageRepository) Finalize(ctx context.Context, chatID, messageID, content string) error {
	if err := r.requireTx("message.Finalize"); err != nil {
		return err
	}
	if chatID == "" || messageID == "" {
		return domain.NewInvalidArgumentError("message.Finalize", "chat id and message id are required")
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND chat_id = ? AND is_partial = ?", messageID, chatID, true).
		Updates(map[string]interface{}{
			"content":    content,
			"is_partial": false,
		})
	if result.Error != nil {
		log.Printf("[MessageRepository] Database error finalizing message %s: %v", messageID, result.Error)
		return domain.NewStorageError("message.Finalize", "database error finalizing message", result.Error)
	}
	if result.RowsAffected == 0 {
		exists, err := r.exists(ctx, chatID, messageID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyFinalized
		}
		return ErrMessageNotFound
	}
	r.tx.Touch(store.KindMessages, chatID)
	return nil
}

// DeletePartial removes a message that is still marked partial. Deleting a
// message that was already finalized (or never existed) is a no-op, which
// makes abort paths idempotent.
func (r *gormMessageRepository) DeletePartial(ctx context.Context, chatID, messageID string) error {
	if err := r.requireTx("message.DeletePartial"); err != nil {
		return err
	}
	if chatID == "" || messageID == "" {
		return domain.NewInvalidArgumentError("message.DeletePartial", "chat id and message id are required")
	}

	result := r.db.WithContext(ctx).
		Where("id = ? AND chat_id = ? AND is_partial = ?", messageID, chatID, true).
		Delete(&domain.Message{})
	if result.Error != nil {
		log.Printf("[MessageRepository] Database error deleting partial message %s: %v", messageID, result.Error)
		return domain.NewStorageError("message.DeletePartial", "database error deleting partial message", result.Error)
	}
	if result.RowsAffected > 0 {
		r.tx.Touch(store.KindMessages, chatID)
	}
	return nil
}

// DeleteByChatID removes every message owned by the chat and returns how many
// were deleted. Used for the cascading part of chat deletion.
func (r *gormMessageRepository) DeleteByChatID(ctx context.Context, chatID string) (int64, error) {
	if err := r.requireTx("message.DeleteByChatID"); err != nil {
		return 0, err
	}
	if chatID == "" {
		return 0, domain.NewInvalidArgumentError("message.DeleteByChatID", "chat id is required")
	}

	result := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.Message{})
	if result.Error != nil {
		log.Printf("[MessageRepository] Database error deleting messages for chat %s: %v", chatID, result.Error)
		return 0, domain.NewStorageError("message.DeleteByChatID", "database error deleting messages", result.Error)
	}
	r.tx.Touch(store.KindMessages, chatID)
	return result.RowsAffected, nil
}

func (r *gormMessageRepository) exists(ctx context.Context, chatID, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND chat_id = ?", messageID, chatID).
		Count(&count).Error
	if err != nil {
		return false, domain.NewStorageError("message.exists", "database error checking message existence", err)
	}
	return count > 0, nil
}

func validateMessageInput(message *domain.Message) error {
	if message == nil {
		return domain.NewInvalidArgumentError("message.validate", "message cannot be nil")
	}
	if message.ChatID == "" {
		return domain.NewInvalidArgumentError("message.validate", "chat id is required")
	}
	if message.Role != domain.RoleUser && message.Role != domain.RoleAssistant {
		return domain.NewInvalidArgumentError("message.validate", "role must be user or assistant")
	}
	return nil
}
