// File: internal/services/conversation/conversation_service.go

// Package conversation implements the chat/message domain operations on top
// of the record store: creating and deleting chats, appending messages, title
// management and ordered retrieval.
package conversation

import (
	"context"
	"strings"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/repository/chat"
	"github.com/iyunix/go-branchchat/internal/repository/message"
	"github.com/iyunix/go-branchchat/internal/store"
)

// Logger defines the logging interface used by the conversation service.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// titleMaxLength mirrors the sidebar width: derived titles are the first 50
// characters of the first user message.
const titleMaxLength = 50

// Service is the conversation repository. All mutation happens inside store
// transactions so chat-list ordering (updated_at) and message ordering
// (created_at, seq) stay consistent under interleaving.
type Service struct {
	store       *store.Store
	chatRepo    chat.ChatRepository
	messageRepo message.MessageRepository
	logger      Logger
}

func NewService(st *store.Store, chatRepo chat.ChatRepository, messageRepo message.MessageRepository, logger Logger) *Service {
	return &Service{
		store:       st,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		logger:      logger,
	}
}

// CreateChat creates an empty chat. branchedFromChatID may reference a chat
// that no longer exists; the reference is stored as-is.
func (s *Service) CreateChat(ctx context.Context, title, branchedFromChatID string) (*domain.Chat, error) {
	var created *domain.Chat
	err := s.store.Transaction(ctx, []store.Kind{store.KindChats}, func(tx *store.Tx) error {
		var txErr error
		created, txErr = s.chatRepo.WithTx(tx).Create(ctx, &domain.Chat{
			Title:              title,
			BranchedFromChatID: branchedFromChatID,
		})
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("chat created", "chat_id", created.ID, "branched_from", branchedFromChatID)
	return created, nil
}

// UpdateChatTitle sets the title and bumps updated_at. Fails with NotFound
// when the chat is absent.
func (s *Service) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	return s.store.Transaction(ctx, []store.Kind{store.KindChats}, func(tx *store.Tx) error {
		return s.chatRepo.WithTx(tx).UpdateTitle(ctx, chatID, title)
	})
}

// AddMessageParams describes one completed turn to persist.
type AddMessageParams struct {
	ChatID    string
	Role      string
	Content   string
	IsPartial bool
}

// AddMessage persists a message and bumps the owning chat's updated_at in the
// same transaction, since updated_at drives chat-list ordering. Fails with
// NotFound when the chat is absent.
func (s *Service) AddMessage(ctx context.Context, p AddMessageParams) (*domain.Message, error) {
	if p.ChatID == "" {
		return nil, domain.NewInvalidArgumentError("conversation.AddMessage", "chat id is required")
	}

	var msg *domain.Message
	err := s.store.Transaction(ctx, []store.Kind{store.KindChats, store.KindMessages}, func(tx *store.Tx) error {
		var txErr error
		msg, txErr = s.messageRepo.WithTx(tx).Create(ctx, &domain.Message{
			ChatID:    p.ChatID,
			Role:      p.Role,
			Content:   p.Content,
			IsPartial: p.IsPartial,
		})
		if txErr != nil {
			return txErr
		}
		return s.chatRepo.WithTx(tx).TouchUpdatedAt(ctx, p.ChatID)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateMessageContent replaces a streaming message's content. The chat's
// updated_at is not bumped here: content growth is not an append.
func (s *Service) UpdateMessageContent(ctx context.Context, chatID, messageID, content string) error {
	return s.store.Transaction(ctx, []store.Kind{store.KindMessages}, func(tx *store.Tx) error {
		return s.messageRepo.WithTx(tx).UpdateContent(ctx, chatID, messageID, content)
	})
}

// FinalizeMessage clears the partial flag exactly once, setting the final
// content and bumping the chat atomically.
func (s *Service) FinalizeMessage(ctx context.Context, chatID, messageID, content string) error {
	return s.store.Transaction(ctx, []store.Kind{store.KindChats, store.KindMessages}, func(tx *store.Tx) error {
		if err := s.messageRepo.WithTx(tx).Finalize(ctx, chatID, messageID, content); err != nil {
			return err
		}
		return s.chatRepo.WithTx(tx).TouchUpdatedAt(ctx, chatID)
	})
}

// DiscardPartialMessage removes a message that never finished streaming. A
// message that was already finalized is left alone.
func (s *Service) DiscardPartialMessage(ctx context.Context, chatID, messageID string) error {
	return s.store.Transaction(ctx, []store.Kind{store.KindMessages}, func(tx *store.Tx) error {
		return s.messageRepo.WithTx(tx).DeletePartial(ctx, chatID, messageID)
	})
}

// GetChat returns one chat by id.
func (s *Service) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return s.chatRepo.FindByID(ctx, chatID)
}

// GetChats returns all chats, most recently active first.
func (s *Service) GetChats(ctx context.Context) ([]domain.Chat, error) {
	return s.chatRepo.FindAll(ctx)
}

// GetChatMessages returns the chat's messages in chronological order.
// Deleted or never-existing chats yield an empty sequence, not an error.
func (s *Service) GetChatMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	return s.messageRepo.FindByChatID(ctx, chatID)
}

// DeleteChat removes the chat and all of its messages in one transaction.
// Branches of the chat keep their (now dangling) branchedFromChatId.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	var removed int64
	err := s.store.Transaction(ctx, []store.Kind{store.KindChats, store.KindMessages}, func(tx *store.Tx) error {
		var txErr error
		removed, txErr = s.messageRepo.WithTx(tx).DeleteByChatID(ctx, chatID)
		if txErr != nil {
			return txErr
		}
		return s.chatRepo.WithTx(tx).Delete(ctx, chatID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("chat deleted", "chat_id", chatID, "messages_removed", removed)
	return nil
}

// DeriveTitle builds a chat title from the first user message: the first 50
// characters, with an ellipsis when truncated.
func DeriveTitle(content string) string {
	trimmed := strings.TrimSpace(content)
	runes := []rune(trimmed)
	if len(runes) <= titleMaxLength {
		return trimmed
	}
	return string(runes[:titleMaxLength]) + "..."
}
