// File: internal/services/branch/branch_service.go

// Package branch forks conversations: a new chat that is conversationally
// identical to the source up to and including a chosen message.
package branch

import (
	"context"
	"fmt"
	"time"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/repository/chat"
	"github.com/iyunix/go-branchchat/internal/repository/message"
	"github.com/iyunix/go-branchchat/internal/store"
)

// Logger defines the logging interface used by the branch engine.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Warning flags a structural anomaly noticed while branching. Branching is
// never blocked on these; the engine favors availability over conversational
// grammar.
type Warning string

const (
	WarningBranchFromUserMessage Warning = "branch point is a user message; the copied prefix ends mid-turn"
	WarningConsecutiveSameRole   Warning = "copied prefix contains consecutive messages with the same role"
)

const untitledChat = "Untitled Chat"

// Result describes a completed branch operation.
type Result struct {
	NewChat      *domain.Chat `json:"branchedChat"`
	MessageCount int          `json:"messageCount"`
	Warnings     []Warning    `json:"warnings,omitempty"`
}

// Service is the branch engine.
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

// BranchChat forks a new chat containing the source chat's messages up to and
// including branchFromMessageIndex (zero-based, into the chronologically
// ordered list).
//
// Copied messages get fresh ids but keep their original created_at, so the
// branch orders identically to the source without a separate sequence field;
// the overlap of timestamp ranges between the two chats is fine because
// ordering is always scoped per chat.
//
// The whole read-prefix / create-chat / copy / bump sequence is one
// transaction, and the source is re-read inside it: a concurrent delete of
// the source either wins entirely (NotFound here) or loses entirely. A
// half-populated branch can never be observed.
func (s *Service) BranchChat(ctx context.Context, originalChatID string, branchFromMessageIndex int, newTitle string) (*Result, error) {
	if originalChatID == "" {
		return nil, domain.NewInvalidArgumentError("branch.BranchChat", "original chat id is required")
	}

	var result *Result
	err := s.store.Transaction(ctx, []store.Kind{store.KindChats, store.KindMessages}, func(tx *store.Tx) error {
		chats := s.chatRepo.WithTx(tx)
		msgs := s.messageRepo.WithTx(tx)

		original, err := chats.FindByID(ctx, originalChatID)
		if err != nil {
			return err
		}

		history, err := msgs.FindByChatID(ctx, originalChatID)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return domain.NewInvalidStateError("branch.BranchChat", "cannot branch a chat with no messages")
		}
		if branchFromMessageIndex < 0 || branchFromMessageIndex >= len(history) {
			return domain.NewInvalidArgumentError("branch.BranchChat",
				fmt.Sprintf("message index %d out of range [0, %d)", branchFromMessageIndex, len(history)))
		}

		prefix := history[:branchFromMessageIndex+1]
		warnings := inspectPrefix(prefix)
		for _, w := range warnings {
			s.logger.Warn("branch structural anomaly",
				"chat_id", originalChatID, "index", branchFromMessageIndex, "warning", string(w))
		}

		title := newTitle
		if title == "" {
			source := original.Title
			if source == "" {
				source = untitledChat
			}
			title = "Branch from " + source
		}

		newChat, err := chats.Create(ctx, &domain.Chat{
			Title:              title,
			BranchedFromChatID: originalChatID,
		})
		if err != nil {
			return err
		}

		copies := make([]*domain.Message, 0, len(prefix))
		for _, m := range prefix {
			copies = append(copies, &domain.Message{
				ChatID:    newChat.ID,
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt, // preserved so relative order matches the source
			})
		}
		if err := msgs.CreateInBatch(ctx, copies, 100); err != nil {
			return err
		}
		if err := chats.TouchUpdatedAt(ctx, newChat.ID); err != nil {
			return err
		}

		result = &Result{NewChat: newChat, MessageCount: len(copies), Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat branched",
		"original_chat_id", originalChatID,
		"new_chat_id", result.NewChat.ID,
		"message_count", result.MessageCount)
	return result, nil
}

// QuickBranch branches with a title taken from the source chat, falling back
// to an index-and-timestamp title when the source cannot be read.
func (s *Service) QuickBranch(ctx context.Context, originalChatID string, branchFromMessageIndex int) (*Result, error) {
	title := ""
	original, err := s.chatRepo.FindByID(ctx, originalChatID)
	switch {
	case err == nil:
		title = original.Title
		if title == "" {
			title = untitledChat
		}
	case domain.IsNotFound(err):
		// BranchChat will report the missing source itself.
	default:
		s.logger.Warn("quick branch title lookup failed, using fallback", "chat_id", originalChatID, "error", err)
		title = fmt.Sprintf("Branch from message %d (%s)", branchFromMessageIndex+1, time.Now().Format("2006-01-02 15:04"))
	}
	return s.BranchChat(ctx, originalChatID, branchFromMessageIndex, title)
}

// GetBranchedChats returns the chats branched from originalChatID, oldest
// first.
func (s *Service) GetBranchedChats(ctx context.Context, originalChatID string) ([]domain.Chat, error) {
	return s.chatRepo.FindBranches(ctx, originalChatID)
}

// GetOriginalChat returns the chat this one was branched from. The parent
// reference is a weak edge: a deleted or never-set parent yields (nil, nil),
// never an error. Only a missing chatID itself is NotFound.
func (s *Service) GetOriginalChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	c, err := s.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.IsBranch() {
		return nil, nil
	}
	parent, err := s.chatRepo.FindByID(ctx, c.BranchedFromChatID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return parent, nil
}

// inspectPrefix reports structural anomalies in a branch prefix.
func inspectPrefix(prefix []domain.Message) []Warning {
	var warnings []Warning
	if last := prefix[len(prefix)-1]; last.Role != domain.RoleAssistant {
		warnings = append(warnings, WarningBranchFromUserMessage)
	}
	for i := 1; i < len(prefix); i++ {
		if prefix[i].Role == prefix[i-1].Role {
			warnings = append(warnings, WarningConsecutiveSameRole)
			break
		}
	}
	return warnings
}
