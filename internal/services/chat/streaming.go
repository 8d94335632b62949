// File: internal/services/chat/streaming.go

// Package chat orchestrates one conversational turn: persist the user
// message, stream the model reply, and keep the stored assistant message in
// step with what the client has already seen.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/services/ai"
	"github.com/iyunix/go-branchchat/internal/services/conversation"
)

const dbSaveTimeout = 5 * time.Second // cleanup writes after the request context died

// SendParams describes one user turn. An empty ChatID starts a new chat.
type SendParams struct {
	ChatID  string
	Model   string
	Content string
}

// SendResult reports what a completed (or aborted) turn persisted.
type SendResult struct {
	Chat             *domain.Chat    `json:"chat"`
	UserMessage      *domain.Message `json:"userMessage"`
	AssistantMessage *domain.Message `json:"assistantMessage,omitempty"`
	Model            string          `json:"model"`
	SystemPromptID   string          `json:"systemPromptId"`
}

// StreamingService drives the send-message pipeline.
type StreamingService struct {
	config       *Config
	conversation *conversation.Service
	provider     ai.CompletionProvider
	logger       Logger
}

func NewStreamingService(config *Config, conv *conversation.Service, provider ai.CompletionProvider, logger Logger) *StreamingService {
	return &StreamingService{
		config:       config,
		conversation: conv,
		provider:     provider,
		logger:       logger,
	}
}

// SendMessage runs one full turn. The user message is durable before the
// model is contacted; the assistant reply lives as a partial message while it
// streams and is finalized (or discarded, if nothing arrived) afterwards, so
// a crash mid-stream never leaves an invisible reply.
//
// onDelta receives each content fragment for the client stream. Returning an
// error from it aborts the model stream; whatever already streamed is kept.
func (s *StreamingService) SendMessage(ctx context.Context, p SendParams, onDelta func(string) error) (*SendResult, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, domain.NewInvalidArgumentError("chat.SendMessage", "message content is required")
	}
	model := p.Model
	if model == "" {
		model = s.config.DefaultModel
	}
	if _, ok := ai.LookupModel(model); !ok {
		return nil, domain.NewInvalidArgumentError("chat.SendMessage", "unknown model "+model)
	}

	chat, err := s.resolveChat(ctx, p)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.conversation.AddMessage(ctx, conversation.AddMessageParams{
		ChatID:  chat.ID,
		Role:    domain.RoleUser,
		Content: p.Content,
	})
	if err != nil {
		return nil, err
	}

	history, err := s.conversation.GetChatMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	promptID := ai.DetermineSystemPromptID(p.Content)
	result := &SendResult{Chat: chat, UserMessage: userMsg, Model: model, SystemPromptID: promptID}

	assistant, err := s.conversation.AddMessage(ctx, conversation.AddMessageParams{
		ChatID:    chat.ID,
		Role:      domain.RoleAssistant,
		Content:   "",
		IsPartial: true,
	})
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.config.StreamTimeout)
	defer cancel()

	var streamed strings.Builder
	lastFlush := time.Now()
	full, streamErr := s.provider.StreamCompletion(streamCtx, ai.StreamRequest{
		Model:          model,
		SystemPromptID: promptID,
		History:        history,
	}, func(delta string) error {
		streamed.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
		if time.Since(lastFlush) >= s.config.FlushInterval {
			lastFlush = time.Now()
			if err := s.conversation.UpdateMessageContent(ctx, chat.ID, assistant.ID, streamed.String()); err != nil {
				s.logger.Warn("progressive content save failed", "chat_id", chat.ID, "message_id", assistant.ID, "error", err)
			}
		}
		return nil
	})
	if full == "" {
		full = streamed.String()
	}

	if streamErr != nil {
		s.logger.Error("stream failed", "chat_id", chat.ID, "model", model, "error", streamErr)
		s.settleAfterFailure(chat.ID, assistant.ID, full)
		if full != "" {
			assistant.Content = full
			assistant.IsPartial = false
			result.AssistantMessage = assistant
		}
		return result, streamErr
	}

	if err := s.conversation.FinalizeMessage(ctx, chat.ID, assistant.ID, full); err != nil {
		return result, err
	}
	assistant.Content = full
	assistant.IsPartial = false
	result.AssistantMessage = assistant

	s.logger.Info("turn completed", "chat_id", chat.ID, "model", model, "response_length", len(full))
	return result, nil
}

// resolveChat loads the target chat, creating one with a derived title when
// the request names none. An existing untitled chat is titled from this
// message.
func (s *StreamingService) resolveChat(ctx context.Context, p SendParams) (*domain.Chat, error) {
	if p.ChatID == "" {
		return s.conversation.CreateChat(ctx, conversation.DeriveTitle(p.Content), "")
	}
	chat, err := s.conversation.GetChat(ctx, p.ChatID)
	if err != nil {
		return nil, err
	}
	if chat.Title == "" {
		title := conversation.DeriveTitle(p.Content)
		if err := s.conversation.UpdateChatTitle(ctx, chat.ID, title); err != nil {
			s.logger.Warn("title derivation failed", "chat_id", chat.ID, "error", err)
		} else {
			chat.Title = title
		}
	}
	return chat, nil
}

// settleAfterFailure resolves the partial assistant message once the stream
// is known dead: keep what streamed, or remove the empty placeholder. The
// request context may already be canceled, so these writes get their own.
func (s *StreamingService) settleAfterFailure(chatID, messageID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), dbSaveTimeout)
	defer cancel()

	if content == "" {
		if err := s.conversation.DiscardPartialMessage(ctx, chatID, messageID); err != nil {
			s.logger.Error("failed to discard empty partial message", "chat_id", chatID, "message_id", messageID, "error", err)
		}
		return
	}
	if err := s.conversation.FinalizeMessage(ctx, chatID, messageID, content); err != nil {
		s.logger.Error("failed to finalize interrupted message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}
