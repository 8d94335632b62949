// File: internal/handlers/chat_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/markdown"
	"github.com/iyunix/go-branchchat/internal/services/ai"
	"github.com/iyunix/go-branchchat/internal/services/branch"
	"github.com/iyunix/go-branchchat/internal/services/chat"
	"github.com/iyunix/go-branchchat/internal/services/conversation"
)

type ChatHandler struct {
	Conversation *conversation.Service
	Branch       *branch.Service
	Streaming    *chat.StreamingService
	Renderer     *markdown.Renderer
}

func NewChatHandler(conv *conversation.Service, br *branch.Service, streaming *chat.StreamingService, renderer *markdown.Renderer) *ChatHandler {
	return &ChatHandler{
		Conversation: conv,
		Branch:       br,
		Streaming:    streaming,
		Renderer:     renderer,
	}
}

// ListChats returns every chat, most recently active first.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Conversation.GetChats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// CreateChat creates an empty chat.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title              string `json:"title"`
		BranchedFromChatID string `json:"branchedFromChatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	created, err := h.Conversation.CreateChat(r.Context(), req.Title, req.BranchedFromChatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetChat returns one chat by id.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	c, err := h.Conversation.GetChat(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateChatTitle renames a chat.
func (h *ChatHandler) UpdateChatTitle(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := h.Conversation.UpdateChatTitle(r.Context(), chatID, req.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteChat removes a chat and all of its messages.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	if err := h.Conversation.DeleteChat(r.Context(), chatID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messageView is a message plus optionally its rendered HTML.
type messageView struct {
	domain.Message
	ContentHTML string `json:"contentHtml,omitempty"`
}

// GetChatMessages returns the chat's messages in order. With ?format=html the
// content is additionally rendered as HTML.
func (h *ChatHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	messages, err := h.Conversation.GetChatMessages(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("format") != "html" {
		writeJSON(w, http.StatusOK, messages)
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		html, err := h.Renderer.Render(m.Content)
		if err != nil {
			writeError(w, "Could not render message content", http.StatusInternalServerError)
			return
		}
		views = append(views, messageView{Message: m, ContentHTML: html})
	}
	writeJSON(w, http.StatusOK, views)
}

// BranchChat forks a chat at a message index. With "quick": true the new
// chat's title is copied from the source.
func (h *ChatHandler) BranchChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	var req struct {
		MessageIndex int    `json:"messageIndex"`
		Title        string `json:"title"`
		Quick        bool   `json:"quick"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var result *branch.Result
	var err error
	if req.Quick {
		result, err = h.Branch.QuickBranch(r.Context(), chatID, req.MessageIndex)
	} else {
		result, err = h.Branch.BranchChat(r.Context(), chatID, req.MessageIndex, req.Title)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetBranches returns the chats branched from this one.
func (h *ChatHandler) GetBranches(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	branches, err := h.Branch.GetBranchedChats(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

// GetOriginal returns the chat this one was branched from, or null when the
// parent is gone or was never set.
func (h *ChatHandler) GetOriginal(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	original, err := h.Branch.GetOriginalChat(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, original)
}

// ListModels returns the selectable chat models.
func (h *ChatHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ai.ModelRegistry)
}

// ListPrompts returns the selectable system prompt personas.
func (h *ChatHandler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ai.SystemPrompts())
}

// SendMessage runs one chat turn and streams the reply as server-sent events:
// "delta" events carry content fragments, one final "done" event carries the
// persisted result, "error" reports a failed stream.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID  string `json:"chatId"`
		Model   string `json:"model"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	result, err := h.Streaming.SendMessage(r.Context(), chat.SendParams{
		ChatID:  req.ChatID,
		Model:   req.Model,
		Content: req.Content,
	}, func(delta string) error {
		writeSSE(w, "delta", map[string]string{"content": delta})
		flusher.Flush()
		return nil
	})
	if err != nil {
		writeSSE(w, "error", map[string]interface{}{
			"message": err.Error(),
			"result":  result,
		})
		flusher.Flush()
		return
	}

	writeSSE(w, "done", result)
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\ndata: " + string(payload) + "\n\n"))
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		writeError(w, err.Error(), http.StatusNotFound)
	case domain.IsInvalidArgument(err):
		writeError(w, err.Error(), http.StatusBadRequest)
	case domain.IsInvalidState(err):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
