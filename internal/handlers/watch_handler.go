// File: internal/handlers/watch_handler.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/livequery"
	"github.com/iyunix/go-branchchat/internal/services/conversation"
	"github.com/iyunix/go-branchchat/internal/store"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WatchHandler pushes live query results over WebSocket. Each connection
// holds one subscription: the initial value is sent on connect, then a fresh
// result after every commit that touches the watched records.
type WatchHandler struct {
	queries  *livequery.Queries
	conv     *conversation.Service
	upgrader websocket.Upgrader
}

func NewWatchHandler(queries *livequery.Queries, conv *conversation.Service) *WatchHandler {
	return &WatchHandler{
		queries: queries,
		conv:    conv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type watchEvent struct {
	Type  string      `json:"type"` // "snapshot" | "error"
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// WatchChats streams the chat list, re-sent whenever any chat changes.
func (h *WatchHandler) WatchChats(w http.ResponseWriter, r *http.Request) {
	sub := livequery.Subscribe(h.queries,
		[]store.Selector{{Kind: store.KindChats}},
		func(ctx context.Context) ([]domain.Chat, error) {
			return h.conv.GetChats(ctx)
		},
		livequery.Options{ShareKey: "chats"},
	)
	serveSubscription(h, w, r, sub)
}

// WatchChatMessages streams one chat's message list. Only commits touching
// that chat's messages trigger a resend; the subscription outlives deletion
// of the chat and then reports an empty list.
func (h *WatchHandler) WatchChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	sub := livequery.Subscribe(h.queries,
		[]store.Selector{{Kind: store.KindMessages, Key: chatID}},
		func(ctx context.Context) ([]domain.Message, error) {
			return h.conv.GetChatMessages(ctx, chatID)
		},
		livequery.Options{ShareKey: "messages:" + chatID},
	)
	serveSubscription(h, w, r, sub)
}

func toEvent[T any](res livequery.Result[T]) watchEvent {
	if res.Err != nil {
		return watchEvent{Type: "error", Error: res.Err.Error()}
	}
	return watchEvent{Type: "snapshot", Data: res.Value}
}

// serveSubscription upgrades the connection and forwards the subscription's
// results until either side goes away.
func serveSubscription[T any](h *WatchHandler, w http.ResponseWriter, r *http.Request, sub *livequery.Subscription[T]) {
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WatchHandler] WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: no client messages are expected, but reading is what
	// detects the peer closing.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(toEvent(sub.Current())); err != nil {
		return
	}

	pings := time.NewTicker(wsPingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-sub.Done():
			return
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case res := <-sub.Updates():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(toEvent(res)); err != nil {
				return
			}
		}
	}
}
