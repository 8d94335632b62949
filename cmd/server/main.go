// File: cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-branchchat/internal/config"
	"github.com/iyunix/go-branchchat/internal/handlers"
	"github.com/iyunix/go-branchchat/internal/livequery"
	"github.com/iyunix/go-branchchat/internal/markdown"
	"github.com/iyunix/go-branchchat/internal/middleware"
	chatrepo "github.com/iyunix/go-branchchat/internal/repository/chat"
	messagerepo "github.com/iyunix/go-branchchat/internal/repository/message"
	"github.com/iyunix/go-branchchat/internal/services"
	"github.com/iyunix/go-branchchat/internal/services/ai"
	"github.com/iyunix/go-branchchat/internal/services/branch"
	chatservice "github.com/iyunix/go-branchchat/internal/services/chat"
	"github.com/iyunix/go-branchchat/internal/services/conversation"
	"github.com/iyunix/go-branchchat/internal/store"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.Load()

	// --- Store ---
	st, err := store.Open(store.Config{Path: cfg.DatabasePath}, services.NewLogger("store"))
	if err != nil {
		log.Fatalf("FATAL: Failed to open record store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("store close failed: %v", err)
		}
	}()

	// --- Repositories ---
	chatRepo := chatrepo.NewChatRepository(st)
	messageRepo := messagerepo.NewMessageRepository(st)

	// --- Services ---
	aiConfig := ai.DefaultConfig()
	aiConfig.LLMKey = cfg.LLMAPIKey
	aiConfig.LLMBaseURL = cfg.LLMBaseURL
	aiConfig.DefaultModel = cfg.DefaultModel
	if err := aiConfig.Validate(); err != nil {
		log.Fatalf("FATAL: Invalid AI configuration: %v", err)
	}
	provider := ai.NewOpenAIProvider(aiConfig)

	conversationService := conversation.NewService(st, chatRepo, messageRepo, services.NewLogger("conversation"))
	branchService := branch.NewService(st, chatRepo, messageRepo, services.NewLogger("branch"))

	chatConfig := chatservice.DefaultConfig()
	chatConfig.DefaultModel = cfg.DefaultModel
	chatConfig.FlushInterval = time.Duration(cfg.FlushMillis) * time.Millisecond
	if err := chatConfig.Validate(); err != nil {
		log.Fatalf("FATAL: Invalid chat configuration: %v", err)
	}
	streamingService := chatservice.NewStreamingService(chatConfig, conversationService, provider, services.NewLogger("chat"))

	queries := livequery.New(st, services.NewLogger("livequery"))

	// --- Handlers ---
	chatHandler := handlers.NewChatHandler(conversationService, branchService, streamingService, markdown.NewRenderer())
	watchHandler := handlers.NewWatchHandler(queries, conversationService)

	// --- Router Setup ---
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(middleware.RecoverPanic)
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chats", chatHandler.ListChats).Methods("GET")
	api.HandleFunc("/chats", chatHandler.CreateChat).Methods("POST")
	api.HandleFunc("/chats/{id}", chatHandler.GetChat).Methods("GET")
	api.HandleFunc("/chats/{id}", chatHandler.DeleteChat).Methods("DELETE")
	api.HandleFunc("/chats/{id}/title", chatHandler.UpdateChatTitle).Methods("PUT")
	api.HandleFunc("/chats/{id}/messages", chatHandler.GetChatMessages).Methods("GET")
	api.HandleFunc("/chats/{id}/branch", chatHandler.BranchChat).Methods("POST")
	api.HandleFunc("/chats/{id}/branches", chatHandler.GetBranches).Methods("GET")
	api.HandleFunc("/chats/{id}/original", chatHandler.GetOriginal).Methods("GET")
	api.HandleFunc("/models", chatHandler.ListModels).Methods("GET")
	api.HandleFunc("/prompts", chatHandler.ListPrompts).Methods("GET")
	api.HandleFunc("/chat", chatHandler.SendMessage).Methods("POST")
	api.HandleFunc("/watch/chats", watchHandler.WatchChats).Methods("GET")
	api.HandleFunc("/watch/chats/{id}/messages", watchHandler.WatchChatMessages).Methods("GET")

	// --- Server Configuration ---
	port := ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:    port,
		Handler: r,
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("BranchChat server starting on port %s", port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped gracefully")
}
