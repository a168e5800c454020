package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/chatbot"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

// ConversationStore is the persistence surface of the chat endpoint.
// *clinic.PgRepository satisfies it.
type ConversationStore interface {
	GetConversationBySession(ctx context.Context, sessionID string) (*clinic.Conversation, error)
	CreateConversation(ctx context.Context, sessionID string) (*clinic.Conversation, error)
	SaveConversation(ctx context.Context, c *clinic.Conversation) error
	DeleteStaleConversations(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// Conversationalist turns one inbound message into a reply.
// *chatbot.Engine satisfies it.
type Conversationalist interface {
	Handle(ctx context.Context, conv *clinic.Conversation, text string) *chatbot.Reply
}

// CleanupPolicy tunes the opportunistic purge of abandoned conversations
// that piggybacks on chat traffic.
type CleanupPolicy struct {
	OneIn  int
	MaxAge time.Duration
	Batch  int
}

type ChatHandler struct {
	store   ConversationStore
	engine  Conversationalist
	cleanup CleanupPolicy
	log     *logging.Logger
	now     func() time.Time
}

func NewChatHandler(store ConversationStore, engine Conversationalist, cleanup CleanupPolicy, log *logging.Logger) *ChatHandler {
	return &ChatHandler{
		store:   store,
		engine:  engine,
		cleanup: cleanup,
		log:     log,
		now:     time.Now,
	}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		// First contact without a session: mint one and hand it back.
		req.SessionID = uuid.NewString()
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}

	h.maybeCleanup(r.Context())

	conv, err := h.store.GetConversationBySession(r.Context(), req.SessionID)
	if errors.Is(err, clinic.ErrConversationNotFound) {
		conv, err = h.store.CreateConversation(r.Context(), req.SessionID)
	}
	if err != nil {
		h.log.Error("conversation load failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load conversation")
		return
	}

	reply := h.engine.Handle(r.Context(), conv, req.Message)

	if err := h.store.SaveConversation(r.Context(), conv); err != nil {
		h.log.Error("conversation save failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not save conversation")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: conv.SessionID,
		State:     conv.State,
		Reply:     reply,
	})
}

// maybeCleanup purges a small batch of abandoned conversations on roughly
// one request in cleanup.OneIn. Riding on chat traffic keeps the table
// bounded without a scheduler; failures only cost this roll.
func (h *ChatHandler) maybeCleanup(ctx context.Context) {
	if h.cleanup.OneIn <= 0 || rand.IntN(h.cleanup.OneIn) != 0 {
		return
	}
	cutoff := h.now().Add(-h.cleanup.MaxAge)
	n, err := h.store.DeleteStaleConversations(ctx, cutoff, h.cleanup.Batch)
	if err != nil {
		h.log.Warn("stale conversation cleanup failed", "error", err)
		return
	}
	if n > 0 {
		h.log.Info("purged stale conversations", "count", n)
	}
}
