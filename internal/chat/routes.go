package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/conversation"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/stream"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 1 << 20

// Handler serves the chat endpoints.
type Handler struct {
	pipeline *Pipeline
	store    *conversation.Store
	logger   zerolog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// HandlerConfig configures a Handler. Store may be nil, in which case the
// conversation history route is not mounted.
type HandlerConfig struct {
	Store          *conversation.Store
	AllowedOrigins []string
	AllowAll       bool
	Logger         zerolog.Logger
	Metrics        *observability.Metrics
}

// NewHandler creates the HTTP handler for p.
func NewHandler(p *Pipeline, cfg HandlerConfig) *Handler {
	h := &Handler{
		pipeline: p,
		store:    cfg.Store,
		logger:   cfg.Logger.With().Str("component", "chat-http").Logger(),
		metrics:  cfg.Metrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins, cfg.AllowAll),
	}
	return h
}

// originChecker returns nil, the gorilla same-origin default, when no
// origins are configured.
func originChecker(allowed []string, allowAll bool) func(*http.Request) bool {
	if allowAll {
		return func(*http.Request) bool { return true }
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// RegisterRoutes mounts the chat API behind the authenticator.
func RegisterRoutes(r chi.Router, h *Handler, authn auth.Authenticator) {
	counted := auth.AuthenticatorFunc(func(req *http.Request) (auth.Identity, error) {
		id, err := authn.Authenticate(req)
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			h.metrics.RecordError(endpointFor(req), observability.ErrorCodeUnauthorized)
		case err != nil:
			h.logger.Error().Err(err).Msg("authenticating request")
			h.metrics.RecordError(endpointFor(req), observability.ErrorCodeInternal)
		}
		return id, err
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(counted))
		r.Post("/api/chat", h.handleChat)
		r.Get("/ws/chat", h.handleWebSocket)
		if h.store != nil {
			r.Get("/api/conversations", h.handleConversations)
			r.Get("/api/conversations/{id}/messages", h.handleMessages)
		}
	})
}

func endpointFor(r *http.Request) observability.Endpoint {
	if websocket.IsWebSocketUpgrade(r) {
		return observability.EndpointWebSocket
	}
	return observability.EndpointSSE
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordError(observability.EndpointSSE, observability.ErrorCodeValidation)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RecordError(observability.EndpointSSE, observability.ErrorCodeValidation)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sink, err := stream.NewSSESink(w)
	if err != nil {
		h.logger.Error().Err(err).Msg("response writer cannot stream")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	stream.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := h.pipeline.ForEndpoint(observability.EndpointSSE).Run(r.Context(), id, req, sink); err != nil {
		h.logger.Debug().Err(err).Str("user_id", id.UserID).Msg("chat turn ended without done")
	}
}

// handleWebSocket answers each inbound text message with one turn. A
// reader goroutine watches the connection so that a close cancels the
// turn in progress.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan []byte, 8)
	go func() {
		defer cancel()
		defer close(inbound)
		for {
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if typ != websocket.TextMessage {
				continue
			}
			select {
			case inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	sink := stream.NewWSSink(conn)
	pipeline := h.pipeline.ForEndpoint(observability.EndpointWebSocket)
	for msg := range inbound {
		var req ChatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			h.metrics.RecordError(observability.EndpointWebSocket, observability.ErrorCodeValidation)
			if err := sink.Send(stream.Error{Message: msgInvalidRequest}); err != nil {
				return
			}
			continue
		}
		if err := pipeline.Run(ctx, id, req, sink); err != nil {
			h.logger.Debug().Err(err).Str("user_id", id.UserID).Msg("websocket turn ended without done")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	convs, err := h.store.ListByUser(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", id.UserID).Msg("listing conversations")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	convID := chi.URLParam(r, "id")

	owner, err := h.store.Owner(r.Context(), convID)
	if errors.Is(err, conversation.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("conversation_id", convID).Msg("loading conversation")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if owner != id.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	msgs, err := h.store.Messages(r.Context(), convID)
	if err != nil {
		h.logger.Error().Err(err).Str("conversation_id", convID).Msg("listing messages")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
