package api

import (
	"errors"
	"net/http"

	"github.com/RichardoC/chatpad/internal/db"
	"github.com/RichardoC/chatpad/internal/llm"
	"github.com/RichardoC/chatpad/internal/models"
	"go.uber.org/zap"
)

type Handler struct {
	db      *db.Database
	chat    *llm.Service
	catalog []models.ModelInfo
	logger  *zap.Logger
}

func NewHandler(database *db.Database, chat *llm.Service, catalog []models.ModelInfo, logger *zap.Logger) *Handler {
	return &Handler{
		db:      database,
		chat:    chat,
		catalog: catalog,
		logger:  logger,
	}
}

// Routes returns the full HTTP surface wrapped in the request middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/conversations", h.ListConversations)
	mux.HandleFunc("POST /api/conversations", h.CreateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.DeleteConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}/title", h.RenameConversation)
	mux.HandleFunc("POST /api/conversations/{id}/title", h.RenameConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.GetMessages)
	mux.HandleFunc("POST /api/conversations/{id}/clear_context", h.ClearContext)
	mux.HandleFunc("POST /api/conversations/{id}/clear-context", h.ClearContext)

	mux.HandleFunc("POST /chat", h.Chat)
	mux.HandleFunc("GET /api/models", h.ListModels)
	mux.HandleFunc("POST /delete_message/{id}", h.DeleteMessage)
	mux.HandleFunc("POST /api/messages/{id}/regenerate", h.RegenerateMessage)
	mux.HandleFunc("POST /api/messages/{id}/edit", h.EditMessage)

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /{$}", serveIndex)
	mux.Handle("GET /static/", staticFiles())

	return h.withRequestLogging(mux)
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type CreateConversationResponse struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type RenameRequest struct {
	Title string `json:"title"`
}

type RenameResponse struct {
	Success bool   `json:"success"`
	Title   string `json:"title"`
}

type ChatRequest struct {
	Message        string `json:"message"`
	Model          string `json:"model"`
	ConversationID *int64 `json:"conversation_id"`
}

type ChatResponse struct {
	Response       string `json:"response"`
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	Time           string `json:"time"`
	Model          string `json:"model"`
	ConversationID int64  `json:"conversation_id"`
}

type RegenerateResponse struct {
	Success  bool   `json:"success"`
	ID       int64  `json:"id"`
	Response string `json:"response"`
	Time     string `json:"time"`
	Model    string `json:"model"`
}

type EditRequest struct {
	Content string `json:"content"`
}

type EditedUser struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

type EditedAssistant struct {
	ID       int64  `json:"id"`
	Response string `json:"response"`
	Time     string `json:"time"`
	Model    string `json:"model"`
}

type EditResponse struct {
	Success   bool             `json:"success"`
	User      EditedUser       `json:"user"`
	Assistant *EditedAssistant `json:"assistant"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.db.ListConversations(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Debug("listed conversations", zap.Int("count", len(conversations)))
	h.respond(w, http.StatusOK, conversations)
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	conv, err := h.db.CreateConversation(r.Context(), req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("created conversation", zap.Int64("conversation_id", conv.ID), zap.String("title", conv.Title))
	h.respond(w, http.StatusOK, CreateConversationResponse{ID: conv.ID, Title: conv.Title})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.db.DeleteConversation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("deleted conversation", zap.Int64("conversation_id", id))
	h.respond(w, http.StatusOK, SuccessResponse{Success: deleted})
}

func (h *Handler) RenameConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req RenameRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	title, err := h.db.RenameConversation(r.Context(), id, req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, RenameResponse{Success: true, Title: title})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	messages, err := h.db.Messages(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, messages)
}

func (h *Handler) ClearContext(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	cleared, err := h.db.ClearContext(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("cleared context", zap.Int64("conversation_id", id), zap.Bool("cleared", cleared))
	h.respond(w, http.StatusOK, SuccessResponse{Success: cleared})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.chat.Send(r.Context(), llm.SendRequest{
		Message:        req.Message,
		Model:          req.Model,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, ChatResponse{
		Response:       res.Assistant.Content,
		ID:             res.Assistant.ID,
		UserID:         res.User.ID,
		Time:           formatTime(res.Assistant.Timestamp),
		Model:          res.Assistant.Model,
		ConversationID: res.Assistant.ConvID,
	})
}

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, h.catalog)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.db.DeleteMessage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, SuccessResponse{Success: deleted})
}

func (h *Handler) RegenerateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	msg, err := h.chat.Regenerate(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, RegenerateResponse{
		Success:  true,
		ID:       msg.ID,
		Response: msg.Content,
		Time:     formatTime(msg.Timestamp),
		Model:    msg.Model,
	})
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req EditRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	res, err := h.chat.Edit(r.Context(), id, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := EditResponse{
		Success: true,
		User: EditedUser{
			ID:      res.User.ID,
			Content: res.User.Content,
			Time:    formatTime(res.User.Timestamp),
		},
	}
	if a := res.Assistant; a != nil {
		resp.Assistant = &EditedAssistant{
			ID:       a.ID,
			Response: a.Content,
			Time:     formatTime(a.Timestamp),
			Model:    a.Model,
		}
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		h.respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps domain errors to 404/400 and anything else to a logged 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrConversationNotFound),
		errors.Is(err, db.ErrMessageNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrEmptyTitle),
		errors.Is(err, llm.ErrEmptyContent),
		errors.Is(err, llm.ErrNotAssistantMessage),
		errors.Is(err, llm.ErrNotUserMessage),
		errors.Is(err, llm.ErrNoUserMessage):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
