// Package server is the HTTP boundary: the chat endpoint, health check, and
// the admin route that triggers the leave approval transaction.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	orchestratorx "github.com/tanpawarit/leavedesk/agent/orchestrator"
	storex "github.com/tanpawarit/leavedesk/store"
)

// ChatService handles one user message and returns the reply text.
type ChatService interface {
	HandleMessage(ctx context.Context, userID string, text string) (string, error)
}

// ApprovalStore runs the leave approval transaction. It is administrative:
// the chat surface has no binding to it.
type ApprovalStore interface {
	UpdateLeaveStatus(ctx context.Context, requestID int64, newStatus string) (storex.ApprovalOutcome, error)
}

type Handler struct {
	chat      ChatService
	approvals ApprovalStore
}

func NewHandler(chat ChatService, approvals ApprovalStore) *Handler {
	return &Handler{
		chat:      chat,
		approvals: approvals,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.handleHealth)
	r.Post("/chat", h.handleChat)
	r.Post("/admin/leave-requests/{id}", h.handleLeaveStatus)

	return r
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	reply, err := h.chat.HandleMessage(r.Context(), req.UserID, req.Message)
	if err != nil {
		status, msg := mapChatError(err)
		Error(w, status, msg)
		return
	}

	JSON(w, http.StatusOK, chatResponse{Reply: reply})
}

type leaveStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleLeaveStatus(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid leave request id")
		return
	}

	var req leaveStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	outcome, err := h.approvals.UpdateLeaveStatus(r.Context(), requestID, strings.TrimSpace(req.Status))
	switch {
	case errors.Is(err, contractx.ErrAlreadyProcessed):
		// The prior outcome is the answer, not an internal failure.
		JSON(w, http.StatusConflict, outcome)
	case errors.Is(err, contractx.ErrNotFound):
		Error(w, http.StatusNotFound, "leave request not found")
	case errors.Is(err, contractx.ErrValidation):
		Error(w, http.StatusBadRequest, trimSentinel(err, contractx.ErrValidation))
	case errors.Is(err, contractx.ErrTransient):
		Error(w, http.StatusBadGateway, "storage temporarily unavailable")
	case err != nil:
		log.Error().Err(err).Int64("request_id", requestID).Msg("leave status update failed")
		Error(w, http.StatusInternalServerError, "internal error")
	default:
		JSON(w, http.StatusOK, outcome)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mapChatError(err error) (int, string) {
	switch {
	case errors.Is(err, orchestratorx.ErrInvalidUser):
		return http.StatusBadRequest, "user_id is required"
	case errors.Is(err, orchestratorx.ErrInvalidMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest, trimSentinel(err, contractx.ErrValidation)
	case errors.Is(err, contractx.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, contractx.ErrTransient):
		return http.StatusBadGateway, "a dependency is temporarily unavailable, try again"
	default:
		log.Error().Err(err).Msg("chat request failed")
		return http.StatusInternalServerError, "internal error"
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func trimSentinel(err error, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
