package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/smartstar/internal/chat"
	"github.com/ashureev/smartstar/internal/identity"
	"github.com/ashureev/smartstar/internal/store"
	"github.com/go-chi/chi/v5"
)

// ChatHandler exposes the conversation of the requesting device.
type ChatHandler struct {
	*Handler
	reg *chat.Registry
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler, reg *chat.Registry) *ChatHandler {
	return &ChatHandler{Handler: base, reg: reg}
}

// RegisterRoutes registers the chat routes behind the sign-in check.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.Get)
		r.Post("/messages", h.Send)
		r.Post("/new", h.NewChat)
		r.Post("/history/{id}/open", h.OpenHistory)
		r.Delete("/history/{id}", h.DeleteHistory)
	})
}

type ctrlKey struct{}

type sendRequest struct {
	Text string `json:"text"`
}

type chatResponse struct {
	chat.Snapshot
	Notice string `json:"notice,omitempty"`
}

func (h *ChatHandler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := h.controller(r.Context(), identity.DeviceIDFromContext(r.Context()))
		if err != nil {
			Reject(w, http.StatusUnauthorized, "not_authenticated", "Please sign in first.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctrlKey{}, ctrl)))
	})
}

func controllerFrom(r *http.Request) *chat.Controller {
	ctrl, _ := r.Context().Value(ctrlKey{}).(*chat.Controller)
	return ctrl
}

// controller returns the conversation of a signed-in device. A controller
// built on this call loads the history list first.
func (h *ChatHandler) controller(ctx context.Context, deviceID string) (*chat.Controller, error) {
	sess := store.NewSessionStore(h.repo, deviceID)
	if !sess.IsAuthenticated(ctx) {
		return nil, errNotAuthenticated
	}
	userID := sess.CurrentUserID(ctx)
	if userID == "" {
		return nil, errNotAuthenticated
	}

	sess.Touch(ctx)

	ctrl, created := h.reg.Get(deviceID, userID)
	if created {
		ctrl.RefreshHistory(ctx)
	}
	return ctrl, nil
}

// LiveSnapshot returns the snapshot pushed when a live channel opens.
func (h *ChatHandler) LiveSnapshot(ctx context.Context, deviceID string) (any, bool) {
	ctrl, err := h.controller(ctx, deviceID)
	if err != nil {
		return nil, false
	}
	return ctrl.Snapshot(), true
}

// Get returns the current conversation.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, chatResponse{Snapshot: controllerFrom(r).Snapshot()})
}

// Send runs one exchange and returns the resulting conversation.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctrl := controllerFrom(r)
	if err := ctrl.Send(r.Context(), req.Text); err != nil {
		if errors.Is(err, chat.ErrSendInFlight) {
			Reject(w, http.StatusConflict, "send_in_flight", "Please wait for the current reply.")
			return
		}
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, chatResponse{Snapshot: ctrl.Snapshot()})
}

// NewChat starts an empty conversation.
func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r)
	ctrl.NewChat()
	JSON(w, http.StatusOK, chatResponse{Snapshot: ctrl.Snapshot()})
}

// OpenHistory loads a persisted session. A failed load keeps the open
// conversation and is only reported as a notice.
func (h *ChatHandler) OpenHistory(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r)
	id := chi.URLParam(r, "id")

	entry, ok := ctrl.FindHistory(id)
	if !ok {
		entry.ID = id
	}

	resp := chatResponse{}
	if err := ctrl.SelectHistory(r.Context(), entry); err != nil {
		slog.Warn("History entry not opened", "session_id", id, "error", err)
		resp.Notice = transportNotice
	}
	resp.Snapshot = ctrl.Snapshot()
	JSON(w, http.StatusOK, resp)
}

// DeleteHistory deletes a persisted session.
func (h *ChatHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r)
	if err := ctrl.DeleteHistory(r.Context(), chi.URLParam(r, "id")); err != nil {
		Reject(w, http.StatusBadGateway, "delete_failed", "Could not delete the conversation.")
		return
	}
	JSON(w, http.StatusOK, chatResponse{Snapshot: ctrl.Snapshot()})
}

// errNotAuthenticated marks requests from a device that is not signed in.
var errNotAuthenticated = errors.New("not authenticated")
