package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/smartstar/internal/config"
	"github.com/ashureev/smartstar/internal/gateway"
	"github.com/ashureev/smartstar/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Authenticator is the account slice of the backend API.
type Authenticator interface {
	Login(ctx context.Context, userID, password string) (gateway.LoginResult, error)
	FindID(ctx context.Context, userName, email string) (gateway.FindIDResult, error)
	Signup(ctx context.Context, req gateway.SignupRequest) (gateway.SignupOutcome, error)
}

// SignOutFunc releases the in-memory state of a device after logout.
type SignOutFunc func(deviceID string)

// AuthHandler handles sign-in, sign-up and account recovery.
type AuthHandler struct {
	*Handler
	auth      Authenticator
	guest     config.GuestConfig
	onSignOut SignOutFunc
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(base *Handler, auth Authenticator, guest config.GuestConfig, onSignOut SignOutFunc) *AuthHandler {
	return &AuthHandler{Handler: base, auth: auth, guest: guest, onSignOut: onSignOut}
}

// RegisterRoutes registers the session and auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.Session)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/guest", h.Guest)
		r.Post("/logout", h.Logout)
		r.Post("/signup", h.Signup)
		r.Post("/find-id", h.FindID)
	})
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Name          string `json:"name,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

type loginRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signupRequest struct {
	UserID          string `json:"userId" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Email           string `json:"email" validate:"required,email"`
	UserName        string `json:"userName" validate:"required"`
}

type findIDRequest struct {
	UserName string `json:"userName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

// Session reports the durable authentication state of the device.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if !sess.IsAuthenticated(r.Context()) {
		JSON(w, http.StatusOK, sessionResponse{})
		return
	}
	sess.Touch(r.Context())
	JSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Name:          sess.CurrentName(r.Context()),
		UserID:        sess.CurrentUserID(r.Context()),
	})
}

// Login signs the device in with the submitted credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", "Please enter your ID and password.")
		return
	}
	h.login(w, r, strings.TrimSpace(req.UserID), req.Password, "Incorrect ID or password.")
}

// Guest signs the device in with the shared guest account.
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.guest.UserID, h.guest.Password, "The guest account is unavailable. Please contact an administrator.")
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, userID, password, rejected string) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	result, err := h.auth.Login(r.Context(), userID, password)
	if err != nil {
		slog.Error("Login request failed", "device_id", deviceID, "error", err)
		Unreachable(w)
		return
	}
	if result.Outcome != gateway.LoginOK {
		slog.Info("Login rejected", "device_id", deviceID, "user_id", userID)
		Reject(w, http.StatusUnauthorized, "invalid_credentials", rejected)
		return
	}

	if err := h.session(r).RecordLogin(r.Context(), userID, result.Name); err != nil {
		slog.Error("Failed to record login", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to record session")
		return
	}
	if h.onSignOut != nil {
		h.onSignOut(deviceID)
	}

	slog.Info("User signed in", "device_id", deviceID, "user_id", userID)
	JSON(w, http.StatusOK, sessionResponse{Authenticated: true, Name: result.Name, UserID: userID})
}

// Logout erases the durable state of the device and drops its conversation.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if err := h.session(r).Clear(r.Context()); err != nil {
		slog.Error("Failed to clear session", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	if h.onSignOut != nil {
		h.onSignOut(deviceID)
	}

	slog.Info("User signed out", "device_id", deviceID)
	JSON(w, http.StatusOK, sessionResponse{})
}

// Signup registers a new account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	outcome, err := h.auth.Signup(r.Context(), gateway.SignupRequest{
		UserID:   strings.TrimSpace(req.UserID),
		Password: req.Password,
		Email:    strings.TrimSpace(req.Email),
		UserName: strings.TrimSpace(req.UserName),
	})
	if err != nil {
		slog.Error("Signup request failed", "error", err)
		Unreachable(w)
		return
	}

	switch outcome {
	case gateway.SignupOK:
		slog.Info("Account registered", "user_id", req.UserID)
		JSON(w, http.StatusCreated, map[string]string{
			"status":  outcome.String(),
			"message": "Sign-up complete. Please sign in.",
		})
	case gateway.SignupDuplicate:
		Reject(w, http.StatusConflict, "duplicate_id", "This ID is already in use.")
	default:
		Reject(w, http.StatusUnprocessableEntity, "signup_failed", "Sign-up failed. Please try again.")
	}
}

// FindID looks up the identifier registered for a name and email.
func (h *AuthHandler) FindID(w http.ResponseWriter, r *http.Request) {
	var req findIDRequest
	if err := decode(r, &req); err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.auth.FindID(r.Context(), strings.TrimSpace(req.UserName), strings.TrimSpace(req.Email))
	if err != nil {
		slog.Error("Find-id request failed", "error", err)
		Unreachable(w)
		return
	}
	if result.Outcome != gateway.FindIDFound {
		Reject(w, http.StatusNotFound, "not_found", "No account matches that name and email.")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"userId": result.UserID})
}
