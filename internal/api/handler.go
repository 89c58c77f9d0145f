// Package api provides HTTP handlers for the Smart Star API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/ashureev/smartstar/internal/identity"
	"github.com/ashureev/smartstar/internal/store"
	"github.com/go-playground/validator/v10"
)

const transportNotice = "Could not reach the server. Please try again."

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// session binds the session store to the requesting device.
func (h *Handler) session(r *http.Request) *store.SessionStore {
	return store.NewSessionStore(h.repo, identity.DeviceIDFromContext(r.Context()))
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Reject writes a named rejection with a message the page can show as is.
func Reject(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]string{"error": code, "message": message})
}

// Unreachable reports a transport fault as a dismissible notice.
func Unreachable(w http.ResponseWriter) {
	Reject(w, http.StatusBadGateway, "transport", transportNotice)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into v and validates it. The returned error
// message is safe to show to the user.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(v); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "Please fill in every field."
	case "email":
		return "Please enter a valid email address."
	case "eqfield":
		return "Passwords do not match."
	default:
		return fmt.Sprintf("invalid %s", fe.Field())
	}
}
