package gateway

import (
	"context"
	"net/http"
	"strings"
)

// LoginOutcome enumerates the business results of a login attempt.
type LoginOutcome int

const (
	// LoginOK means the credentials were accepted.
	LoginOK LoginOutcome = iota
	// LoginRejected means the backend refused the credentials.
	LoginRejected
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginOK:
		return "ok"
	case LoginRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// LoginResult carries the display name of an accepted login.
type LoginResult struct {
	Outcome LoginOutcome
	Name    string
}

// FindIDOutcome enumerates the results of an identifier lookup.
type FindIDOutcome int

const (
	// FindIDFound means an identifier matched the name and email.
	FindIDFound FindIDOutcome = iota
	// FindIDNotFound means no account matched.
	FindIDNotFound
)

func (o FindIDOutcome) String() string {
	switch o {
	case FindIDFound:
		return "found"
	case FindIDNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// FindIDResult carries the identifier of a matched account.
type FindIDResult struct {
	Outcome FindIDOutcome
	UserID  string
}

// SignupOutcome enumerates the results of an account registration.
type SignupOutcome int

const (
	// SignupOK means the account was created.
	SignupOK SignupOutcome = iota
	// SignupDuplicate means the identifier is already taken.
	SignupDuplicate
	// SignupFailed covers every other backend answer.
	SignupFailed
)

func (o SignupOutcome) String() string {
	switch o {
	case SignupOK:
		return "success"
	case SignupDuplicate:
		return "duplicate"
	case SignupFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignupRequest is the account registration payload.
type SignupRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
}

// Backend sentinel bodies.
const (
	bodyFail      = "fail"
	bodyError     = "error"
	bodyNotFound  = "not_found"
	bodySuccess   = "success"
	bodyDuplicate = "duplicate"
)

// Login checks credentials. The backend answers with the display name or a
// failure marker in a text body.
func (c *Client) Login(ctx context.Context, userID, password string) (LoginResult, error) {
	data, err := c.sendOK(ctx, "login", http.MethodPost, "/api/login", map[string]string{
		"userId":   userID,
		"password": password,
	})
	if err != nil {
		return LoginResult{}, err
	}

	name := strings.TrimSpace(string(data))
	if name == "" || name == bodyFail || name == bodyError {
		return LoginResult{Outcome: LoginRejected}, nil
	}
	return LoginResult{Outcome: LoginOK, Name: name}, nil
}

// FindID looks up the identifier registered for a name and email.
// A 404 status is a not-found answer rather than a transport fault.
func (c *Client) FindID(ctx context.Context, userName, email string) (FindIDResult, error) {
	status, data, err := c.send(ctx, "find_id", http.MethodPost, "/api/find-id", map[string]string{
		"userName": userName,
		"email":    email,
	})
	if err != nil {
		return FindIDResult{}, err
	}
	if status == http.StatusNotFound {
		return FindIDResult{Outcome: FindIDNotFound}, nil
	}
	if !isSuccess(status) {
		return FindIDResult{}, &TransportError{Op: "find_id", StatusCode: status}
	}

	id := strings.TrimSpace(string(data))
	if id == "" || id == bodyNotFound {
		return FindIDResult{Outcome: FindIDNotFound}, nil
	}
	return FindIDResult{Outcome: FindIDFound, UserID: id}, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (SignupOutcome, error) {
	data, err := c.sendOK(ctx, "signup", http.MethodPost, "/api/signup", req)
	if err != nil {
		return SignupFailed, err
	}

	switch strings.TrimSpace(string(data)) {
	case bodySuccess:
		return SignupOK, nil
	case bodyDuplicate:
		return SignupDuplicate, nil
	default:
		return SignupFailed, nil
	}
}
