// Package chat drives chat exchanges and keeps the local transcript
// consistent with the sessions persisted by the backend.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/smartstar/internal/completion"
	"github.com/ashureev/smartstar/internal/domain"
	"golang.org/x/sync/semaphore"
)

// ErrSendInFlight is returned when a send is attempted while another is outstanding.
var ErrSendInFlight = errors.New("a message is already being sent")

// Gateway is the slice of the backend API the controller depends on.
type Gateway interface {
	ListHistory(ctx context.Context, userID string) ([]domain.ChatHistory, error)
	LoadMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	CreateSession(ctx context.Context, userID, title, lastMessage string) (string, error)
	SaveMessage(ctx context.Context, sessionID string, role domain.Role, content string) error
	DeleteHistory(ctx context.Context, sessionID string) error
}

// Completer produces displayable assistant text. It never fails.
type Completer interface {
	Reply(ctx context.Context, text string, history []completion.Turn) string
}

// Notifier receives a snapshot after every state change.
type Notifier func(Snapshot)

// State names the lifecycle position of the open conversation.
type State string

const (
	StateEmpty       State = "empty"
	StateLiveUnsaved State = "live_unsaved"
	StateLiveSaved   State = "live_saved"
	StateLoaded      State = "loaded"
)

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	State           State                `json:"state"`
	Messages        []domain.Message     `json:"messages"`
	ActiveSessionID string               `json:"activeSessionId,omitempty"`
	History         []domain.ChatHistory `json:"history"`
	Sending         bool                 `json:"sending"`
}

// Controller owns the in-memory conversation of one signed-in device.
type Controller struct {
	userID string
	gw     Gateway
	ai     Completer
	notify Notifier
	logger *slog.Logger
	sendMu *semaphore.Weighted
	now    func() time.Time

	mu              sync.Mutex
	messages        []domain.Message
	activeSessionID string
	loaded          bool
	history         []domain.ChatHistory
	sending         bool
	// epoch changes whenever the open conversation is replaced, so an
	// in-flight send can tell that its transcript is no longer on screen.
	epoch uint64
}

// NewController creates a controller in the Empty state for userID.
func NewController(userID string, gw Gateway, ai Completer, notify Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		userID: userID,
		gw:     gw,
		ai:     ai,
		notify: notify,
		logger: logger.With("user_id", userID),
		sendMu: semaphore.NewWeighted(1),
		now:    time.Now,
	}
}

// UserID returns the backend identifier the controller persists sessions for.
func (c *Controller) UserID() string {
	return c.userID
}

// Send runs one exchange: the user message is appended immediately, the
// assistant reply follows, then the exchange is persisted. Persistence
// failures are logged and never roll back the transcript.
//
// Blank text is a no-op. A send while another is outstanding returns
// ErrSendInFlight. The exchange runs to completion even if ctx is canceled.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !c.sendMu.TryAcquire(1) {
		return ErrSendInFlight
	}
	defer c.sendMu.Release(1)

	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	prior := toTurns(c.messages)
	epoch := c.epoch
	sessionID := c.activeSessionID
	c.messages = append(c.messages, domain.NewUserMessage(text, c.now()))
	c.sending = true
	c.mu.Unlock()
	c.publish()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		c.publish()
	}()

	raw := c.ai.Reply(ctx, text, prior)
	reply := domain.NewAssistantMessage(raw, c.now())

	c.mu.Lock()
	current := c.epoch == epoch
	if current {
		c.messages = append(c.messages, reply)
	}
	c.mu.Unlock()
	c.publish()

	if !current {
		c.logger.Warn("conversation switched during send, reply kept out of the open transcript",
			"session_id", sessionID)
	}

	if err := c.persist(ctx, epoch, sessionID, text, raw); err != nil {
		c.logger.Error("failed to persist chat exchange", "session_id", sessionID, "error", err)
	}
	return nil
}

// persist saves one exchange against sessionID, creating the session first
// when the conversation has none yet.
func (c *Controller) persist(ctx context.Context, epoch uint64, sessionID, text, raw string) error {
	if sessionID == "" {
		id, err := c.gw.CreateSession(ctx, c.userID, domain.SessionTitle(text), raw)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = id

		c.mu.Lock()
		if c.epoch == epoch {
			c.activeSessionID = id
		}
		c.mu.Unlock()
		c.logger.Info("chat session created", "session_id", id)

		c.RefreshHistory(ctx)
	}

	if err := c.gw.SaveMessage(ctx, sessionID, domain.RoleUser, text); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	if err := c.gw.SaveMessage(ctx, sessionID, domain.RoleAssistant, raw); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	return nil
}

// SelectHistory opens a persisted session, replacing the transcript with its
// messages. On failure the state is left unchanged.
func (c *Controller) SelectHistory(ctx context.Context, entry domain.ChatHistory) error {
	messages, err := c.gw.LoadMessages(ctx, entry.ID)
	if err != nil {
		c.logger.Error("failed to load chat session", "session_id", entry.ID, "error", err)
		return fmt.Errorf("load session %s: %w", entry.ID, err)
	}

	c.mu.Lock()
	c.messages = messages
	c.activeSessionID = entry.ID
	c.loaded = true
	c.epoch++
	c.mu.Unlock()

	c.logger.Info("chat session opened", "session_id", entry.ID, "messages", len(messages))
	c.publish()
	return nil
}

// NewChat returns to the Empty state.
func (c *Controller) NewChat() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.publish()
}

// DeleteHistory deletes a persisted session. Deleting the open session
// returns to the Empty state. A failed deletion changes nothing.
func (c *Controller) DeleteHistory(ctx context.Context, sessionID string) error {
	if err := c.gw.DeleteHistory(ctx, sessionID); err != nil {
		c.logger.Error("failed to delete chat session", "session_id", sessionID, "error", err)
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	if c.activeSessionID == sessionID {
		c.resetLocked()
	}
	c.mu.Unlock()

	c.logger.Info("chat session deleted", "session_id", sessionID)
	c.RefreshHistory(ctx)
	return nil
}

// RefreshHistory reloads the session summaries and publishes a snapshot.
// On failure the cached list is kept and the error is only logged.
func (c *Controller) RefreshHistory(ctx context.Context) {
	history, err := c.gw.ListHistory(ctx, c.userID)
	if err != nil {
		c.logger.Error("failed to load chat history", "error", err)
	} else {
		c.mu.Lock()
		c.history = history
		c.mu.Unlock()
	}
	c.publish()
}

// FindHistory returns the cached summary with the given id.
func (c *Controller) FindHistory(sessionID string) (domain.ChatHistory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.history {
		if h.ID == sessionID {
			return h, true
		}
	}
	return domain.ChatHistory{}, false
}

// Sending reports whether a send is outstanding.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]domain.Message, len(c.messages))
	copy(messages, c.messages)
	history := make([]domain.ChatHistory, len(c.history))
	copy(history, c.history)

	return Snapshot{
		State:           c.stateLocked(),
		Messages:        messages,
		ActiveSessionID: c.activeSessionID,
		History:         history,
		Sending:         c.sending,
	}
}

func (c *Controller) stateLocked() State {
	switch {
	case c.activeSessionID == "" && len(c.messages) == 0:
		return StateEmpty
	case c.activeSessionID == "":
		return StateLiveUnsaved
	case c.loaded:
		return StateLoaded
	default:
		return StateLiveSaved
	}
}

func (c *Controller) resetLocked() {
	c.messages = nil
	c.activeSessionID = ""
	c.loaded = false
	c.epoch++
}

func (c *Controller) publish() {
	if c.notify == nil {
		return
	}
	c.notify(c.Snapshot())
}

// toTurns maps the transcript to the provider's role vocabulary.
func toTurns(messages []domain.Message) []completion.Turn {
	turns := make([]completion.Turn, 0, len(messages))
	for _, m := range messages {
		role := completion.RoleUser
		if m.Role == domain.RoleAssistant {
			role = completion.RoleModel
		}
		turns = append(turns, completion.Turn{Role: role, Content: m.Content})
	}
	return turns
}
