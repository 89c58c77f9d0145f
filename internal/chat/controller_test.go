package chat

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/smartstar/internal/completion"
	"github.com/ashureev/smartstar/internal/domain"
)

type savedMessage struct {
	sessionID string
	role      domain.Role
	content   string
}

type fakeGateway struct {
	mu           sync.Mutex
	nextID       string
	history      []domain.ChatHistory
	messages     map[string][]domain.Message
	createErr    error
	saveErr      error
	deleteErr    error
	loadErr      error
	listErr      error
	creates      []string // titles
	lastMessages []string
	saves        []savedMessage
	deletes      []string
	listCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextID: "s-1", messages: make(map[string][]domain.Message)}
}

func (f *fakeGateway) ListHistory(_ context.Context, _ string) ([]domain.ChatHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ChatHistory, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakeGateway) LoadMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.messages[sessionID], nil
}

func (f *fakeGateway) CreateSession(_ context.Context, _ string, title, lastMessage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, title)
	f.lastMessages = append(f.lastMessages, lastMessage)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.history = append(f.history, domain.ChatHistory{ID: f.nextID, Title: title, LastMessage: lastMessage})
	return f.nextID, nil
}

func (f *fakeGateway) SaveMessage(_ context.Context, sessionID string, role domain.Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, savedMessage{sessionID: sessionID, role: role, content: content})
	return nil
}

func (f *fakeGateway) DeleteHistory(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, sessionID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.history[:0]
	for _, h := range f.history {
		if h.ID != sessionID {
			kept = append(kept, h)
		}
	}
	f.history = kept
	return nil
}

func (f *fakeGateway) saved() []savedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]savedMessage, len(f.saves))
	copy(out, f.saves)
	return out
}

func (f *fakeGateway) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	calls   int
	history [][]completion.Turn
	block   chan struct{} // when set, Reply waits for it to close
	started chan struct{} // when set, receives once per call
}

func (f *fakeCompleter) Reply(_ context.Context, _ string, history []completion.Turn) string {
	f.mu.Lock()
	f.calls++
	f.history = append(f.history, history)
	block, started, reply := f.block, f.started, f.reply
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return reply
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestController(gw *fakeGateway, ai *fakeCompleter) *Controller {
	return NewController("serkee", gw, ai, nil, nil)
}

func TestSendFirstExchangeCreatesSession(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Sure!\n1. Check rates\n2. View balance"}
	c := newTestController(gw, ai)

	if err := c.Send(context.Background(), "What can you do for me today?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	snap := c.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[0].Role != domain.RoleUser || snap.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user then assistant, got %q then %q", snap.Messages[0].Role, snap.Messages[1].Role)
	}
	if !reflect.DeepEqual(snap.Messages[1].Suggestions, []string{"Check rates", "View balance"}) {
		t.Fatalf("unexpected suggestions %v", snap.Messages[1].Suggestions)
	}
	if snap.ActiveSessionID != "s-1" || snap.State != StateLiveSaved {
		t.Fatalf("expected live saved session s-1, got %q/%s", snap.ActiveSessionID, snap.State)
	}
	if len(snap.History) != 1 {
		t.Fatalf("expected refreshed history with 1 entry, got %d", len(snap.History))
	}

	if gw.createCount() != 1 || gw.creates[0] != "What can you do..." {
		t.Fatalf("expected one create with derived title, got %v", gw.creates)
	}
	if gw.lastMessages[0] != ai.reply {
		t.Fatalf("expected raw reply as last message, got %q", gw.lastMessages[0])
	}

	want := []savedMessage{
		{"s-1", domain.RoleUser, "What can you do for me today?"},
		{"s-1", domain.RoleAssistant, ai.reply},
	}
	if got := gw.saved(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected saves %+v, got %+v", want, got)
	}
}

func TestSendSecondExchangeReusesSession(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Hello!"}
	c := newTestController(gw, ai)

	if err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := c.Send(context.Background(), "rates?"); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}

	if gw.createCount() != 1 {
		t.Fatalf("expected a single create, got %d", gw.createCount())
	}
	saves := gw.saved()
	if len(saves) != 4 {
		t.Fatalf("expected 4 saves, got %d", len(saves))
	}
	for _, s := range saves {
		if s.sessionID != "s-1" {
			t.Fatalf("expected every save against s-1, got %q", s.sessionID)
		}
	}
	if saves[2].role != domain.RoleUser || saves[3].role != domain.RoleAssistant {
		t.Fatalf("expected user then assistant on second exchange, got %+v", saves[2:])
	}
	if n := len(c.Snapshot().Messages); n != 4 {
		t.Fatalf("expected 4 messages, got %d", n)
	}
}

func TestSendMapsPriorTurnsToModelRole(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Hello!"}
	c := newTestController(gw, ai)

	_ = c.Send(context.Background(), "hi")
	_ = c.Send(context.Background(), "again")

	if len(ai.history[0]) != 0 {
		t.Fatalf("expected no prior turns on first send, got %v", ai.history[0])
	}
	want := []completion.Turn{
		{Role: completion.RoleUser, Content: "hi"},
		{Role: completion.RoleModel, Content: "Hello!"},
	}
	if !reflect.DeepEqual(ai.history[1], want) {
		t.Fatalf("expected %v, got %v", want, ai.history[1])
	}
}

func TestSendPassesRawReplyAsPriorTurn(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Hello!\n[[SUGGESTIONS]] Rates, Balance"}
	c := newTestController(gw, ai)

	_ = c.Send(context.Background(), "hi")
	_ = c.Send(context.Background(), "again")

	if got := c.Snapshot().Messages[1]; got.Content != ai.reply || got.Suggestions != nil {
		t.Fatalf("expected raw content without suggestions, got %q %v", got.Content, got.Suggestions)
	}
	if got := ai.history[1][1].Content; got != ai.reply {
		t.Fatalf("expected raw reply in prior turns, got %q", got)
	}
}

func TestSendBlankIsNoop(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Hello!"}
	notified := 0
	c := NewController("serkee", gw, ai, func(Snapshot) { notified++ }, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := c.Send(context.Background(), text); err != nil {
			t.Fatalf("Send(%q) failed: %v", text, err)
		}
	}

	if ai.callCount() != 0 || gw.createCount() != 0 || len(gw.saved()) != 0 {
		t.Fatal("expected no downstream calls for blank text")
	}
	if notified != 0 {
		t.Fatalf("expected no state change notifications, got %d", notified)
	}
	if snap := c.Snapshot(); snap.State != StateEmpty || len(snap.Messages) != 0 {
		t.Fatalf("expected empty state, got %+v", snap)
	}
}

func TestSendKeepsTranscriptWhenPersistenceFails(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = errors.New("backend down")
	ai := &fakeCompleter{reply: "Hello!"}
	c := newTestController(gw, ai)

	if err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	snap := c.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("expected transcript kept, got %d messages", len(snap.Messages))
	}
	if snap.ActiveSessionID != "" || snap.State != StateLiveUnsaved {
		t.Fatalf("expected live unsaved state, got %q/%s", snap.ActiveSessionID, snap.State)
	}
	if len(gw.saved()) != 0 {
		t.Fatal("expected no message saves without a session")
	}

	gw.mu.Lock()
	gw.createErr = nil
	gw.mu.Unlock()

	if err := c.Send(context.Background(), "retry"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gw.createCount() != 2 {
		t.Fatalf("expected the next send to create the session, got %d creates", gw.createCount())
	}
	if n := len(c.Snapshot().Messages); n != 4 {
		t.Fatalf("expected 4 messages, got %d", n)
	}
}

func TestSendSaveFailureIsSwallowed(t *testing.T) {
	gw := newFakeGateway()
	gw.saveErr = errors.New("save failed")
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})

	if err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("expected persistence error to be swallowed, got %v", err)
	}
	if snap := c.Snapshot(); len(snap.Messages) != 2 || snap.ActiveSessionID != "s-1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSendRejectsConcurrentSend(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Hello!", block: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newTestController(gw, ai)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first") }()
	<-ai.started

	if !c.Snapshot().Sending {
		t.Fatal("expected sending flag while a send is outstanding")
	}
	if err := c.Send(context.Background(), "second"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}

	close(ai.block)
	if err := <-done; err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	snap := c.Snapshot()
	if snap.Sending {
		t.Fatal("expected sending flag cleared")
	}
	if len(snap.Messages) != 2 || snap.Messages[0].Content != "first" {
		t.Fatalf("expected only the first exchange, got %+v", snap.Messages)
	}
}

func TestNewChatDuringSendKeepsNewConversationClean(t *testing.T) {
	gw := newFakeGateway()
	ai := &fakeCompleter{reply: "Hello!", block: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newTestController(gw, ai)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first") }()
	<-ai.started

	c.NewChat()
	close(ai.block)
	if err := <-done; err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateEmpty || len(snap.Messages) != 0 || snap.ActiveSessionID != "" {
		t.Fatalf("expected the new chat to stay empty, got %+v", snap)
	}
	// The abandoned exchange is still persisted under its own session.
	if gw.createCount() != 1 || len(gw.saved()) != 2 {
		t.Fatalf("expected the exchange to be persisted, got %d creates %d saves", gw.createCount(), len(gw.saved()))
	}
}

func TestNewChatClearsState(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	_ = c.Send(context.Background(), "hi")

	c.NewChat()

	snap := c.Snapshot()
	if len(snap.Messages) != 0 || snap.ActiveSessionID != "" || snap.State != StateEmpty {
		t.Fatalf("expected empty state, got %+v", snap)
	}

	_ = c.Send(context.Background(), "fresh start")
	if gw.createCount() != 2 {
		t.Fatalf("expected a new session after new chat, got %d creates", gw.createCount())
	}
}

func TestSelectHistoryReplacesTranscript(t *testing.T) {
	gw := newFakeGateway()
	loaded := []domain.Message{
		{ID: "1", Role: domain.RoleUser, Content: "old question", Timestamp: time.Unix(10, 0)},
		{ID: "2", Role: domain.RoleAssistant, Content: "old answer", Timestamp: time.Unix(11, 0)},
	}
	gw.messages["s-9"] = loaded
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	_ = c.Send(context.Background(), "hi")

	if err := c.SelectHistory(context.Background(), domain.ChatHistory{ID: "s-9"}); err != nil {
		t.Fatalf("SelectHistory failed: %v", err)
	}

	snap := c.Snapshot()
	if !reflect.DeepEqual(snap.Messages, loaded) {
		t.Fatalf("expected loaded messages, got %+v", snap.Messages)
	}
	if snap.ActiveSessionID != "s-9" || snap.State != StateLoaded {
		t.Fatalf("expected loaded session s-9, got %q/%s", snap.ActiveSessionID, snap.State)
	}

	_ = c.Send(context.Background(), "follow up")
	saves := gw.saved()
	last := saves[len(saves)-1]
	if last.sessionID != "s-9" {
		t.Fatalf("expected follow-up persisted to s-9, got %q", last.sessionID)
	}
	if gw.createCount() != 1 {
		t.Fatalf("expected no session creation for a loaded session, got %d", gw.createCount())
	}
}

func TestSelectHistoryFailureLeavesState(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	_ = c.Send(context.Background(), "hi")
	before := c.Snapshot()

	gw.mu.Lock()
	gw.loadErr = errors.New("unreachable")
	gw.mu.Unlock()

	if err := c.SelectHistory(context.Background(), domain.ChatHistory{ID: "s-9"}); err == nil {
		t.Fatal("expected load error")
	}
	if after := c.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("expected unchanged state, got %+v", after)
	}
}

func TestDeleteActiveHistoryResets(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	_ = c.Send(context.Background(), "hi")

	if err := c.DeleteHistory(context.Background(), "s-1"); err != nil {
		t.Fatalf("DeleteHistory failed: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateEmpty || len(snap.Messages) != 0 || snap.ActiveSessionID != "" {
		t.Fatalf("expected empty state, got %+v", snap)
	}
	if len(snap.History) != 0 {
		t.Fatalf("expected refreshed empty history, got %+v", snap.History)
	}
}

func TestDeleteOtherHistoryKeepsConversation(t *testing.T) {
	gw := newFakeGateway()
	gw.history = []domain.ChatHistory{{ID: "s-0", Title: "older"}}
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	_ = c.Send(context.Background(), "hi")
	listCalls := gw.listCalls

	if err := c.DeleteHistory(context.Background(), "s-0"); err != nil {
		t.Fatalf("DeleteHistory failed: %v", err)
	}

	snap := c.Snapshot()
	if snap.ActiveSessionID != "s-1" || len(snap.Messages) != 2 {
		t.Fatalf("expected conversation untouched, got %+v", snap)
	}
	if gw.listCalls != listCalls+1 {
		t.Fatal("expected history refresh after delete")
	}
	if len(snap.History) != 1 || snap.History[0].ID != "s-1" {
		t.Fatalf("unexpected history %+v", snap.History)
	}
}

func TestDeleteHistoryFailureChangesNothing(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	_ = c.Send(context.Background(), "hi")
	gw.deleteErr = errors.New("forbidden")
	before := c.Snapshot()
	listCalls := gw.listCalls

	if err := c.DeleteHistory(context.Background(), "s-1"); err == nil {
		t.Fatal("expected delete error")
	}
	if after := c.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("expected unchanged state, got %+v", after)
	}
	if gw.listCalls != listCalls {
		t.Fatal("expected no history refresh after failed delete")
	}
}

func TestRefreshHistoryFailureKeepsList(t *testing.T) {
	gw := newFakeGateway()
	gw.history = []domain.ChatHistory{{ID: "s-0"}}
	c := newTestController(gw, &fakeCompleter{reply: "Hello!"})
	c.RefreshHistory(context.Background())

	gw.listErr = errors.New("down")
	c.RefreshHistory(context.Background())
	if gw.listCalls != 2 {
		t.Fatalf("expected 2 list calls, got %d", gw.listCalls)
	}
	if h, ok := c.FindHistory("s-0"); !ok || h.ID != "s-0" {
		t.Fatal("expected cached history kept")
	}
}

func TestNotifierReceivesSnapshots(t *testing.T) {
	gw := newFakeGateway()
	var mu sync.Mutex
	var states []int
	c := NewController("serkee", gw, &fakeCompleter{reply: "Hello!"}, func(s Snapshot) {
		mu.Lock()
		states = append(states, len(s.Messages))
		mu.Unlock()
	}, nil)

	_ = c.Send(context.Background(), "hi")

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[0] != 1 {
		t.Fatalf("expected the optimistic user message to be published first, got %v", states)
	}
	if states[len(states)-1] != 2 {
		t.Fatalf("expected the final snapshot to hold both messages, got %v", states)
	}
}
