package session

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/beyondchats/studydesk/internal/i18n"
	"github.com/beyondchats/studydesk/internal/llm/prompts"
	"github.com/beyondchats/studydesk/internal/model"
)

const (
	maxTitleRunes      = 28
	maxSummaryMessages = 12
	maxSummaryChars    = 2000
)

// ErrNoThread is returned when a thread ID is unknown to the manager.
var ErrNoThread = errors.New("no such thread")

// ThreadStore persists conversation threads and their rolling summaries.
// *store.Store satisfies it.
type ThreadStore interface {
	Threads(userID int64) ([]model.ConversationThread, error)
	SaveThread(userID int64, t model.ConversationThread) error
	DeleteThread(userID int64, threadID string) error
	Summaries(userID int64) (map[string]string, error)
	SaveSummary(userID int64, threadID, summary string) error
}

// DocumentSource resolves document IDs to their stored files.
type DocumentSource interface {
	GetDocument(id int64) (*model.Document, error)
}

var greetingRe = regexp.MustCompile(`(?i)^(hi|hii|hiya|hello|helo|hey|yo|sup)[!.\s]*$`)

// IsGreeting reports whether a trimmed message is a bare greeting that can
// be answered without consulting the document.
func IsGreeting(text string) bool {
	return greetingRe.MatchString(strings.TrimSpace(text))
}

// Chat manages one user's conversation threads. Threads and summaries are
// loaded from the store once and written back after every change.
type Chat struct {
	userID  int64
	gw      Gateway
	extract Extractor
	store   ThreadStore
	docs    DocumentSource
	modelID string

	mu        sync.Mutex
	threads   []model.ConversationThread
	summaries map[string]string
	activeID  string
	busy      map[string]bool
}

// NewChat loads a user's threads and summaries from the store. The most
// recently updated thread, if any, becomes active.
func NewChat(gw Gateway, extract Extractor, ts ThreadStore, docs DocumentSource, modelID string, userID int64) (*Chat, error) {
	threads, err := ts.Threads(userID)
	if err != nil {
		return nil, err
	}
	summaries, err := ts.Summaries(userID)
	if err != nil {
		return nil, err
	}
	c := &Chat{
		userID:    userID,
		gw:        gw,
		extract:   extract,
		store:     ts,
		docs:      docs,
		modelID:   modelID,
		threads:   threads,
		summaries: summaries,
		busy:      make(map[string]bool),
	}
	if len(threads) > 0 {
		c.activeID = threads[0].ID
	}
	return c, nil
}

// Threads returns the user's threads, active first.
func (c *Chat) Threads() []model.ConversationThread {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ConversationThread, len(c.threads))
	copy(out, c.threads)
	return out
}

// ActiveID returns the active thread's ID, empty when no threads exist.
func (c *Chat) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// SetActive switches the active thread.
func (c *Chat) SetActive(threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.find(threadID) == nil {
		return ErrNoThread
	}
	c.activeID = threadID
	return nil
}

// Thread returns a thread by ID.
func (c *Chat) Thread(threadID string) (*model.ConversationThread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.find(threadID)
	if t == nil {
		return nil, ErrNoThread
	}
	cp := *t
	cp.Messages = append([]model.ChatMessage(nil), t.Messages...)
	return &cp, nil
}

// CreateThread starts a new conversation about a document, seeded with an
// assistant welcome message, and makes it active.
func (c *Chat) CreateThread(ctx context.Context, documentID int64) (*model.ConversationThread, error) {
	if doc, err := c.docs.GetDocument(documentID); err != nil {
		return nil, err
	} else if doc == nil {
		return nil, errors.New("document not found")
	}
	t := model.ConversationThread{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Title:      i18n.T(ctx, "NewChatTitle"),
		Messages: []model.ChatMessage{
			{ID: uuid.NewString(), Role: model.RoleSystem, Text: i18n.T(ctx, "ChatSeed")},
		},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads = append([]model.ConversationThread{t}, c.threads...)
	c.activeID = t.ID
	if err := c.store.SaveThread(c.userID, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteThread removes a thread. When the active thread is deleted, any
// remaining thread becomes active.
func (c *Chat) DeleteThread(threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := -1
	for i := range c.threads {
		if c.threads[i].ID == threadID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNoThread
	}
	if err := c.store.DeleteThread(c.userID, threadID); err != nil {
		return err
	}
	c.threads = append(c.threads[:idx], c.threads[idx+1:]...)
	delete(c.summaries, threadID)
	delete(c.busy, threadID)
	if c.activeID == threadID {
		c.activeID = ""
		if len(c.threads) > 0 {
			c.activeID = c.threads[0].ID
		}
	}
	return nil
}

// Send appends a user message to a thread and returns the assistant reply.
// Bare greetings are answered directly; everything else goes to the model
// with the document pages, the recent transcript, and the rolling summary.
// One message per thread may be in flight at a time.
func (c *Chat) Send(ctx context.Context, threadID, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty message")
	}

	c.mu.Lock()
	t := c.find(threadID)
	if t == nil {
		c.mu.Unlock()
		return nil, ErrNoThread
	}
	if c.busy[threadID] {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy[threadID] = true
	userMsg := model.ChatMessage{ID: uuid.NewString(), Role: model.RoleUser, Text: text}
	messages := append(append([]model.ChatMessage(nil), t.Messages...), userMsg)
	title := titleFor(t, text)
	summary := c.summaries[threadID]
	docID := t.DocumentID
	c.mu.Unlock()

	greeting := IsGreeting(text)
	reply := c.reply(ctx, docID, messages, summary, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy[threadID] = false
	t = c.find(threadID)
	if t == nil {
		return nil, ErrNoThread
	}
	msg := model.ChatMessage{ID: uuid.NewString(), Role: model.RoleAssistant, Text: reply}

	// Persist first; the in-memory thread only changes once the store has
	// the same messages.
	updated := *t
	updated.Messages = append(messages, msg)
	updated.Title = title
	if err := c.store.SaveThread(c.userID, updated); err != nil {
		return nil, err
	}
	t.Messages = updated.Messages
	t.Title = updated.Title

	// Greetings skip the document pipeline entirely, rolling summary
	// included.
	if !greeting {
		sum := Summarize(updated.Messages)
		if err := c.store.SaveSummary(c.userID, threadID, sum); err != nil {
			return nil, err
		}
		c.summaries[threadID] = sum
	}
	return &msg, nil
}

func (c *Chat) reply(ctx context.Context, docID int64, messages []model.ChatMessage, summary, text string) string {
	if IsGreeting(text) {
		return i18n.T(ctx, "GreetingReply")
	}
	doc, err := c.docs.GetDocument(docID)
	if err != nil || doc == nil {
		slog.Warn("chat document lookup failed", "document", docID, "error", err)
		return i18n.T(ctx, "ChatFailed")
	}
	extracted, err := c.extract(doc.StoredPath)
	if err != nil {
		slog.Warn("chat extraction failed", "document", docID, "error", err)
		return i18n.T(ctx, "ChatFailed")
	}
	prompt, err := prompts.Chat(messages, extracted.Pages, summary)
	if err != nil {
		return i18n.T(ctx, "ChatFailed")
	}
	answer, err := c.gw.Complete(ctx, prompt, c.modelID)
	if err != nil {
		slog.Warn("chat completion failed", "document", docID, "error", err)
		return i18n.T(ctx, "ChatFailed")
	}
	return strings.TrimSpace(answer)
}

// titleFor names a thread after its first user message. Later messages
// never change the title.
func titleFor(t *model.ConversationThread, text string) string {
	for _, m := range t.Messages {
		if m.Role == model.RoleUser {
			return t.Title
		}
	}
	runes := []rune(text)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "\u2026"
	}
	return text
}

func (c *Chat) find(threadID string) *model.ConversationThread {
	for i := range c.threads {
		if c.threads[i].ID == threadID {
			return &c.threads[i]
		}
	}
	return nil
}

// Summarize condenses the tail of a dialogue into a rolling summary: the
// last messages of each side prefixed U:/A:, joined and capped.
func Summarize(messages []model.ChatMessage) string {
	var dialogue []model.ChatMessage
	for _, m := range messages {
		if m.Role == model.RoleUser || m.Role == model.RoleAssistant {
			dialogue = append(dialogue, m)
		}
	}
	if len(dialogue) > maxSummaryMessages {
		dialogue = dialogue[len(dialogue)-maxSummaryMessages:]
	}
	parts := make([]string, 0, len(dialogue))
	for _, m := range dialogue {
		prefix := "U:"
		if m.Role == model.RoleAssistant {
			prefix = "A:"
		}
		parts = append(parts, prefix+m.Text)
	}
	joined := strings.Join(parts, " ")
	if len(joined) > maxSummaryChars {
		joined = joined[:maxSummaryChars]
	}
	return joined
}
