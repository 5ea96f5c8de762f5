package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a regular learner account.
	UserRoleStudent UserRole = "user"
	// UserRoleAdmin can view every user's activity history.
	UserRoleAdmin UserRole = "admin"
)

// User represents a registered account.
type User struct {
	ID           int64     `json:"-"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"-"`
}

// AuthSession is an opaque bearer-token session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores the authenticated user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Document is an uploaded PDF owned by a user.
type Document struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"-"`
	Name       string    `json:"name"`
	StoredPath string    `json:"-"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// PageText is the extracted text of a single page.
type PageText struct {
	PageNumber int    `json:"page"`
	Text       string `json:"text"`
}

// ExtractedDocument is the page-numbered plain text of a PDF, capped by page
// count and character budget. It is recomputed on demand, never cached.
type ExtractedDocument struct {
	Pages    []PageText
	FullText string
}

// MCQuestion is a multiple-choice question with exactly four options.
type MCQuestion struct {
	Prompt             string   `json:"question"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"answerIndex"`
}

// OpenQuestion is a free-text question.
type OpenQuestion struct {
	Prompt string `json:"question"`
}

// QuestionSet is the generated assessment for one document. Exactly one of
// the question fields or Error is populated.
type QuestionSet struct {
	MultipleChoice []MCQuestion   `json:"mcqs,omitempty"`
	ShortAnswer    []OpenQuestion `json:"short,omitempty"`
	LongAnswer     []OpenQuestion `json:"long,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// OK reports whether the set holds questions rather than an error.
func (q *QuestionSet) OK() bool {
	return q != nil && q.Error == "" && len(q.MultipleChoice) > 0
}

// AnswerSet holds the user's answers, keyed by question index. Keys may be
// sparse.
type AnswerSet struct {
	MultipleChoice map[int]int    `json:"mcq"`
	ShortAnswer    map[int]string `json:"short"`
	LongAnswer     map[int]string `json:"long"`
}

// NewAnswerSet returns an empty answer set with initialized maps.
func NewAnswerSet() AnswerSet {
	return AnswerSet{
		MultipleChoice: make(map[int]int),
		ShortAnswer:    make(map[int]string),
		LongAnswer:     make(map[int]string),
	}
}

// SectionScore is the per-question scoring for one section.
type SectionScore struct {
	Scores []int   `json:"scores"`
	Total  float64 `json:"total"`
}

// FeedbackScore is a section score with per-question feedback.
type FeedbackScore struct {
	Scores   []int    `json:"scores"`
	Total    float64  `json:"total"`
	Feedback []string `json:"feedback"`
}

// Recommendation is a study-material link suggested by the grader.
type Recommendation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// OverallScore aggregates the attempt with qualitative feedback.
type OverallScore struct {
	Total           float64          `json:"total"`
	Max             float64          `json:"max"`
	Improvements    []string         `json:"improvements"`
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	Recommendations []Recommendation `json:"recommendations"`
}

// GradeReport is the structured scoring result for one submitted AnswerSet.
// Immutable once created for an attempt.
type GradeReport struct {
	MultipleChoice SectionScore  `json:"mcq"`
	ShortAnswer    FeedbackScore `json:"short"`
	LongAnswer     FeedbackScore `json:"long"`
	Overall        OverallScore  `json:"overall"`
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is a single message in a conversation thread.
type ChatMessage struct {
	ID   string   `json:"id"`
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// ConversationThread is one named chat about a document. Message order is
// append-only chronological.
type ConversationThread struct {
	ID         string        `json:"id"`
	DocumentID int64         `json:"documentId"`
	Title      string        `json:"title"`
	Messages   []ChatMessage `json:"messages"`
}

// ActivityRecord is one graded attempt, written after grading and read back
// for the performance history.
type ActivityRecord struct {
	ID        int64     `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Result    string    `json:"result"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	UploadDir      string // directory for uploaded PDFs
	Model          string // default completion model identifier
	MaxUploadBytes int64
}
