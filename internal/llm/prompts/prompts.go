// Package prompts composes model-input strings for question generation,
// grading, and document chat. All model steering lives here, prompt-level:
// there is no independent verifier of model output.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/beyondchats/studydesk/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

const (
	// GenerationSnippetMax caps the document text embedded in a
	// question-generation prompt.
	GenerationSnippetMax = 20000
	// GradingTextMax caps the document text embedded in a grading prompt.
	GradingTextMax = 25000

	maxChatTurns     = 10
	maxChatPages     = 30
	maxChatPageChars = 2000
)

// RefusalSentence is the exact reply the chat prompt demands when the PDF
// cannot answer a question.
const RefusalSentence = "I cannot answer from the provided PDF."

// Generation builds the question-generation prompt from document text. The
// text is truncated to GenerationSnippetMax runes.
func Generation(text string) (string, error) {
	data := struct{ Snippet string }{Snippet: truncate(text, GenerationSnippetMax)}
	return execute("generate.txt", data)
}

// Rubric carries the scoring bounds embedded in a grading prompt.
type Rubric struct {
	MCQ struct {
		Correct int `json:"correct"`
	} `json:"mcq"`
	Short struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"short"`
	Long struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"long"`
}

// DefaultRubric matches the fixed assessment shape: 5 MCQs at one point, two
// short answers at 1-5, one long answer at 5-15, 30 points total.
func DefaultRubric() Rubric {
	var r Rubric
	r.MCQ.Correct = 1
	r.Short.Min, r.Short.Max = 1, 5
	r.Long.Min, r.Long.Max = 5, 15
	return r
}

// Grading builds the grading prompt embedding the truncated document text and
// the serialized question/answer pair with the rubric.
func Grading(pdfText string, questions *model.QuestionSet, answers model.AnswerSet) (string, error) {
	payload, err := json.Marshal(struct {
		Questions *model.QuestionSet `json:"questions"`
		Answers   model.AnswerSet    `json:"answers"`
		Rubric    Rubric             `json:"rubric"`
	}{questions, answers, DefaultRubric()})
	if err != nil {
		return "", fmt.Errorf("marshal grading payload: %w", err)
	}

	data := struct {
		PDFText string
		Payload string
	}{
		PDFText: truncate(pdfText, GradingTextMax),
		Payload: string(payload),
	}
	return execute("grade.txt", data)
}

// Chat builds the conversational prompt: a transcript of the most recent
// dialogue turns, an optional rolling summary, and up to 30 pages of source
// text with each page capped at 2000 runes. The question is the last user
// message in messages.
func Chat(messages []model.ChatMessage, pages []model.PageText, summary string) (string, error) {
	data := struct {
		Summary    string
		Transcript string
		PagesBlock string
		Question   string
	}{
		Summary:    summary,
		Transcript: Transcript(messages, maxChatTurns),
		PagesBlock: pagesBlock(pages),
		Question:   lastUserMessage(messages),
	}
	return execute("chat.txt", data)
}

// Transcript renders the last maxTurns dialogue messages as
// "User:"/"Assistant:" lines. System messages are excluded.
func Transcript(messages []model.ChatMessage, maxTurns int) string {
	var dialog []model.ChatMessage
	for _, m := range messages {
		if m.Role == model.RoleUser || m.Role == model.RoleAssistant {
			dialog = append(dialog, m)
		}
	}
	if len(dialog) > maxTurns {
		dialog = dialog[len(dialog)-maxTurns:]
	}

	lines := make([]string, 0, len(dialog))
	for _, m := range dialog {
		role := "Assistant"
		if m.Role == model.RoleUser {
			role = "User"
		}
		lines = append(lines, role+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

func pagesBlock(pages []model.PageText) string {
	if len(pages) > maxChatPages {
		pages = pages[:maxChatPages]
	}
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		blocks = append(blocks, fmt.Sprintf("Page %d:\n%s", p.PageNumber, truncate(p.Text, maxChatPageChars)))
	}
	return strings.Join(blocks, "\n\n")
}

func lastUserMessage(messages []model.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Text
		}
	}
	return ""
}

func execute(name string, data any) (string, error) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("execute prompt template %s: %w", name, err)
	}
	return sb.String(), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
