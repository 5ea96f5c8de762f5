// Package session holds the per-document assessment state machine and the
// per-user chat manager. Both serialize their LLM calls with a busy flag so
// a client cannot start a second generation or grading while one is running.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/beyondchats/studydesk/internal/i18n"
	"github.com/beyondchats/studydesk/internal/llm"
	"github.com/beyondchats/studydesk/internal/llm/prompts"
	"github.com/beyondchats/studydesk/internal/model"
)

// State is the lifecycle phase of an assessment.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateReady      State = "ready"
	StateAnswering  State = "answering"
	StateGrading    State = "grading"
	StateGraded     State = "graded"
)

var (
	// ErrBusy is returned while a generation or grading call is in flight.
	ErrBusy = errors.New("assessment busy")
	// ErrLocked is returned when answers are changed after submission started.
	ErrLocked = errors.New("answers locked")
	// ErrNoQuestions is returned when grading is requested before generation.
	ErrNoQuestions = errors.New("no questions generated")
	// ErrAlreadyGraded is returned on a second submit for the same attempt.
	ErrAlreadyGraded = errors.New("attempt already graded")
)

// Gateway is the completion surface the session needs from the LLM client.
type Gateway interface {
	Complete(ctx context.Context, prompt, modelID string) (string, error)
}

// Extractor produces the page-numbered text of a stored PDF.
type Extractor func(path string) (*model.ExtractedDocument, error)

// ActivityRecorder receives graded results. Recording is best effort and
// never blocks or fails the grading flow.
type ActivityRecorder interface {
	InsertActivity(email, result string) (*model.ActivityRecord, error)
}

// Assessment drives one document through generation, answering, and grading.
type Assessment struct {
	gw       Gateway
	extract  Extractor
	recorder ActivityRecorder
	modelID  string
	doc      *model.Document
	owner    *model.User

	mu        sync.Mutex
	state     State
	busy      bool
	questions *model.QuestionSet
	answers   model.AnswerSet
	report    *model.GradeReport

	notifyErrs chan error
}

// NewAssessment returns an idle assessment for a stored document.
func NewAssessment(gw Gateway, extract Extractor, recorder ActivityRecorder, modelID string, doc *model.Document, owner *model.User) *Assessment {
	return &Assessment{
		gw:         gw,
		extract:    extract,
		recorder:   recorder,
		modelID:    modelID,
		doc:        doc,
		owner:      owner,
		state:      StateIdle,
		answers:    model.NewAnswerSet(),
		notifyErrs: make(chan error, 8),
	}
}

// State returns the current lifecycle phase.
func (a *Assessment) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Questions returns the current question set, nil before generation.
func (a *Assessment) Questions() *model.QuestionSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.questions
}

// Answers returns a copy of the recorded answers.
func (a *Assessment) Answers() model.AnswerSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyAnswers(a.answers)
}

// Report returns the grade report, nil before grading completes.
func (a *Assessment) Report() *model.GradeReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}

// NotifyErrs exposes failures from best-effort activity recording. The
// channel is buffered; once full, further errors are logged and dropped.
func (a *Assessment) NotifyErrs() <-chan error {
	return a.notifyErrs
}

// Generate extracts the document and asks the model for a fresh question set.
// A new set discards any previous answers and report. On a malformed model
// reply the set carries a localized error message and the previous state is
// restored so the client can retry.
func (a *Assessment) Generate(ctx context.Context) (*model.QuestionSet, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	prev := a.state
	a.busy = true
	a.state = StateGenerating
	a.mu.Unlock()

	qs, err := a.generate(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
	if err != nil {
		a.state = prev
		return nil, err
	}
	if !qs.OK() {
		a.state = prev
		return qs, nil
	}
	a.questions = qs
	a.answers = model.NewAnswerSet()
	a.report = nil
	a.state = StateReady
	return qs, nil
}

func (a *Assessment) generate(ctx context.Context) (*model.QuestionSet, error) {
	extracted, err := a.extract(a.doc.StoredPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", a.doc.Name, err)
	}
	prompt, err := prompts.Generation(extracted.FullText)
	if err != nil {
		return nil, err
	}
	raw, err := a.gw.Complete(ctx, prompt, a.modelID)
	if err != nil {
		return nil, err
	}
	var qs model.QuestionSet
	if err := llm.ParseStructured(raw, &qs); err != nil {
		slog.Warn("question set parse failed", "document", a.doc.ID, "error", err)
		return &model.QuestionSet{Error: i18n.T(ctx, "GenerateFailed")}, nil
	}
	if !qs.OK() {
		slog.Warn("question set incomplete", "document", a.doc.ID)
		return &model.QuestionSet{Error: i18n.T(ctx, "GenerateFailed")}, nil
	}
	return &qs, nil
}

// SetAnswers merges the given answers into the attempt. Keys may be sparse;
// merging never clears answers the request omits.
func (a *Assessment) SetAnswers(in model.AnswerSet) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.questions == nil || !a.questions.OK() {
		return ErrNoQuestions
	}
	if a.state == StateGrading || a.state == StateGraded {
		return ErrLocked
	}
	for k, v := range in.MultipleChoice {
		a.answers.MultipleChoice[k] = v
	}
	for k, v := range in.ShortAnswer {
		a.answers.ShortAnswer[k] = v
	}
	for k, v := range in.LongAnswer {
		a.answers.LongAnswer[k] = v
	}
	a.state = StateAnswering
	return nil
}

// Submit grades the current answers exactly once. Answers lock when a report
// is produced; a failed grading call leaves them editable for a retry.
func (a *Assessment) Submit(ctx context.Context) (*model.GradeReport, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	if a.questions == nil || !a.questions.OK() {
		a.mu.Unlock()
		return nil, ErrNoQuestions
	}
	if a.state == StateGraded {
		a.mu.Unlock()
		return nil, ErrAlreadyGraded
	}
	a.busy = true
	prev := a.state
	a.state = StateGrading
	questions := a.questions
	answers := copyAnswers(a.answers)
	a.mu.Unlock()

	report, err := a.grade(ctx, questions, answers)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
	if err != nil {
		// Answers lock only once a report exists. A failed grading call
		// returns to the previous state so the user can edit and resubmit.
		a.state = prev
		return nil, err
	}
	a.report = report
	a.state = StateGraded
	a.notifyActivity(report)
	return report, nil
}

func (a *Assessment) grade(ctx context.Context, questions *model.QuestionSet, answers model.AnswerSet) (*model.GradeReport, error) {
	extracted, err := a.extract(a.doc.StoredPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", a.doc.Name, err)
	}
	prompt, err := prompts.Grading(extracted.FullText, questions, answers)
	if err != nil {
		return nil, err
	}
	raw, err := a.gw.Complete(ctx, prompt, a.modelID)
	if err != nil {
		return nil, err
	}
	var report model.GradeReport
	if err := llm.ParseStructured(raw, &report); err != nil {
		slog.Warn("grade report parse failed", "document", a.doc.ID, "error", err)
		return nil, fmt.Errorf("%s: %w", i18n.T(ctx, "GradeFailed"), err)
	}
	return &report, nil
}

// notifyActivity records the result without blocking grading. Called with
// a.mu held; the insert itself runs in its own goroutine.
func (a *Assessment) notifyActivity(report *model.GradeReport) {
	if a.recorder == nil || a.owner == nil {
		return
	}
	email := a.owner.Email
	result := FormatResult(report)
	go func() {
		if _, err := a.recorder.InsertActivity(email, result); err != nil {
			slog.Error("activity record failed", "email", email, "error", err)
			select {
			case a.notifyErrs <- err:
			default:
			}
		}
	}()
}

// FormatResult renders a report as a percentage string, e.g. "50%". The
// history dashboard parses the leading number back out.
func FormatResult(report *model.GradeReport) string {
	return strconv.Itoa(Percentage(report)) + "%"
}

// Percentage converts a report to a whole-number percentage. Zero when the
// maximum is zero.
func Percentage(report *model.GradeReport) int {
	if report == nil || report.Overall.Max == 0 {
		return 0
	}
	return int(math.Round(report.Overall.Total / report.Overall.Max * 100))
}

func copyAnswers(in model.AnswerSet) model.AnswerSet {
	out := model.NewAnswerSet()
	for k, v := range in.MultipleChoice {
		out.MultipleChoice[k] = v
	}
	for k, v := range in.ShortAnswer {
		out.ShortAnswer[k] = v
	}
	for k, v := range in.LongAnswer {
		out.LongAnswer[k] = v
	}
	return out
}
