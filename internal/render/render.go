package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"study-tutor/internal/conversation"
	"study-tutor/internal/domain"
	"study-tutor/internal/usecase"
)

const (
	Placeholder   = "Start a conversation by asking a question below"
	excerptLimit  = 120
	excerptSuffix = "..."
)

// Renderer prints the conversation and lane status lines to a terminal.
type Renderer struct {
	w       io.Writer
	student *color.Color
	title   *color.Color
	page    *color.Color
	muted   *color.Color
	ok      *color.Color
	bad     *color.Color
}

// New returns a Renderer writing to w. Plain disables ANSI colors regardless of
// the terminal.
func New(w io.Writer, plain bool) *Renderer {
	r := &Renderer{
		w:       w,
		student: color.New(color.FgBlue, color.Bold),
		title:   color.New(color.FgHiBlack, color.Bold),
		page:    color.New(color.FgBlue),
		muted:   color.New(color.FgHiBlack),
		ok:      color.New(color.FgGreen),
		bad:     color.New(color.FgRed),
	}
	if plain {
		for _, c := range []*color.Color{r.student, r.title, r.page, r.muted, r.ok, r.bad} {
			c.DisableColor()
		}
	}
	return r
}

// Transcript prints every turn, or the placeholder for an empty conversation.
func (r *Renderer) Transcript(entries []conversation.Entry) {
	if len(entries) == 0 {
		r.muted.Fprintln(r.w, Placeholder)
		return
	}
	for _, e := range entries {
		r.Entry(e)
	}
}

// Entry prints a single turn.
func (r *Renderer) Entry(e conversation.Entry) {
	if e.Turn.Role == domain.RoleStudent {
		r.student.Fprint(r.w, "You: ")
		fmt.Fprintln(r.w, e.Turn.Content)
		if e.Outcome == conversation.OutcomeUnanswered {
			r.muted.Fprintln(r.w, "  (no answer)")
		}
		return
	}
	r.Teacher(e.Turn)
}

// Teacher prints the sections of a teacher turn. Empty sections are skipped.
func (r *Renderer) Teacher(t domain.Turn) {
	r.section("Teacher Explanation", t.Content)
	r.section("Student Follow-up Question", t.StudentFollowup)
	r.section("Teacher Clarification", t.TeacherClarification)
	if len(t.Sources) == 0 {
		return
	}
	r.title.Fprintln(r.w, "Sources")
	for _, s := range t.Sources {
		r.page.Fprintf(r.w, "  [%s] ", s.DisplayPage())
		fmt.Fprintln(r.w, Excerpt(s.Text))
	}
}

func (r *Renderer) section(title, body string) {
	if body == "" {
		return
	}
	r.title.Fprintln(r.w, title)
	fmt.Fprintln(r.w, indent(body))
}

// AskStatus prints the pending indicator or the failure banner.
func (r *Renderer) AskStatus(s usecase.AskState) {
	switch s.Status {
	case domain.AskPending:
		r.muted.Fprintln(r.w, "Thinking...")
	case domain.AskFailed:
		if s.Error != "" {
			r.bad.Fprintln(r.w, s.Error)
		}
	}
}

// Lane prints one ingestion lane's status line.
func (r *Renderer) Lane(job domain.IngestionJob) {
	label := laneLabel(job.Kind)
	if job.Status == domain.JobRunning {
		r.muted.Fprintf(r.w, "[%s] %s\n", label, runningText(job.Kind))
		return
	}
	switch {
	case job.Input == "":
	case job.Kind == domain.JobPDF:
		fmt.Fprintf(r.w, "[%s] Selected: %s\n", label, job.Input)
	case job.Status == domain.JobIdle:
		fmt.Fprintf(r.w, "[%s] URL: %s\n", label, job.Input)
	}
	switch {
	case failureMessage(job.ResultMessage):
		r.bad.Fprintf(r.w, "[%s] %s\n", label, job.ResultMessage)
	case job.ResultMessage != "":
		r.ok.Fprintf(r.w, "[%s] %s\n", label, job.ResultMessage)
	case job.Input == "":
		r.muted.Fprintf(r.w, "[%s] idle\n", label)
	}
}

// Notice prints an informational line.
func (r *Renderer) Notice(format string, args ...any) {
	r.muted.Fprintf(r.w, format+"\n", args...)
}

// Problem prints a short error line.
func (r *Renderer) Problem(format string, args ...any) {
	r.bad.Fprintf(r.w, format+"\n", args...)
}

// Excerpt shortens a source text for display.
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + excerptSuffix
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func failureMessage(msg string) bool {
	return msg == usecase.PDFFailureMessage || msg == usecase.YouTubeFailureMessage
}

func laneLabel(kind domain.JobKind) string {
	if kind == domain.JobYouTube {
		return "YouTube"
	}
	return "PDF"
}

func runningText(kind domain.JobKind) string {
	if kind == domain.JobYouTube {
		return "Ingesting..."
	}
	return "Uploading..."
}
