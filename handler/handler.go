package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"study-tutor/internal/conversation"
	"study-tutor/internal/domain"
	"study-tutor/internal/render"
	"study-tutor/internal/usecase"
)

// Asker is the ask lane as seen by the command loop.
type Asker interface {
	SetDraft(text string) error
	StartDraft(ctx context.Context) (func() (domain.Turn, error), error)
	State() usecase.AskState
	Cancel() bool
}

// Lane is an ingestion lane as seen by the command loop.
type Lane interface {
	Start(ctx context.Context) (func() (domain.IngestionJob, error), error)
	Snapshot() domain.IngestionJob
	Cancel() bool
}

type PDFLane interface {
	Lane
	Select(file domain.PDFFile) error
}

type YouTubeLane interface {
	Lane
	SetURL(url string) error
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type Transcript interface {
	Entries() []conversation.Entry
}

// Deps are the collaborators of a Handler. All but ReadFile and Logger are required.
type Deps struct {
	Ask        Asker
	PDF        PDFLane
	YouTube    YouTubeLane
	Health     HealthChecker
	Transcript Transcript
	ReadFile   func(path string) ([]byte, error)
	Logger     *zap.Logger
}

// Response reports how a command line was handled. Code is empty when the command
// was accepted; background work may still be running.
type Response struct {
	Command string
	Code    string
	Reason  string
	Quit    bool
}

const (
	codeUnknownCommand = "UNKNOWN_COMMAND"
	codeUnreadable     = "UNREADABLE_FILE"
)

// Handler turns terminal input lines into orchestrator and lane calls and prints
// the results. Asks and ingestions run in the background so one lane never waits
// on another.
type Handler struct {
	deps Deps
	log  *zap.Logger

	outMu sync.Mutex
	out   *render.Renderer

	wg sync.WaitGroup
}

func NewHandler(deps Deps, w io.Writer, plain bool) (*Handler, error) {
	switch {
	case deps.Ask == nil:
		return nil, errors.New("handler: ask orchestrator must not be nil")
	case deps.PDF == nil:
		return nil, errors.New("handler: pdf lane must not be nil")
	case deps.YouTube == nil:
		return nil, errors.New("handler: youtube lane must not be nil")
	case deps.Health == nil:
		return nil, errors.New("handler: health checker must not be nil")
	case deps.Transcript == nil:
		return nil, errors.New("handler: transcript must not be nil")
	case w == nil:
		return nil, errors.New("handler: output writer must not be nil")
	}
	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{deps: deps, log: log, out: render.New(w, plain)}, nil
}

// Handle runs one line of input.
func (h *Handler) Handle(ctx context.Context, line string) Response {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(strings.TrimSpace(line), "/") {
		return h.ask(ctx, line)
	}

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	h.log.Debug("command", zap.String("command", cmd))

	switch cmd {
	case "/pdf":
		return h.selectPDF(ctx, cmd, arg, true)
	case "/select":
		return h.selectPDF(ctx, cmd, arg, false)
	case "/upload":
		return h.submit(ctx, cmd, h.deps.PDF)
	case "/youtube":
		if resp := h.setURL(cmd, arg); resp.Code != "" {
			return resp
		}
		return h.submit(ctx, cmd, h.deps.YouTube)
	case "/url":
		resp := h.setURL(cmd, arg)
		if resp.Code == "" {
			h.print(func(r *render.Renderer) { r.Lane(h.deps.YouTube.Snapshot()) })
		}
		return resp
	case "/ingest":
		return h.submit(ctx, cmd, h.deps.YouTube)
	case "/cancel":
		return h.cancel(cmd, arg)
	case "/status":
		h.print(func(r *render.Renderer) {
			r.AskStatus(h.deps.Ask.State())
			r.Lane(h.deps.PDF.Snapshot())
			r.Lane(h.deps.YouTube.Snapshot())
		})
		return Response{Command: cmd}
	case "/health":
		return h.health(ctx, cmd)
	case "/history":
		h.print(func(r *render.Renderer) { r.Transcript(h.deps.Transcript.Entries()) })
		return Response{Command: cmd}
	case "/help":
		h.print(func(r *render.Renderer) { r.Notice(helpText) })
		return Response{Command: cmd}
	case "/quit", "/exit":
		return Response{Command: cmd, Quit: true}
	default:
		h.print(func(r *render.Renderer) { r.Problem("Unknown command %s (try /help)", cmd) })
		return Response{Command: cmd, Code: codeUnknownCommand}
	}
}

// Wait blocks until all background asks and ingestions have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ask holds the line in the draft buffer and claims the ask lane before
// returning, so a following line sees the lane busy.
func (h *Handler) ask(ctx context.Context, question string) Response {
	if strings.TrimSpace(question) == "" {
		return Response{Command: "ask", Code: string(usecase.ErrorInvalidInput), Reason: "empty_question"}
	}
	if err := h.deps.Ask.SetDraft(question); err != nil {
		return h.rejected("ask", err)
	}
	run, err := h.deps.Ask.StartDraft(ctx)
	if err != nil {
		return h.rejected("ask", err)
	}

	h.print(func(r *render.Renderer) { r.Notice("Thinking...") })
	h.spawn(func() {
		turn, err := run()
		if err != nil {
			h.print(func(r *render.Renderer) { r.AskStatus(h.deps.Ask.State()) })
			return
		}
		h.print(func(r *render.Renderer) { r.Teacher(turn) })
	})
	return Response{Command: "ask"}
}

func (h *Handler) selectPDF(ctx context.Context, cmd, path string, upload bool) Response {
	if path == "" {
		h.print(func(r *render.Renderer) { r.Problem("Usage: %s <path to .pdf>", cmd) })
		return Response{Command: cmd, Code: string(usecase.ErrorInvalidInput), Reason: "no_file_selected"}
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		h.print(func(r *render.Renderer) { r.Problem("Only .pdf files can be uploaded.") })
		return Response{Command: cmd, Code: string(usecase.ErrorInvalidInput), Reason: "not_pdf"}
	}
	data, err := h.deps.ReadFile(path)
	if err != nil {
		h.log.Debug("read pdf failed", zap.String("path", path), zap.Error(err))
		h.print(func(r *render.Renderer) { r.Problem("Cannot read %s", path) })
		return Response{Command: cmd, Code: codeUnreadable}
	}

	file := domain.PDFFile{Name: filepath.Base(path), Data: data}
	if err := h.deps.PDF.Select(file); err != nil {
		return h.rejected(cmd, err)
	}
	h.print(func(r *render.Renderer) { r.Lane(h.deps.PDF.Snapshot()) })
	if !upload {
		return Response{Command: cmd}
	}
	return h.submit(ctx, cmd, h.deps.PDF)
}

func (h *Handler) setURL(cmd, url string) Response {
	if url == "" {
		h.print(func(r *render.Renderer) { r.Problem("Usage: %s <YouTube URL>", cmd) })
		return Response{Command: cmd, Code: string(usecase.ErrorInvalidInput), Reason: "empty_url"}
	}
	if err := h.deps.YouTube.SetURL(url); err != nil {
		return h.rejected(cmd, err)
	}
	return Response{Command: cmd}
}

// submit moves the lane to running with its current input and uploads it in
// the background.
func (h *Handler) submit(ctx context.Context, cmd string, lane Lane) Response {
	run, err := lane.Start(ctx)
	if err != nil {
		return h.rejected(cmd, err)
	}

	h.print(func(r *render.Renderer) { r.Lane(lane.Snapshot()) })
	h.spawn(func() {
		job, err := run()
		if err != nil {
			h.log.Debug("ingestion ended with error", zap.String("command", cmd), zap.Error(err))
		}
		h.print(func(r *render.Renderer) { r.Lane(job) })
	})
	return Response{Command: cmd}
}

func (h *Handler) cancel(cmd, target string) Response {
	targets := map[string]interface{ Cancel() bool }{
		"ask":     h.deps.Ask,
		"pdf":     h.deps.PDF,
		"youtube": h.deps.YouTube,
	}
	names := []string{"ask", "pdf", "youtube"}
	if target != "" {
		if _, ok := targets[target]; !ok {
			h.print(func(r *render.Renderer) { r.Problem("Usage: /cancel [ask|pdf|youtube]") })
			return Response{Command: cmd, Code: string(usecase.ErrorInvalidInput), Reason: "unknown_lane"}
		}
		names = []string{target}
	}

	cancelled := 0
	for _, name := range names {
		if targets[name].Cancel() {
			cancelled++
			h.print(func(r *render.Renderer) { r.Notice("Cancelled %s.", name) })
		}
	}
	if cancelled == 0 {
		h.print(func(r *render.Renderer) { r.Notice("Nothing to cancel.") })
	}
	return Response{Command: cmd}
}

func (h *Handler) health(ctx context.Context, cmd string) Response {
	if err := h.deps.Health.Health(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		h.print(func(r *render.Renderer) { r.Problem("Ingestion service is not reachable.") })
		return Response{Command: cmd, Code: string(usecase.ErrorRequestFailed)}
	}
	h.print(func(r *render.Renderer) { r.Notice("Ingestion service is up.") })
	return Response{Command: cmd}
}

// rejected prints a short message for a precondition failure.
func (h *Handler) rejected(cmd string, err error) Response {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		h.log.Error("unexpected command error", zap.String("command", cmd), zap.Error(err))
		h.print(func(r *render.Renderer) { r.Problem("Something went wrong.") })
		return Response{Command: cmd, Code: "INTERNAL"}
	}
	h.print(func(r *render.Renderer) { r.Problem("%s", rejectionText(ue.Reason)) })
	return Response{Command: cmd, Code: string(ue.Code), Reason: ue.Reason}
}

func rejectionText(reason string) string {
	switch reason {
	case "ask_in_flight":
		return "Still thinking about the previous question."
	case "ingest_in_flight":
		return "That lane is still working."
	case "no_file_selected":
		return "Select a PDF first: /select <path>"
	case "empty_url":
		return "Enter a YouTube URL first: /url <url>"
	default:
		return fmt.Sprintf("Request rejected (%s).", reason)
	}
}

func (h *Handler) spawn(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *Handler) print(fn func(r *render.Renderer)) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fn(h.out)
}

const helpText = `Type a question to ask it.
  /pdf <path>       select and upload a PDF
  /select <path>    select a PDF
  /upload           upload the selected PDF
  /youtube <url>    ingest a YouTube video
  /url <url>        set the YouTube URL
  /ingest           ingest the current URL
  /cancel [lane]    cancel ask, pdf or youtube work
  /status           show lane status
  /health           check the ingestion service
  /history          show the conversation
  /quit             leave`
