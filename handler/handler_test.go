package handler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"study-tutor/internal/conversation"
	"study-tutor/internal/domain"
	"study-tutor/internal/usecase"
)

// stubGateway stands in for the backend client on every lane.
type stubGateway struct {
	mu        sync.Mutex
	answer    domain.Answer
	askErr    error
	pdfRes    domain.IngestResult
	pdfErr    error
	ytRes     domain.IngestResult
	ytErr     error
	healthErr error
	questions []string
	files     []domain.PDFFile
	urls      []string
}

func (s *stubGateway) Ask(_ context.Context, req domain.AskRequest) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, req.Question)
	return s.answer, s.askErr
}

func (s *stubGateway) IngestPDF(_ context.Context, f domain.PDFFile) (domain.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, f)
	return s.pdfRes, s.pdfErr
}

func (s *stubGateway) IngestYouTube(_ context.Context, url string) (domain.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	return s.ytRes, s.ytErr
}

func (s *stubGateway) Health(context.Context) error {
	return s.healthErr
}

type fixture struct {
	h     *Handler
	out   *bytes.Buffer
	gw    *stubGateway
	store *conversation.Store
	pdf   *usecase.PDFLane
	yt    *usecase.YouTubeLane
}

func newFixture(t *testing.T, gw *stubGateway) *fixture {
	t.Helper()
	store := conversation.NewStore()
	orch, err := usecase.NewAskOrchestrator(gw, store)
	require.NoError(t, err)
	pdf, err := usecase.NewPDFLane(gw)
	require.NoError(t, err)
	yt, err := usecase.NewYouTubeLane(gw)
	require.NoError(t, err)

	files := map[string][]byte{"/tmp/notes.pdf": []byte("%PDF-1.4")}
	var out bytes.Buffer
	h, err := NewHandler(Deps{
		Ask:        orch,
		PDF:        pdf,
		YouTube:    yt,
		Health:     gw,
		Transcript: store,
		ReadFile: func(path string) ([]byte, error) {
			data, ok := files[path]
			if !ok {
				return nil, os.ErrNotExist
			}
			return data, nil
		},
	}, &out, true)
	require.NoError(t, err)
	return &fixture{h: h, out: &out, gw: gw, store: store, pdf: pdf, yt: yt}
}

// run handles line and waits for any background work it started.
func (f *fixture) run(line string) Response {
	resp := f.h.Handle(context.Background(), line)
	f.h.Wait()
	return resp
}

// ---------------------------------------------------------------------------
// NewHandler
// ---------------------------------------------------------------------------

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(Deps{}, &bytes.Buffer{}, true)
	require.Error(t, err)

	f := newFixture(t, &stubGateway{})
	deps := f.h.deps
	_, err = NewHandler(deps, nil, true)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Asking
// ---------------------------------------------------------------------------

func TestHandle_PlainTextAsks(t *testing.T) {
	gw := &stubGateway{answer: domain.Answer{
		Teacher: "Entropy measures disorder.",
		Sources: []domain.Source{{Page: 3, Label: "3", Text: "Entropy is..."}},
	}}
	f := newFixture(t, gw)

	resp := f.run("What is entropy?")
	require.Empty(t, resp.Code)
	require.Equal(t, []string{"What is entropy?"}, gw.questions)
	require.Equal(t, 2, f.store.Len())
	require.Contains(t, f.out.String(), "Thinking...")
	require.Contains(t, f.out.String(), "Teacher Explanation\n  Entropy measures disorder.")
	require.Contains(t, f.out.String(), "[Page 3] Entropy is...")
}

func TestHandle_BlankLineIsIgnored(t *testing.T) {
	gw := &stubGateway{}
	f := newFixture(t, gw)

	resp := f.run("   ")
	require.Equal(t, string(usecase.ErrorInvalidInput), resp.Code)
	require.Empty(t, gw.questions)
	require.Zero(t, f.store.Len())
	require.Empty(t, f.out.String())
}

func TestHandle_AskFailureShowsBanner(t *testing.T) {
	f := newFixture(t, &stubGateway{askErr: errors.New("connection refused")})

	resp := f.run("What is entropy?")
	require.Empty(t, resp.Code)
	require.Contains(t, f.out.String(), usecase.AskFailureMessage)

	f.out.Reset()
	f.run("/history")
	require.Equal(t, "You: What is entropy?\n  (no answer)\n", f.out.String())
}

// ---------------------------------------------------------------------------
// PDF lane
// ---------------------------------------------------------------------------

func TestHandle_PDFUpload(t *testing.T) {
	gw := &stubGateway{pdfRes: domain.IngestResult{Document: "notes.pdf", ChunksAdded: 42}}
	f := newFixture(t, gw)

	resp := f.run("/pdf /tmp/notes.pdf")
	require.Empty(t, resp.Code)
	require.Len(t, gw.files, 1)
	require.Equal(t, "notes.pdf", gw.files[0].Name)

	out := f.out.String()
	require.Contains(t, out, "[PDF] Selected: notes.pdf")
	require.Contains(t, out, "[PDF] Uploading...")
	require.Contains(t, out, `[PDF] ✅ PDF "notes.pdf" uploaded successfully (42 chunks)`)
	require.Equal(t, domain.JobSucceeded, f.pdf.Snapshot().Status)
}

func TestHandle_SelectThenUpload(t *testing.T) {
	gw := &stubGateway{pdfRes: domain.IngestResult{Document: "notes.pdf", ChunksAdded: 1}}
	f := newFixture(t, gw)

	require.Empty(t, f.run("/select /tmp/notes.pdf").Code)
	require.Empty(t, gw.files)

	require.Empty(t, f.run("/upload").Code)
	require.Len(t, gw.files, 1)
}

func TestHandle_UploadWithoutSelection(t *testing.T) {
	gw := &stubGateway{}
	f := newFixture(t, gw)

	resp := f.run("/upload")
	require.Equal(t, string(usecase.ErrorInvalidInput), resp.Code)
	require.Equal(t, "no_file_selected", resp.Reason)
	require.Empty(t, gw.files)
}

func TestHandle_PDFRejectsBadPaths(t *testing.T) {
	f := newFixture(t, &stubGateway{})

	require.Equal(t, "not_pdf", f.run("/pdf /tmp/notes.txt").Reason)
	require.Equal(t, codeUnreadable, f.run("/pdf /tmp/missing.pdf").Code)
	require.Equal(t, "no_file_selected", f.run("/pdf").Reason)
	require.True(t, f.pdf.Input().Empty())
}

func TestHandle_PDFFailureKeepsSelectionForRetry(t *testing.T) {
	gw := &stubGateway{pdfErr: errors.New("refused")}
	f := newFixture(t, gw)

	f.run("/pdf /tmp/notes.pdf")
	require.Contains(t, f.out.String(), usecase.PDFFailureMessage)
	require.Equal(t, "notes.pdf", f.pdf.Snapshot().Input)

	gw.pdfErr = nil
	gw.pdfRes = domain.IngestResult{Document: "notes.pdf", ChunksAdded: 2}
	require.Empty(t, f.run("/upload").Code)
	require.Len(t, gw.files, 2)
	require.Equal(t, domain.JobSucceeded, f.pdf.Snapshot().Status)
}

// ---------------------------------------------------------------------------
// YouTube lane
// ---------------------------------------------------------------------------

func TestHandle_YouTubeIngest(t *testing.T) {
	gw := &stubGateway{ytRes: domain.IngestResult{ChunksAdded: 18}}
	f := newFixture(t, gw)

	resp := f.run("/youtube https://youtu.be/abc")
	require.Empty(t, resp.Code)
	require.Equal(t, []string{"https://youtu.be/abc"}, gw.urls)
	require.Contains(t, f.out.String(), "[YouTube] Ingesting...")
	require.Contains(t, f.out.String(), "✅ YouTube video ingested successfully (18 chunks)")
	require.Empty(t, f.yt.Input())
}

func TestHandle_YouTubeFailureKeepsURL(t *testing.T) {
	gw := &stubGateway{ytErr: errors.New("refused")}
	f := newFixture(t, gw)

	f.run("/youtube https://youtu.be/abc")
	require.Contains(t, f.out.String(), usecase.YouTubeFailureMessage)
	require.Equal(t, "https://youtu.be/abc", f.yt.Input())

	gw.ytErr = nil
	require.Empty(t, f.run("/ingest").Code)
	require.Len(t, gw.urls, 2)
}

func TestHandle_URLThenIngest(t *testing.T) {
	gw := &stubGateway{}
	f := newFixture(t, gw)

	require.Equal(t, "empty_url", f.run("/ingest").Reason)
	require.Equal(t, "empty_url", f.run("/url").Reason)
	require.Empty(t, f.run("/url https://youtu.be/abc").Code)
	require.Empty(t, gw.urls)
	require.Empty(t, f.run("/ingest").Code)
	require.Equal(t, []string{"https://youtu.be/abc"}, gw.urls)
}

// ---------------------------------------------------------------------------
// Other commands
// ---------------------------------------------------------------------------

func TestHandle_Status(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.run("/select /tmp/notes.pdf")
	f.out.Reset()

	require.Empty(t, f.run("/status").Code)
	require.Equal(t, "[PDF] Selected: notes.pdf\n[YouTube] idle\n", f.out.String())
}

func TestHandle_Health(t *testing.T) {
	gw := &stubGateway{}
	f := newFixture(t, gw)

	require.Empty(t, f.run("/health").Code)
	require.Contains(t, f.out.String(), "Ingestion service is up.")

	gw.healthErr = errors.New("refused")
	require.Equal(t, string(usecase.ErrorRequestFailed), f.run("/health").Code)
}

func TestHandle_HistoryPlaceholder(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.run("/history")
	require.Equal(t, "Start a conversation by asking a question below\n", f.out.String())
}

func TestHandle_CancelWithNothingRunning(t *testing.T) {
	f := newFixture(t, &stubGateway{})

	require.Empty(t, f.run("/cancel").Code)
	require.Contains(t, f.out.String(), "Nothing to cancel.")
	require.Equal(t, "unknown_lane", f.run("/cancel video").Reason)
}

func TestHandle_QuitAndUnknown(t *testing.T) {
	f := newFixture(t, &stubGateway{})

	require.True(t, f.run("/quit").Quit)
	require.True(t, f.run("/exit").Quit)
	require.Equal(t, codeUnknownCommand, f.run("/dance").Code)
	require.Empty(t, f.run("/help").Code)
	require.Contains(t, f.out.String(), "/youtube <url>")
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

// blockingAsker keeps the ask lane pending until released.
type blockingAsker struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAsker) Ask(ctx context.Context, _ domain.AskRequest) (domain.Answer, error) {
	close(b.started)
	select {
	case <-b.release:
		return domain.Answer{Teacher: "done"}, nil
	case <-ctx.Done():
		return domain.Answer{}, ctx.Err()
	}
}

func TestHandle_IngestWhileAskPending(t *testing.T) {
	gw := &stubGateway{ytRes: domain.IngestResult{ChunksAdded: 5}}
	f := newFixture(t, gw)
	asker := &blockingAsker{started: make(chan struct{}), release: make(chan struct{})}
	orch, err := usecase.NewAskOrchestrator(asker, f.store)
	require.NoError(t, err)
	f.h.deps.Ask = orch

	require.Empty(t, f.h.Handle(context.Background(), "What is entropy?").Code)
	<-asker.started

	resp := f.h.Handle(context.Background(), "Another question")
	require.Equal(t, string(usecase.ErrorBusy), resp.Code)

	resp = f.h.Handle(context.Background(), "/youtube https://youtu.be/abc")
	require.Empty(t, resp.Code)
	require.Eventually(t, func() bool {
		return f.yt.Snapshot().Status == domain.JobSucceeded
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, domain.AskPending, orch.State().Status)

	require.Empty(t, f.h.Handle(context.Background(), "/cancel ask").Code)
	f.h.Wait()
	require.Equal(t, domain.AskFailed, orch.State().Status)
	require.Equal(t, 1, f.store.Len())
}

func TestHandle_BackToBackAsksKeepFirst(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	asker := &blockingAsker{started: make(chan struct{}), release: make(chan struct{})}
	orch, err := usecase.NewAskOrchestrator(asker, f.store)
	require.NoError(t, err)
	f.h.deps.Ask = orch

	require.Empty(t, f.h.Handle(context.Background(), "First question").Code)
	state := orch.State()
	require.Equal(t, domain.AskPending, state.Status)
	require.Equal(t, "First question", state.Question)
	require.Empty(t, state.Draft)

	resp := f.h.Handle(context.Background(), "Second question")
	require.Equal(t, string(usecase.ErrorBusy), resp.Code)
	require.Equal(t, "ask_in_flight", resp.Reason)

	close(asker.release)
	f.h.Wait()

	turns := f.store.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "First question", turns[0].Content)
	require.Equal(t, "done", turns[1].Content)
	require.Equal(t, domain.AskFulfilled, orch.State().Status)
}

// gatedIngester holds every YouTube ingestion until released.
type gatedIngester struct {
	release chan struct{}

	mu   sync.Mutex
	urls []string
}

func (g *gatedIngester) IngestYouTube(ctx context.Context, url string) (domain.IngestResult, error) {
	g.mu.Lock()
	g.urls = append(g.urls, url)
	g.mu.Unlock()
	select {
	case <-g.release:
		return domain.IngestResult{ChunksAdded: 3}, nil
	case <-ctx.Done():
		return domain.IngestResult{}, ctx.Err()
	}
}

func TestHandle_URLChangeWhileIngesting(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	gate := &gatedIngester{release: make(chan struct{})}
	yt, err := usecase.NewYouTubeLane(gate)
	require.NoError(t, err)
	f.h.deps.YouTube = yt

	require.Empty(t, f.h.Handle(context.Background(), "/youtube https://youtu.be/first").Code)
	require.Equal(t, domain.JobRunning, yt.Snapshot().Status)

	cases := []string{"/url https://youtu.be/second", "/youtube https://youtu.be/second", "/ingest"}
	for _, line := range cases {
		resp := f.h.Handle(context.Background(), line)
		require.Equal(t, string(usecase.ErrorBusy), resp.Code, line)
		require.Equal(t, "ingest_in_flight", resp.Reason, line)
	}

	close(gate.release)
	f.h.Wait()

	require.Equal(t, []string{"https://youtu.be/first"}, gate.urls)
	require.Equal(t, domain.JobSucceeded, yt.Snapshot().Status)
	require.Empty(t, yt.Input())
}
