package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"study-tutor/internal/domain"
)

// PDFIngester uploads a PDF into the knowledge base.
type PDFIngester interface {
	IngestPDF(ctx context.Context, file domain.PDFFile) (domain.IngestResult, error)
}

// YouTubeIngester adds a video transcript to the knowledge base.
type YouTubeIngester interface {
	IngestYouTube(ctx context.Context, url string) (domain.IngestResult, error)
}

// lane describes how one kind of ingestion input is validated, submitted and
// reported.
type lane[I any] struct {
	kind        domain.JobKind
	missing     string
	ready       func(I) bool
	describe    func(I) string
	submit      func(ctx context.Context, in I) (domain.IngestResult, error)
	successText func(in I, res domain.IngestResult) string
	failureText string
}

// Tracker is the ingestion state machine shared by both lanes:
// idle -> running -> succeeded|failed, with the terminal state kept until the
// next submission. Only one job runs per tracker at a time.
type Tracker[I any] struct {
	lane lane[I]
	settings

	mu      sync.Mutex
	input   I
	job     domain.IngestionJob
	running bool
	cancel  context.CancelFunc
}

func newTracker[I any](l lane[I], opts []Option) *Tracker[I] {
	return &Tracker[I]{
		lane:     l,
		settings: newSettings(opts),
		job:      domain.IngestionJob{Kind: l.kind, Status: domain.JobIdle},
	}
}

// SetInput records new lane input (a selected file or a typed URL). It is rejected
// while a job is running. A lane resting in a terminal state returns to idle; the
// last result message stays until the next submission replaces it.
func (t *Tracker[I]) SetInput(in I) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return newError(ErrorBusy, "ingest_in_flight", nil)
	}
	t.input = in
	if t.job.Status.Terminal() {
		t.job.Status = domain.JobIdle
	}
	return nil
}

func (t *Tracker[I]) Input() I {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input
}

// Submit sets in as the lane input and runs it.
func (t *Tracker[I]) Submit(ctx context.Context, in I) (domain.IngestionJob, error) {
	if err := t.SetInput(in); err != nil {
		return t.Snapshot(), err
	}
	return t.Resubmit(ctx)
}

// Resubmit runs the current lane input. After a failure the input is still in
// place, so this retries without re-entering it.
func (t *Tracker[I]) Resubmit(ctx context.Context) (domain.IngestionJob, error) {
	run, err := t.Start(ctx)
	if err != nil {
		return t.Snapshot(), err
	}
	return run()
}

// Start moves the lane to running with the current input before returning, so
// later SetInput calls are rejected until the job ends. The returned func
// performs the upload and must be called exactly once.
func (t *Tracker[I]) Start(ctx context.Context) (func() (domain.IngestionJob, error), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil, newError(ErrorBusy, "ingest_in_flight", nil)
	}
	in := t.input
	if !t.lane.ready(in) {
		return nil, newError(ErrorInvalidInput, t.lane.missing, nil)
	}

	callCtx, cancel := t.callContext(ctx)
	t.running = true
	t.cancel = cancel
	t.job = domain.IngestionJob{
		ID:        newUUID(),
		Kind:      t.lane.kind,
		Status:    domain.JobRunning,
		StartedAt: t.now(),
	}

	log := t.logger.With(zap.String("lane", string(t.lane.kind)), zap.String("job_id", t.job.ID))
	log.Info("ingestion started", zap.String("input", t.lane.describe(in)))

	return func() (domain.IngestionJob, error) {
		defer cancel()
		return t.complete(callCtx, log, in)
	}, nil
}

func (t *Tracker[I]) complete(ctx context.Context, log *zap.Logger, in I) (domain.IngestionJob, error) {
	res, err := t.lane.submit(ctx, in)

	t.mu.Lock()
	t.running = false
	t.cancel = nil
	t.job.FinishedAt = t.now()
	if err != nil {
		t.job.Status = domain.JobFailed
		t.job.ResultMessage = t.lane.failureText
		t.mu.Unlock()

		failure := requestFailure(ctx, err)
		log.Warn("ingestion failed", zap.String("reason", failure.Reason), zap.Error(err))
		return t.Snapshot(), failure
	}
	t.job.Status = domain.JobSucceeded
	t.job.ResultMessage = t.lane.successText(in, res)
	var zero I
	t.input = zero
	t.mu.Unlock()

	log.Info("ingestion succeeded", zap.Int("chunks_added", res.ChunksAdded))
	return t.Snapshot(), nil
}

// Snapshot returns the lane state with Input describing the current lane input.
func (t *Tracker[I]) Snapshot() domain.IngestionJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.job
	job.Input = t.lane.describe(t.input)
	return job
}

func (t *Tracker[I]) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Cancel aborts the running job, if any.
func (t *Tracker[I]) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return false
	}
	t.cancel()
	return true
}

// PDFLane uploads PDF files.
type PDFLane struct {
	*Tracker[domain.PDFFile]
}

func NewPDFLane(ingester PDFIngester, opts ...Option) (*PDFLane, error) {
	if ingester == nil {
		return nil, errors.New("usecase: pdf ingester must not be nil")
	}
	return &PDFLane{Tracker: newTracker(lane[domain.PDFFile]{
		kind:     domain.JobPDF,
		missing:  "no_file_selected",
		ready:    func(f domain.PDFFile) bool { return !f.Empty() },
		describe: func(f domain.PDFFile) string { return f.Name },
		submit:   ingester.IngestPDF,
		successText: func(f domain.PDFFile, res domain.IngestResult) string {
			name := res.Document
			if name == "" {
				name = f.Name
			}
			return fmt.Sprintf("✅ PDF \"%s\" uploaded successfully (%d chunks)", name, res.ChunksAdded)
		},
		failureText: PDFFailureMessage,
	}, opts)}, nil
}

// Select records file as the file to upload.
func (l *PDFLane) Select(file domain.PDFFile) error {
	return l.SetInput(file)
}

// Upload selects file and uploads it.
func (l *PDFLane) Upload(ctx context.Context, file domain.PDFFile) (domain.IngestionJob, error) {
	return l.Submit(ctx, file)
}

// YouTubeLane ingests video transcripts by URL.
type YouTubeLane struct {
	*Tracker[string]
}

func NewYouTubeLane(ingester YouTubeIngester, opts ...Option) (*YouTubeLane, error) {
	if ingester == nil {
		return nil, errors.New("usecase: youtube ingester must not be nil")
	}
	return &YouTubeLane{Tracker: newTracker(lane[string]{
		kind:     domain.JobYouTube,
		missing:  "empty_url",
		ready:    func(u string) bool { return strings.TrimSpace(u) != "" },
		describe: func(u string) string { return u },
		submit: func(ctx context.Context, u string) (domain.IngestResult, error) {
			return ingester.IngestYouTube(ctx, strings.TrimSpace(u))
		},
		successText: func(_ string, res domain.IngestResult) string {
			return fmt.Sprintf("✅ YouTube video ingested successfully (%d chunks)", res.ChunksAdded)
		},
		failureText: YouTubeFailureMessage,
	}, opts)}, nil
}

// SetURL records url as the video to ingest.
func (l *YouTubeLane) SetURL(url string) error {
	return l.SetInput(url)
}

// Ingest sets url and ingests it.
func (l *YouTubeLane) Ingest(ctx context.Context, url string) (domain.IngestionJob, error) {
	return l.Submit(ctx, url)
}
