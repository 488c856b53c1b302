package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"study-tutor/internal/conversation"
	"study-tutor/internal/domain"
)

// Asker sends a question with its conversational context to the answer generator.
type Asker interface {
	Ask(ctx context.Context, req domain.AskRequest) (domain.Answer, error)
}

// ConversationStore is the transcript the orchestrator writes to.
type ConversationStore interface {
	Append(turn domain.Turn) string
	SerializeForContext() []domain.HistoryItem
	MarkOutcome(id string, outcome conversation.Outcome) bool
}

// AskState is a point-in-time view of the ask lane.
type AskState struct {
	Status   domain.AskStatus
	Error    string
	Question string
	Draft    string
}

// AskOrchestrator drives the question/answer lifecycle. At most one ask is in
// flight at a time; a second Ask while one is pending is rejected, not queued.
type AskOrchestrator struct {
	asker Asker
	store ConversationStore
	settings

	mu       sync.Mutex
	inFlight bool
	status   domain.AskStatus
	errMsg   string
	question string
	draft    string
	cancel   context.CancelFunc
}

func NewAskOrchestrator(asker Asker, store ConversationStore, opts ...Option) (*AskOrchestrator, error) {
	if asker == nil {
		return nil, errors.New("usecase: asker must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	return &AskOrchestrator{
		asker:    asker,
		store:    store,
		settings: newSettings(opts),
		status:   domain.AskIdle,
	}, nil
}

// Ask appends question as a student turn, sends it with the prior history and
// appends the teacher turn built from the answer. The student turn stays in the
// transcript when the request fails.
func (o *AskOrchestrator) Ask(ctx context.Context, question string) (domain.Turn, error) {
	run, err := o.Start(ctx, question)
	if err != nil {
		return domain.Turn{}, err
	}
	return run()
}

// StartDraft is Start for the current draft, which Start clears.
func (o *AskOrchestrator) StartDraft(ctx context.Context) (func() (domain.Turn, error), error) {
	o.mu.Lock()
	draft := o.draft
	o.mu.Unlock()
	return o.Start(ctx, draft)
}

// Start claims the ask lane for question, appends the student turn and moves to
// pending before returning. The returned func performs the request and must be
// called exactly once. A second Start before that func returns is rejected.
func (o *AskOrchestrator) Start(ctx context.Context, question string) (func() (domain.Turn, error), error) {
	if strings.TrimSpace(question) == "" {
		return nil, newError(ErrorInvalidInput, "empty_question", nil)
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, newError(ErrorBusy, "ask_in_flight", nil)
	}
	o.inFlight = true
	o.mu.Unlock()

	history := o.store.SerializeForContext()
	studentID := o.store.Append(domain.Turn{Role: domain.RoleStudent, Content: question})

	callCtx, cancel := o.callContext(ctx)

	o.mu.Lock()
	o.draft = ""
	o.status = domain.AskPending
	o.errMsg = ""
	o.question = question
	o.cancel = cancel
	o.mu.Unlock()

	o.logger.Info("ask submitted",
		zap.String("turn_id", studentID),
		zap.Int("history_len", len(history)),
	)

	return func() (domain.Turn, error) {
		defer cancel()
		return o.complete(callCtx, studentID, domain.AskRequest{
			Question:   question,
			History:    history,
			Difficulty: o.difficulty,
		})
	}, nil
}

func (o *AskOrchestrator) complete(ctx context.Context, studentID string, req domain.AskRequest) (domain.Turn, error) {
	answer, err := o.asker.Ask(ctx, req)
	if err != nil {
		failure := requestFailure(ctx, err)
		o.store.MarkOutcome(studentID, conversation.OutcomeUnanswered)
		o.finish(domain.AskFailed, AskFailureMessage)
		fields := []zap.Field{
			zap.String("turn_id", studentID),
			zap.String("reason", failure.Reason),
			zap.Error(err),
		}
		if status, ok := upstreamStatusCode(err); ok {
			fields = append(fields, zap.Int("status", status))
		}
		o.logger.Warn("ask failed", fields...)
		return domain.Turn{}, failure
	}

	turn := teacherTurn(answer)
	turn.ID = o.store.Append(turn)
	o.store.MarkOutcome(studentID, conversation.OutcomeAnswered)
	o.finish(domain.AskFulfilled, "")

	o.logger.Info("ask fulfilled",
		zap.String("turn_id", turn.ID),
		zap.Int("sources", len(turn.Sources)),
	)
	return turn, nil
}

func (o *AskOrchestrator) finish(status domain.AskStatus, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
	o.errMsg = errMsg
	o.question = ""
	o.cancel = nil
	o.inFlight = false
}

// SetDraft replaces the pending question buffer. The buffer is locked while an ask
// is in flight.
func (o *AskOrchestrator) SetDraft(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return newError(ErrorBusy, "ask_in_flight", nil)
	}
	o.draft = text
	return nil
}

func (o *AskOrchestrator) State() AskState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return AskState{
		Status:   o.status,
		Error:    o.errMsg,
		Question: o.question,
		Draft:    o.draft,
	}
}

// Cancel aborts the in-flight ask, if any. The aborted ask fails like any other
// request failure.
func (o *AskOrchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

func teacherTurn(a domain.Answer) domain.Turn {
	sources := a.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return domain.Turn{
		Role:                 domain.RoleTeacher,
		Content:              a.Teacher,
		StudentFollowup:      a.Student,
		TeacherClarification: a.TeacherFollowup,
		Sources:              sources,
	}
}
