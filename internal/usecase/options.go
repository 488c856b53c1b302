package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type settings struct {
	logger     *zap.Logger
	timeout    time.Duration
	difficulty string
	now        func() time.Time
}

// Option configures an orchestrator or an ingestion lane.
type Option func(*settings)

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithDifficulty sets the difficulty hint sent with every question.
func WithDifficulty(level string) Option {
	return func(s *settings) {
		s.difficulty = level
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

var newUUID = func() string {
	return uuid.NewString()
}
