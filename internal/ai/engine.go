package ai

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/deepseek-json/internal/model"
)

// Recorder persists one entry per logical send.
type Recorder interface {
	RecordExchange(ctx context.Context, ex *model.Exchange) error
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine sends chat-completion requests with bounded retries. An Engine is
// safe for sequential use; the retry counter is local to each Send call.
type Engine struct {
	transport Transport
	policy    RetryPolicy
	logger    *zap.Logger
	recorder  Recorder
	sessionID string
	sleep     Sleeper
	now       func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder journals every Send under sessionID.
func WithRecorder(r Recorder, sessionID string) EngineOption {
	return func(e *Engine) {
		e.recorder = r
		e.sessionID = sessionID
	}
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

// NewEngine creates an engine over transport using policy.
func NewEngine(transport Transport, policy RetryPolicy, opts ...EngineOption) *Engine {
	e := &Engine{
		transport: transport,
		policy:    policy,
		logger:    zap.NewNop(),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}


// Send performs req, retrying retryable failures with exponential backoff.
// Fatal failures return immediately. Cancellation of ctx before, during or
// between attempts yields a KindCanceled error; no attempt starts after
// cancellation is observed.
func (e *Engine) Send(ctx context.Context, req model.ChatRequest) (string, error) {
	start := e.now()
	maxAttempts := e.policy.attempts()

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = Canceled(err)
			break
		}

		attempts = attempt
		text, err := e.transport.Complete(ctx, req)
		if err == nil {
			e.logger.Debug("request succeeded",
				zap.String("label", req.Label),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", e.now().Sub(start)),
			)
			e.record(ctx, req, attempts, nil, start)
			return text, nil
		}

		if ctx.Err() != nil && !IsCanceled(err) {
			err = Canceled(err)
		}
		lastErr = err

		if e.policy.Classify(err) == Fatal || attempt == maxAttempts {
			break
		}

		delay := e.policy.DelayFor(attempt)
		e.logger.Warn("request attempt failed, retrying",
			zap.String("label", req.Label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Stringer("kind", KindOf(err)),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if err := e.sleep(ctx, delay); err != nil {
			lastErr = Canceled(err)
			break
		}
	}

	if !IsCanceled(lastErr) {
		e.logger.Debug("request failed",
			zap.String("label", req.Label),
			zap.Int("attempts", attempts),
			zap.Error(lastErr),
		)
	}
	e.record(ctx, req, attempts, lastErr, start)
	return "", lastErr
}

func (e *Engine) record(ctx context.Context, req model.ChatRequest, attempts int, err error, start time.Time) {
	if e.recorder == nil {
		return
	}

	outcome := model.OutcomeOK
	if err != nil {
		outcome = KindOf(err).String()
	}

	ex := &model.Exchange{
		ID:        uuid.NewString(),
		SessionID: e.sessionID,
		Label:     req.Label,
		Model:     req.Model,
		Prompt:    snippet(req.LastUserContent(), 200),
		Attempts:  attempts,
		Outcome:   outcome,
		Latency:   e.now().Sub(start),
		CreatedAt: start,
	}

	// The journal entry is written even when ctx is already canceled.
	if rerr := e.recorder.RecordExchange(context.WithoutCancel(ctx), ex); rerr != nil {
		e.logger.Debug("recording exchange", zap.Error(rerr))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
