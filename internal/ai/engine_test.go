package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/deepseek-json/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// scriptedTransport replays a fixed sequence of results, one per call.
type scriptedTransport struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	text string
	err  error
}

func (s *scriptedTransport) Complete(_ context.Context, _ model.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls >= len(s.results) {
		s.calls++
		return "", errors.New("unexpected call")
	}
	r := s.results[s.calls]
	s.calls++
	return r.text, r.err
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.delays = append(l.delays, d)
	l.mu.Unlock()
	return ctx.Err()
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type memoryRecorder struct {
	mu        sync.Mutex
	exchanges []*model.Exchange
}

func (r *memoryRecorder) RecordExchange(_ context.Context, ex *model.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, ex)
	return nil
}

var busy = &Error{Kind: KindServerBusy, StatusCode: 503}

func TestSendRetriesThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{results: []scriptedResult{
		{err: busy},
		{err: busy},
		{text: `{"ok":true}`},
	}}
	log := &sleepLog{}
	rec := &memoryRecorder{}

	engine := NewEngine(transport, DefaultRetryPolicy(),
		WithSleeper(log.sleep),
		WithRecorder(rec, "session-1"),
	)

	text, err := engine.Send(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, 3, transport.Calls())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, log.delays)

	require.Len(t, rec.exchanges, 1)
	assert.Equal(t, "session-1", rec.exchanges[0].SessionID)
	assert.Equal(t, 3, rec.exchanges[0].Attempts)
	assert.Equal(t, model.OutcomeOK, rec.exchanges[0].Outcome)
	assert.Equal(t, "hello", rec.exchanges[0].Prompt)
}

func TestSendSingleBusyThenSuccess(t *testing.T) {
	transport := &scriptedTransport{results: []scriptedResult{
		{err: busy},
		{text: `{"ok":true}`},
	}}
	log := &sleepLog{}

	engine := NewEngine(transport, DefaultRetryPolicy(), WithSleeper(log.sleep))
	text, err := engine.Send(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, 2, transport.Calls())
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, log.delays)
}

func TestSendExhaustsAttempts(t *testing.T) {
	timeout := &Error{Kind: KindTimeout, Timeout: time.Second}
	transport := &scriptedTransport{results: []scriptedResult{
		{err: busy},
		{err: &Error{Kind: KindNetwork, Detail: "reset"}},
		{err: timeout},
		{text: "never reached"},
	}}
	rec := &memoryRecorder{}

	engine := NewEngine(transport, DefaultRetryPolicy(), WithSleeper(noSleep), WithRecorder(rec, "s"))
	_, err := engine.Send(context.Background(), testRequest())

	require.Error(t, err)
	assert.Same(t, timeout, err, "the last observed error is surfaced")
	assert.Equal(t, 3, transport.Calls())
	require.Len(t, rec.exchanges, 1)
	assert.Equal(t, "timeout", rec.exchanges[0].Outcome)
}

func TestSendFatalIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"api", &Error{Kind: KindAPI, StatusCode: 400, Detail: "bad request"}},
		{"parse", NewParseError("no choices in API response", "", nil)},
		{"config", NewConfigError(errors.New("bad base url"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &scriptedTransport{results: []scriptedResult{{err: tt.err}, {text: "x"}}}
			log := &sleepLog{}

			engine := NewEngine(transport, DefaultRetryPolicy(), WithSleeper(log.sleep))
			_, err := engine.Send(context.Background(), testRequest())

			assert.Same(t, tt.err, err)
			assert.Equal(t, 1, transport.Calls())
			assert.Empty(t, log.delays)
		})
	}
}

func TestSendCanceledBeforeFirstAttempt(t *testing.T) {
	transport := &scriptedTransport{results: []scriptedResult{{text: "x"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(transport, DefaultRetryPolicy()).Send(ctx, testRequest())
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 0, transport.Calls())
}

func TestSendCanceledDuringBackoff(t *testing.T) {
	transport := &scriptedTransport{results: []scriptedResult{{err: busy}, {text: "x"}}}
	ctx, cancel := context.WithCancel(context.Background())

	policy := DefaultRetryPolicy()
	policy.BaseDelay = time.Hour

	done := make(chan error, 1)
	go func() {
		_, err := NewEngine(transport, policy).Send(ctx, testRequest())
		done <- err
	}()

	require.Eventually(t, func() bool { return transport.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, IsCanceled(err))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after cancellation")
	}
	assert.Equal(t, 1, transport.Calls(), "no attempt starts after cancellation")
}

// blockingTransport blocks until ctx is done, then reports a transport error.
type blockingTransport struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingTransport) Complete(ctx context.Context, _ model.ChatRequest) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return "", &Error{Kind: KindNetwork, Detail: "connection closed", Err: ctx.Err()}
}

func TestSendCanceledDuringCall(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := NewEngine(transport, DefaultRetryPolicy(), WithSleeper(noSleep)).Send(ctx, testRequest())
		done <- err
	}()

	<-transport.started
	cancel()

	select {
	case err := <-done:
		assert.True(t, IsCanceled(err), "a network error observed after cancellation is reported as canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after cancellation")
	}
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestAskBuildsQueryRequest(t *testing.T) {
	var got model.ChatRequest
	transport := transportFunc(func(_ context.Context, req model.ChatRequest) (string, error) {
		got = req
		return `{"title":"Go","description":"A language","content":"Details","confidence":0.9}`, nil
	})

	engine := NewEngine(transport, DefaultRetryPolicy())
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	settings := RequestSettings{Model: "deepseek-chat", Temperature: 0.7, MaxTokens: 4096}
	artifact, err := engine.Ask(context.Background(), settings, "What is Go?")
	require.NoError(t, err)

	assert.Equal(t, "Go", artifact.Title)
	require.NotNil(t, artifact.Confidence)
	assert.InDelta(t, 0.9, *artifact.Confidence, 1e-9)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, QuerySystemPrompt, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "What is Go?")
	assert.Contains(t, got.Messages[1].Content, "2026-10-19T12:00:00Z")
	assert.True(t, got.ForceJSON)
	assert.Equal(t, "query", got.Label)
}

func TestAskMissingFieldIsParseError(t *testing.T) {
	transport := transportFunc(func(context.Context, model.ChatRequest) (string, error) {
		return `{"title":"Go","content":"Details"}`, nil
	})

	_, err := NewEngine(transport, DefaultRetryPolicy()).Ask(context.Background(), RequestSettings{}, "q")
	require.Error(t, err)
	assert.Equal(t, KindParse, KindOf(err))
	assert.Contains(t, err.Error(), "description")
}

type transportFunc func(ctx context.Context, req model.ChatRequest) (string, error)

func (f transportFunc) Complete(ctx context.Context, req model.ChatRequest) (string, error) {
	return f(ctx, req)
}
