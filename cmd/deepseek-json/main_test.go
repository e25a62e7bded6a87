package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/console"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/taskfinisher"
)

func completion(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

// scriptedServer answers each request with the next reply in order.
func scriptedServer(t *testing.T, replies ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		if n > len(replies) {
			http.Error(w, `{"error":{"message":"unexpected request"}}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(completion(t, replies[n-1]))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestSession(t *testing.T, baseURL, input string) (*session, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	c := model.DefaultAppConfig()
	c.APIKey = "sk-test"
	c.API.BaseURL = baseURL
	c.Retry.BaseDelayMs = 1

	var out, errOut bytes.Buffer
	con := console.New(strings.NewReader(input), &out, &errOut, console.WithFormat(console.FormatJSON))

	s, err := newSession(c, con, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, &out, &errOut
}

func TestRunQueryPrintsArtifactJSON(t *testing.T) {
	srv, hits := scriptedServer(t, `{"title":"Go","description":"A language","content":"Details"}`)
	s, out, _ := newTestSession(t, srv.URL, "")

	require.NoError(t, s.runQuery(context.Background(), "What is Go?"))
	assert.Equal(t, int32(1), hits.Load())

	var got model.StructuredArtifact
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Go", got.Title)
}

func TestRunQueryInvalidJSONIsNotRetried(t *testing.T) {
	srv, hits := scriptedServer(t, `{"title": "Go",`, `{"title":"Go","description":"D","content":"C"}`)
	s, out, _ := newTestSession(t, srv.URL, "")

	err := s.runQuery(context.Background(), "What is Go?")
	require.Error(t, err)
	assert.Equal(t, ai.KindParse, ai.KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, out.String())

	var stderr bytes.Buffer
	assert.Equal(t, 1, exitCode(err, false, &stderr))
	assert.Contains(t, stderr.String(), "Failed to parse server response")
}

func TestCanceledQueryExitsWithoutMessage(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	s, out, _ := newTestSession(t, srv.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := s.runQuery(ctx, "slow question")
	require.Error(t, err)
	assert.True(t, ai.IsCanceled(err))

	var stderr bytes.Buffer
	assert.Equal(t, 130, exitCode(err, true, &stderr))
	assert.Empty(t, stderr.String())
	assert.Empty(t, out.String())
}

func TestRunQueryCapsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":{"message":"busy"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := model.DefaultAppConfig()
	c.APIKey = "sk-test"
	c.API.BaseURL = srv.URL
	c.Retry.MaxAttempts = 6
	c.Retry.BaseDelayMs = 1
	require.Error(t, c.Validate())

	var out, errOut bytes.Buffer
	con := console.New(strings.NewReader(""), &out, &errOut, console.WithFormat(console.FormatJSON))
	s, err := newSession(c, con, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.runQuery(context.Background(), "What is Go?")
	require.Error(t, err)
	assert.Equal(t, ai.KindServerBusy, ai.KindOf(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestRunTaskFinisherEndToEnd(t *testing.T) {
	batch := `{"type":"clarifying_questions","status":"asking","questions":[{"id":"q1","text":"How often?"}]}`
	final := `{"type":"artifact","title":"Inventory sync","summary":"Sync stock nightly","status":"final","end_token":"` +
		taskfinisher.EndToken + `"}`
	srv, hits := scriptedServer(t, batch, final)

	s, out, _ := newTestSession(t, srv.URL, "nightly\n")
	require.NoError(t, s.runTaskFinisher(context.Background(), "Sync inventory"))
	assert.Equal(t, int32(2), hits.Load())

	var got model.FinalArtifact
	require.NoError(t, json.Unmarshal(out.Bytes()[bytes.Index(out.Bytes(), []byte("{\n")):], &got))
	assert.Equal(t, "Inventory sync", got.Title)
	assert.Equal(t, taskfinisher.EndToken, got.EndToken)
}

func TestRunTaskFinisherAbortExitsNonZero(t *testing.T) {
	batch := `{"questions":[{"id":"q1","text":"How often?"}]}`
	srv, hits := scriptedServer(t, batch)

	s, _, _ := newTestSession(t, srv.URL, "/abort\n")
	err := s.runTaskFinisher(context.Background(), "Sync inventory")
	require.ErrorIs(t, err, taskfinisher.ErrUserAborted)
	assert.Equal(t, int32(1), hits.Load())

	var stderr bytes.Buffer
	assert.Equal(t, 1, exitCode(err, false, &stderr))
	assert.Contains(t, stderr.String(), "Dialogue aborted")
}

func TestRunTaskFinisherRequiresSeed(t *testing.T) {
	s, _, _ := newTestSession(t, "http://127.0.0.1:0", "")
	err := s.runTaskFinisher(context.Background(), "  ")
	assert.Equal(t, ai.KindConfig, ai.KindOf(err))
}

func TestRunLineLoop(t *testing.T) {
	srv, hits := scriptedServer(t, `{"title":"Go","description":"A language","content":"Details"}`)
	s, out, _ := newTestSession(t, srv.URL, "What is Go?\n\n/history\n/quit\nnever sent\n")

	require.NoError(t, s.runLineLoop(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, out.String(), `"title": "Go"`)
	assert.Contains(t, out.String(), "1 request(s)")
}

func TestRunLineLoopKeepsGoingAfterErrors(t *testing.T) {
	srv, hits := scriptedServer(t, `not json`, `{"title":"Go","description":"D","content":"C"}`)
	s, out, errOut := newTestSession(t, srv.URL, "first\nsecond\n")

	require.NoError(t, s.runLineLoop(context.Background()), "end of input ends the loop")
	assert.Equal(t, int32(2), hits.Load())
	assert.Contains(t, errOut.String(), "Failed to parse server response")
	assert.Contains(t, out.String(), `"title": "Go"`)
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, exitCode(nil, false, &stderr))
	assert.Equal(t, 130, exitCode(ai.Canceled(context.Canceled), false, &stderr))
	assert.Equal(t, 130, exitCode(errors.New("closing journal"), true, &stderr))
	assert.Empty(t, stderr.String())

	assert.Equal(t, 1, exitCode(&ai.Error{Kind: ai.KindAPI, StatusCode: 401, Detail: "invalid key"}, false, &stderr))
	assert.Contains(t, stderr.String(), "API error (401)")
}

func TestApplyFlagsOnlyOverridesChangedFlags(t *testing.T) {
	saved := modelName
	t.Cleanup(func() { modelName = saved })

	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&modelName, "model", model.DefaultModel, "")
	cmd.Flags().Float64Var(&temperature, "temperature", model.DefaultTemperature, "")
	require.NoError(t, cmd.ParseFlags([]string{"--model", "deepseek-reasoner"}))

	c := model.DefaultAppConfig()
	c.API.Temperature = 1.3
	applyFlags(cmd, c)

	assert.Equal(t, "deepseek-reasoner", c.API.Model)
	assert.InDelta(t, 1.3, c.API.Temperature, 1e-9, "unset flags keep file and env values")
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("info", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud", false)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestAuthSource(t *testing.T) {
	assert.Equal(t, "API key: DEEPSEEK_API_KEY (****cdef)", authSource("sk-abcdef", "sk-stored"))
	assert.Equal(t, "API key: system keyring (****ored)", authSource("", "sk-stored"))
	assert.Contains(t, authSource("", ""), "not configured")
	assert.Equal(t, "****", maskKey("abc"))
}

func TestPrintConfig(t *testing.T) {
	var buf bytes.Buffer
	printConfig(&buf, "/tmp/config.yaml", model.DefaultAppConfig())

	got := buf.String()
	assert.Contains(t, got, "config file:       /tmp/config.yaml")
	assert.Contains(t, got, "api key:           (not set)")
	assert.Contains(t, got, "timeout:           3m0s")
	assert.Contains(t, got, "max questions:     3")
}
