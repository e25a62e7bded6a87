package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/taskfinisher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestConsole(input string, opts ...Option) (*Console, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(strings.NewReader(input), &out, &errOut, opts...), &out, &errOut
}

func TestLinePrompterReadsLines(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("first\r\nsecond\nlast"), &out)
	ctx := context.Background()

	line, err := p.Prompt(ctx, Prompt{Title: "q1:"})
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = p.Prompt(ctx, Prompt{Title: "q2:", Description: "How often?", Suggestions: []string{"daily"}})
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	line, err = p.Prompt(ctx, Prompt{Title: "q3:"})
	require.NoError(t, err)
	assert.Equal(t, "last", line, "an unterminated final line is still returned")

	_, err = p.Prompt(ctx, Prompt{Title: "q4:"})
	assert.ErrorIs(t, err, io.EOF)

	assert.Contains(t, out.String(), "q1:")
	assert.Contains(t, out.String(), "How often?")
	assert.Contains(t, out.String(), "options: daily")
}

func TestLinePrompterCancelResumesPendingRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	p := NewLinePrompter(pr, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := p.Prompt(ctx, Prompt{Title: "q1:"})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, ai.IsCanceled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Prompt did not return after cancellation")
	}

	go func() {
		_, _ = io.WriteString(pw, "late answer\n")
		_ = pw.Close()
	}()

	line, err := p.Prompt(context.Background(), Prompt{Title: "q1:"})
	require.NoError(t, err)
	assert.Equal(t, "late answer", line)
}

func TestAskTreatsEOFAsProceed(t *testing.T) {
	c, _, _ := newTestConsole("")

	line, err := c.Ask(context.Background(), model.ClarifyingQuestion{ID: "q1", Text: "Which region?"})
	require.NoError(t, err)
	assert.Equal(t, taskfinisher.CommandProceed, line)
}

func TestAskReturnsRawLine(t *testing.T) {
	c, out, _ := newTestConsole("eu-west\n")

	line, err := c.Ask(context.Background(), model.ClarifyingQuestion{ID: "q1", Text: "Which region?"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west", line)
	assert.Contains(t, out.String(), "Which region?")
}

func TestDisplayErrorSkipsCancellation(t *testing.T) {
	c, _, errOut := newTestConsole("")

	c.DisplayError(ai.Canceled(nil))
	c.DisplayError(context.Canceled)
	assert.Empty(t, errOut.String())

	c.DisplayError(&ai.Error{Kind: ai.KindAPI, StatusCode: 401, Detail: "Authentication Fails"})
	assert.Contains(t, errOut.String(), "API error (401)")
	assert.Contains(t, errOut.String(), "DEEPSEEK_API_KEY")
}

func TestGuidanceFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		tip     string
	}{
		{"rate limited", &ai.Error{Kind: ai.KindServerBusy, StatusCode: 429}, "Rate limit", "server load"},
		{"unavailable", &ai.Error{Kind: ai.KindServerBusy, StatusCode: 503}, "temporarily unavailable", ""},
		{"gateway", &ai.Error{Kind: ai.KindServerBusy, StatusCode: 502}, "gateway", ""},
		{"network", &ai.Error{Kind: ai.KindNetwork, Detail: "connection refused by server"}, "connection refused", "firewall"},
		{"timeout", &ai.Error{Kind: ai.KindTimeout, Timeout: 180 * time.Second}, "180 seconds", "--timeout"},
		{"forbidden", &ai.Error{Kind: ai.KindAPI, StatusCode: 403}, "403", "permissions"},
		{"api 429", &ai.Error{Kind: ai.KindAPI, StatusCode: 429}, "429", "rate limit"},
		{"parse", ai.NewParseError("invalid JSON", "{", nil), "invalid JSON", "rephrasing"},
		{"config", ai.NewConfigError(errors.New("API key cannot be empty")), "API key cannot be empty", "configuration"},
		{"aborted", taskfinisher.ErrUserAborted, "aborted", ""},
		{"plain", errors.New("disk full"), "disk full", "--verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := GuidanceFor(tt.err)
			require.True(t, ok)
			assert.Contains(t, g.Message, tt.message)
			if tt.tip != "" {
				assert.Contains(t, g.Tip, tt.tip)
			}
		})
	}

	_, ok := GuidanceFor(nil)
	assert.False(t, ok)
}

func TestDisplayArtifactFormats(t *testing.T) {
	category := "programming"
	confidence := 0.92
	artifact := &model.StructuredArtifact{
		Title:       "Go",
		Description: "A language",
		Content:     "Compiled and concurrent.",
		Category:    &category,
		Confidence:  &confidence,
	}

	pretty, out, _ := newTestConsole("")
	require.NoError(t, pretty.DisplayArtifact(artifact))
	assert.Contains(t, out.String(), "Go")
	assert.Contains(t, out.String(), "Compiled and concurrent.")
	assert.Contains(t, out.String(), "programming")
	assert.Contains(t, out.String(), "0.92")

	jsonConsole, jsonOut, _ := newTestConsole("", WithFormat(FormatJSON))
	require.NoError(t, jsonConsole.DisplayArtifact(artifact))

	var decoded model.StructuredArtifact
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	assert.Equal(t, *artifact.Category, *decoded.Category)
	assert.Nil(t, decoded.Timestamp)
}

func TestRenderFinal(t *testing.T) {
	final := &model.FinalArtifact{
		ArtifactName: "technical_task",
		Version:      "1.0",
		Title:        "Inventory sync",
		Summary:      "Nightly stock sync",
		Scope:        model.Scope{InScope: []string{"warehouse A"}, OutOfScope: []string{"returns"}},
		Requirements: model.Requirements{
			Functional: []model.FunctionalRequirement{{ID: "FR1", Statement: "Sync nightly", Rationale: "cheap"}},
		},
		DataIntegrations: map[string]any{"erp": "sap"},
		OpenQuestions:    []string{"Which timezone?"},
		Status:           model.FinalStatus,
		EndToken:         taskfinisher.EndToken,
	}

	s := RenderFinal(final)
	for _, want := range []string{
		"Inventory sync", "technical_task v1.0", "warehouse A", "returns",
		"FR1", "rationale: cheap", "erp", "sap", "Which timezone?", "(none)", taskfinisher.EndToken,
	} {
		assert.Contains(t, s, want)
	}
}

func TestRenderBatch(t *testing.T) {
	batch := &model.ClarifyingBatch{
		Questions: []model.ClarifyingQuestion{
			{ID: "q1", Text: "Which warehouse?", Required: true, Options: []string{"A", "B"}},
		},
		Checklist: []model.ChecklistItem{{Field: "scope", Status: "missing"}},
	}

	s := RenderBatch(batch, 1, 3)
	assert.Contains(t, s, "round 1 of 3")
	assert.Contains(t, s, "Which warehouse?")
	assert.Contains(t, s, "options: A, B")
	assert.Contains(t, s, "[missing]")
	assert.Contains(t, s, taskfinisher.CommandProceed)
}

func TestRenderHistory(t *testing.T) {
	assert.Contains(t, RenderHistory(nil, model.JournalSummary{}), "No requests yet")

	s := RenderHistory([]model.Exchange{{
		Label:     "query",
		Outcome:   model.OutcomeOK,
		Attempts:  2,
		Latency:   1500 * time.Millisecond,
		CreatedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}}, model.JournalSummary{Exchanges: 1, Attempts: 2, Latency: 1500 * time.Millisecond})

	assert.Contains(t, s, "09:30:00")
	assert.Contains(t, s, "query")
	assert.Contains(t, s, "2 attempt(s), 1.5s")
	assert.Contains(t, s, "1 request(s)")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

func TestStatusRespectsQuiet(t *testing.T) {
	loud, _, loudErr := newTestConsole("")
	loud.Status("Sending request...")
	assert.Contains(t, loudErr.String(), "Sending request...")

	quiet, _, quietErr := newTestConsole("", Quiet())
	quiet.Status("Sending request...")
	assert.Empty(t, quietErr.String())
}
