package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/deepseek-json/internal/model"
)

// QuerySystemPrompt is the system message for single-query requests.
const QuerySystemPrompt = "You are a helpful assistant that always responds with valid JSON in the specified format."

const queryFormatPrompt = `Please respond with a JSON object containing the following fields:
{
  "title": "A concise title for the topic (string)",
  "description": "A brief description or summary (string)",
  "content": "The main content or detailed response (string)",
  "category": "Optional category classification (string or null)",
  "timestamp": "Current response timestamp: %s (string)",
  "confidence": "Optional confidence score between 0.0 and 1.0 (number or null)"
}

Make sure to provide valid JSON format in your response. Use the provided timestamp as the current response time.
Do not include any other text or comments in your response.`

// RequestSettings are the per-request generation parameters.
type RequestSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// SettingsFromConfig extracts request settings from cfg.
func SettingsFromConfig(cfg *model.AppConfig) RequestSettings {
	return RequestSettings{
		Model:       cfg.API.Model,
		Temperature: cfg.API.Temperature,
		MaxTokens:   cfg.API.MaxTokens,
	}
}

// Request builds a JSON-forced chat request from messages.
func (s RequestSettings) Request(label string, messages []model.Message) model.ChatRequest {
	return model.ChatRequest{
		Model:       s.Model,
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		ForceJSON:   true,
		Label:       label,
	}
}

// BuildQueryRequest builds the single-query request for query, stamping
// the format instructions with now in RFC 3339.
func BuildQueryRequest(s RequestSettings, query string, now time.Time) model.ChatRequest {
	prompt := query + "\n\n" + fmt.Sprintf(queryFormatPrompt, now.UTC().Format(time.RFC3339))
	return s.Request("query", []model.Message{
		{Role: model.RoleSystem, Content: QuerySystemPrompt},
		{Role: model.RoleUser, Content: prompt},
	})
}

// Ask sends a single query and decodes the flat artifact.
func (e *Engine) Ask(ctx context.Context, s RequestSettings, query string) (*model.StructuredArtifact, error) {
	text, err := e.Send(ctx, BuildQueryRequest(s, query, e.now()))
	if err != nil {
		return nil, err
	}

	resp, err := Parse(text, ModeQuery)
	if err != nil {
		return nil, err
	}
	if resp.Kind != ResponseArtifact {
		return nil, NewParseError(fmt.Sprintf("expected a flat artifact, got %s", resp.Kind), text, nil)
	}
	return resp.Artifact, nil
}
