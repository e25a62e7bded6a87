package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhle/deepseek-json/internal/model"
)

// Mode selects the shapes the parser accepts when no discriminant is present.
type Mode int

const (
	// ModeQuery accepts a flat StructuredArtifact as a fallback.
	ModeQuery Mode = iota
	// ModeTaskFinisher only accepts clarifying batches and final artifacts.
	ModeTaskFinisher
)

// ResponseKind identifies which variant a Response holds.
type ResponseKind int

const (
	ResponseArtifact ResponseKind = iota + 1
	ResponseBatch
	ResponseFinal
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseArtifact:
		return "artifact"
	case ResponseBatch:
		return "clarifying_questions"
	case ResponseFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Response is a decoded assistant reply. Exactly one of Artifact, Batch or
// Final is set, matching Kind.
type Response struct {
	Kind     ResponseKind
	Artifact *model.StructuredArtifact
	Batch    *model.ClarifyingBatch
	Final    *model.FinalArtifact
	Raw      string
}

// Parse decodes raw assistant text. JSON syntax errors and payloads missing
// a required field are both KindParse errors with a snippet of raw.
func Parse(raw string, mode Mode) (*Response, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, NewParseError("empty response", "", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, NewParseError("invalid JSON", text, err)
	}

	switch {
	case isFinal(fields):
		final, err := parseFinal(text, fields)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseFinal, Final: final, Raw: raw}, nil

	case isBatch(fields):
		batch, err := parseBatch(text, fields)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseBatch, Batch: batch, Raw: raw}, nil

	case mode == ModeQuery:
		artifact, err := parseArtifact(text, fields)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseArtifact, Artifact: artifact, Raw: raw}, nil

	default:
		return nil, NewParseError("response is neither clarifying questions nor a final artifact", text, nil)
	}
}

func isFinal(fields map[string]json.RawMessage) bool {
	if _, ok := fields["end_token"]; ok {
		return true
	}
	return stringField(fields, "status") == model.FinalStatus ||
		stringField(fields, "type") == "artifact"
}

func isBatch(fields map[string]json.RawMessage) bool {
	if _, ok := fields["questions"]; ok {
		return true
	}
	return stringField(fields, "type") == "clarifying_questions"
}

func parseFinal(text string, fields map[string]json.RawMessage) (*model.FinalArtifact, error) {
	if err := requireStrings(text, fields, "title", "summary", "status", "end_token"); err != nil {
		return nil, err
	}

	var final model.FinalArtifact
	if err := json.Unmarshal([]byte(text), &final); err != nil {
		return nil, NewParseError("decoding final artifact", text, err)
	}
	if final.Status != model.FinalStatus {
		return nil, NewParseError(fmt.Sprintf("final artifact has status %q", final.Status), text, nil)
	}
	final.Raw = text
	return &final, nil
}

func parseBatch(text string, fields map[string]json.RawMessage) (*model.ClarifyingBatch, error) {
	raw, ok := fields["questions"]
	if !ok || isNull(raw) {
		return nil, NewParseError("missing required field \"questions\"", text, nil)
	}

	var batch model.ClarifyingBatch
	if err := json.Unmarshal([]byte(text), &batch); err != nil {
		return nil, NewParseError("decoding clarifying questions", text, err)
	}
	if len(batch.Questions) == 0 {
		return nil, NewParseError("clarifying batch has no questions", text, nil)
	}
	for i, q := range batch.Questions {
		if strings.TrimSpace(string(q.ID)) == "" {
			return nil, NewParseError(fmt.Sprintf("question %d has no id", i+1), text, nil)
		}
		if strings.TrimSpace(q.Text) == "" {
			return nil, NewParseError(fmt.Sprintf("question %s has no text", q.ID), text, nil)
		}
	}

	switch batch.Status {
	case "":
		batch.Status = model.BatchStatusAsking
	case model.BatchStatusAsking:
	default:
		return nil, NewParseError(fmt.Sprintf("clarifying batch has status %q", batch.Status), text, nil)
	}
	return &batch, nil
}

func parseArtifact(text string, fields map[string]json.RawMessage) (*model.StructuredArtifact, error) {
	if err := requireStrings(text, fields, "title", "description", "content"); err != nil {
		return nil, err
	}

	var artifact model.StructuredArtifact
	if err := json.Unmarshal([]byte(text), &artifact); err != nil {
		return nil, NewParseError("decoding artifact", text, err)
	}
	return &artifact, nil
}

// requireStrings checks that every name is present as a JSON string.
func requireStrings(text string, fields map[string]json.RawMessage, names ...string) error {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			return NewParseError(fmt.Sprintf("missing required field %q", name), text, nil)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return NewParseError(fmt.Sprintf("field %q must be a string", name), text, nil)
		}
	}
	return nil
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
