package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StructuredArtifact is the flat JSON object returned in single-query mode.
type StructuredArtifact struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    *string  `json:"category,omitempty"`
	Timestamp   *string  `json:"timestamp,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// QuestionID identifies a clarifying question. The service may send either
// a string ("q1") or an ordinal (1); both decode to the string form.
type QuestionID string

// UnmarshalJSON accepts a JSON string or number.
func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("question id %q is not numeric: %w", n, err)
	}
	*id = QuestionID(n.String())
	return nil
}

// ClarifyingQuestion is one question asked before a final artifact.
type ClarifyingQuestion struct {
	ID       QuestionID `json:"id"`
	Text     string     `json:"text"`
	Required bool       `json:"required,omitempty"`
	Options  []string   `json:"options,omitempty"`
}

// ChecklistItem reports the completion status of one required artifact field.
type ChecklistItem struct {
	Field  string `json:"field"`
	Status string `json:"status"` // missing | partial | complete
}

// BatchStatusAsking is the only status a clarifying batch may carry.
const BatchStatusAsking = "asking"

// ClarifyingBatch is an ordered set of questions the service wants answered.
type ClarifyingBatch struct {
	Type         string               `json:"type,omitempty"`
	Status       string               `json:"status"`
	Turn         int                  `json:"turn,omitempty"`
	MaxQuestions int                  `json:"max_questions,omitempty"`
	Questions    []ClarifyingQuestion `json:"questions"`
	Checklist    []ChecklistItem      `json:"checklist,omitempty"`
	NextAction   string               `json:"next_action,omitempty"`
}

// FinalStatus marks a final artifact.
const FinalStatus = "final"

// Stakeholder is a party with an interest in the task.
type Stakeholder struct {
	Role        string `json:"role"`
	Description string `json:"description"`
}

// Scope splits work into what is and is not included.
type Scope struct {
	InScope    []string `json:"in_scope"`
	OutOfScope []string `json:"out_of_scope"`
}

// FunctionalRequirement is a single "the system shall" statement.
type FunctionalRequirement struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	Rationale string `json:"rationale,omitempty"`
}

// NonFunctionalRequirement is a quality target such as latency or uptime.
type NonFunctionalRequirement struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Target   string `json:"target"`
}

// Requirements groups functional and non-functional requirements.
type Requirements struct {
	Functional    []FunctionalRequirement    `json:"functional"`
	NonFunctional []NonFunctionalRequirement `json:"non_functional"`
}

// Risk is a known risk with its mitigation.
type Risk struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
}

// Milestone is a named delivery checkpoint.
type Milestone struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Deliverables []string `json:"deliverables"`
}

// AcceptanceCriterion is a Given/When/Then check.
type AcceptanceCriterion struct {
	ID    string `json:"id"`
	Given string `json:"given"`
	When  string `json:"when"`
	Then  string `json:"then"`
}

// FinalArtifact is the technical-task document that ends a TaskFinisher
// dialogue. Status must equal FinalStatus and EndToken the expected sentinel.
type FinalArtifact struct {
	Type               string                `json:"type,omitempty"`
	ArtifactName       string                `json:"artifact_name,omitempty"`
	Version            string                `json:"version,omitempty"`
	Title              string                `json:"title"`
	Summary            string                `json:"summary"`
	Stakeholders       []Stakeholder         `json:"stakeholders,omitempty"`
	Scope              Scope                 `json:"scope"`
	Requirements       Requirements          `json:"requirements"`
	DataIntegrations   map[string]any        `json:"data_integrations,omitempty"`
	Constraints        []string              `json:"constraints,omitempty"`
	Assumptions        []string              `json:"assumptions,omitempty"`
	Risks              []Risk                `json:"risks,omitempty"`
	Milestones         []Milestone           `json:"milestones,omitempty"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria,omitempty"`
	OpenQuestions      []string              `json:"open_questions,omitempty"`
	Status             string                `json:"status"`
	EndToken           string                `json:"end_token"`

	// Raw is the assistant text the artifact was decoded from.
	Raw string `json:"-"`
}

// AnswerItem is the user's answer to one clarifying question.
type AnswerItem struct {
	ID     QuestionID `json:"id"`
	Answer string     `json:"answer"`
}

// AnswersPayload is sent back to the service after a clarifying round.
type AnswersPayload struct {
	Answers     []AnswerItem `json:"answers"`
	Instruction string       `json:"instruction,omitempty"`
}
