package taskfinisher

import (
	"fmt"
	"strings"
)

// EndToken is the sentinel a final artifact must carry.
const EndToken = "【END】"

// Console commands recognized while answering questions. Matching is
// case-insensitive on the trimmed line.
const (
	CommandProceed = "/proceed"
	CommandAbort   = "/abort"
	CommandQuit    = "/quit"
	CommandExit    = "/exit"
)

// ForcedFinalizationInstruction is sent when the round cap is reached or
// the user asks to proceed.
const ForcedFinalizationInstruction = "Finalize now. Do not ask more questions. " +
	"Return the final artifact with \"status\":\"final\" and \"end_token\":\"" + EndToken + "\". " +
	"Record anything still unknown as labeled assumptions and open_questions."

const seedTemplate = "Describe the result to collect and provide the answer accordingly. " +
	"Example domain: technical specifications. User request: %s"

const systemPromptTemplate = `You are TaskFinisher-JSON.

OPERATING MODE
- You must reply with a SINGLE valid JSON object, no extra text, no Markdown fences.
- Allowed top-level JSON "type" values:
  1) "clarifying_questions" when you need up to MAX_QUESTIONS answers.
  2) "artifact" for the final deliverable.
- Ask at most MAX_QUESTIONS rounds of clarifying questions in total.

DEFINITION OF DONE
- Produce an "artifact" object that fulfills the required schema fields (see ARTIFACT SHAPE below).
- If information is missing after your questions or the user says "proceed", finalize anyway with minimal, labeled assumptions in "assumptions" and any remaining items in "open_questions".

SELF-STOP RULE
- When you output the final "artifact", include "status":"final" and "end_token":"%[2]s".
- After that, STOP. Do not send more messages.

FORMAT RULES
- Strict JSON (RFC 8259): double quotes, no comments, no trailing commas.
- Use concise, unambiguous language.

CLARIFYING QUESTIONS SHAPE
{
  "type": "clarifying_questions",
  "status": "asking",
  "turn": <integer>,
  "max_questions": <integer>,
  "questions": [
    { "id": "q1", "text": "<question>", "required": true, "options": ["<opt1>", "<opt2>"] },
    ...
  ],
  "checklist": [
    { "field": "<required_field_name>", "status": "missing|partial|complete" },
    ...
  ],
  "next_action": "await_user"
}

ARTIFACT SHAPE (Technical Task JSON)
{
  "type": "artifact",
  "artifact_name": "technical_task",
  "version": "1.0",
  "title": "<string>",
  "summary": "<string>",
  "stakeholders": [ { "role": "<string>", "description": "<string>" } ],
  "scope": { "in_scope": ["<string>"], "out_of_scope": ["<string>"] },
  "requirements": {
    "functional": [ { "id": "FR1", "statement": "<string>", "rationale": "<string>" } ],
    "non_functional": [ { "id": "NFR1", "category": "<e.g., performance>", "target": "<string>" } ]
  },
  "data_integrations": { "<name>": "<free-form object>" },
  "constraints": ["<string>"],
  "assumptions": ["<string>"],
  "risks": [ { "id": "R1", "description": "<string>", "mitigation": "<string>" } ],
  "milestones": [ { "id": "M1", "name": "<string>", "deliverables": ["<string>"] } ],
  "acceptance_criteria": [ { "id": "AC1", "given": "<string>", "when": "<string>", "then": "<string>" } ],
  "open_questions": ["<string>"],
  "status": "final",
  "end_token": "%[2]s"
}

IMPORTANT
- When you ask questions, include a concise checklist of required fields and their completion status.
- The user replies with a JSON payload of the form {"answers": [{"id":"q1", "answer":"..."}]}.
  Unanswered questions are omitted. Proceed to the final artifact unless critical information is still missing.
- If the payload carries an "instruction" field, follow it.

CONFIG
- MAX_QUESTIONS = %[1]d
`

// BuildSystemPrompt returns the system instruction for a dialogue capped at
// maxRounds clarifying rounds.
func BuildSystemPrompt(maxRounds int) string {
	return fmt.Sprintf(systemPromptTemplate, maxRounds, EndToken)
}

// WrapSeed frames the user's request as the first user message.
func WrapSeed(prompt string) string {
	return fmt.Sprintf(seedTemplate, strings.TrimSpace(prompt))
}

// Command classifies a console line.
type Command int

const (
	CommandNone Command = iota
	CommandSkip
	CommandProceedNow
	CommandAbortNow
)

// ParseCommand reports which control command, if any, line represents.
func ParseCommand(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return CommandSkip
	}
	switch strings.ToLower(trimmed) {
	case CommandProceed:
		return CommandProceedNow
	case CommandAbort, CommandQuit, CommandExit:
		return CommandAbortNow
	default:
		return CommandNone
	}
}
