package taskfinisher

import "github.com/nhle/deepseek-json/internal/model"

// RoundCeiling is the hard limit on clarifying rounds regardless of
// configuration.
const RoundCeiling = 5

// Phase is the controller's position in the dialogue.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAwaitingAnswer
	PhaseFinalizing
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseAwaitingAnswer:
		return "awaiting_answer"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// ClampMaxQuestions returns the effective round cap for a configured
// max_questions value: 0 or less selects the default, anything above
// RoundCeiling is reduced to it.
func ClampMaxQuestions(n int) int {
	if n <= 0 {
		n = model.DefaultMaxQuestions
	}
	return min(n, RoundCeiling)
}

// State is the dialogue state owned by a single Controller.
type State struct {
	Round     int
	MaxRounds int
	History   *History
	Phase     Phase
}

func newState(maxQuestions int) *State {
	return &State{
		MaxRounds: ClampMaxQuestions(maxQuestions),
		History:   NewHistory(),
		Phase:     PhaseInit,
	}
}
