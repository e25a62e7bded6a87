package taskfinisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/model"
)

// ErrUserAborted is returned when the user enters the abort command while
// answering questions.
var ErrUserAborted = errors.New("aborted by user")

// Sender performs one logical chat-completion call, retries included.
type Sender interface {
	Send(ctx context.Context, req model.ChatRequest) (string, error)
}

// Console is the user-facing side of the dialogue.
type Console interface {
	// ShowBatch displays a clarifying batch before its questions are asked.
	ShowBatch(batch *model.ClarifyingBatch, round, maxRounds int)

	// Ask reads one line of input for q. It must return promptly with an
	// error once ctx is done.
	Ask(ctx context.Context, q model.ClarifyingQuestion) (string, error)

	// Status reports progress such as "sending request".
	Status(msg string)
}

// Result is the outcome of a completed dialogue.
type Result struct {
	Artifact *model.FinalArtifact
	Rounds   int
}

// Controller drives one TaskFinisher dialogue from seed prompt to final
// artifact. A Controller is single-use.
type Controller struct {
	sender   Sender
	console  Console
	settings ai.RequestSettings
	logger   *zap.Logger
	state    *State
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a controller capped at ClampMaxQuestions(maxQuestions) rounds.
func New(
	sender Sender,
	console Console,
	settings ai.RequestSettings,
	maxQuestions int,
	opts ...Option,
) *Controller {
	c := &Controller{
		sender:   sender,
		console:  console,
		settings: settings,
		logger:   zap.NewNop(),
		state:    newState(maxQuestions),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.state.Phase
}

// Round returns the number of completed clarifying rounds.
func (c *Controller) Round() int {
	return c.state.Round
}

// MaxRounds returns the effective round cap.
func (c *Controller) MaxRounds() int {
	return c.state.MaxRounds
}

// Run executes the dialogue for seed. It returns the final artifact when
// the phase reaches Done; any other outcome leaves the phase Aborted and
// returns the cause. Cancellation is reported as an ai.KindCanceled error
// and user abort as ErrUserAborted.
func (c *Controller) Run(ctx context.Context, seed string) (*Result, error) {
	switch p := c.state.Phase; {
	case p.Terminal():
		return nil, fmt.Errorf("controller already finished (phase %s)", p)
	case p != PhaseInit:
		return nil, fmt.Errorf("controller already running (phase %s)", p)
	}

	st := c.state
	st.History.Append(model.RoleSystem, BuildSystemPrompt(st.MaxRounds))
	st.History.Append(model.RoleUser, WrapSeed(seed))

	forced := false
	for {
		label := fmt.Sprintf("taskfinisher round %d", st.Round)
		if forced {
			label = "taskfinisher finalize"
		}

		resp, err := c.exchange(ctx, label)
		if err != nil {
			return nil, c.abort(ctx, err)
		}

		switch resp.Kind {
		case ai.ResponseFinal:
			if err := checkFinal(resp.Final); err != nil {
				return nil, c.abort(ctx, err)
			}
			c.transition(PhaseDone)
			return &Result{Artifact: resp.Final, Rounds: st.Round}, nil

		case ai.ResponseBatch:
			if forced {
				return nil, c.abort(ctx, ai.NewParseError(
					"expected a final artifact after forced finalization", resp.Raw, nil))
			}

			if st.Round >= st.MaxRounds {
				c.transition(PhaseFinalizing)
				st.History.Append(model.RoleAssistant, resp.Raw)
				payload := model.AnswersPayload{
					Answers:     []model.AnswerItem{},
					Instruction: ForcedFinalizationInstruction,
				}
				if err := st.History.AppendJSON(model.RoleUser, payload); err != nil {
					return nil, c.abort(ctx, err)
				}
				forced = true
				continue
			}

			proceed, err := c.answerBatch(ctx, resp)
			if err != nil {
				return nil, c.abort(ctx, err)
			}
			if proceed {
				c.transition(PhaseFinalizing)
				forced = true
			}

		default:
			return nil, c.abort(ctx, ai.NewParseError(
				fmt.Sprintf("unexpected %s response", resp.Kind), resp.Raw, nil))
		}
	}
}

// exchange sends the current history and parses the reply.
func (c *Controller) exchange(ctx context.Context, label string) (*ai.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, ai.Canceled(err)
	}

	c.console.Status("Sending TaskFinisher request...")
	text, err := c.sender.Send(ctx, c.settings.Request(label, c.state.History.Messages()))
	if err != nil {
		return nil, err
	}
	return ai.Parse(text, ai.ModeTaskFinisher)
}

// answerBatch asks every question of the batch in order and appends the
// collected answers to the history. It reports whether the user asked to
// proceed to finalization.
func (c *Controller) answerBatch(ctx context.Context, resp *ai.Response) (bool, error) {
	st := c.state
	c.transition(PhaseAwaitingAnswer)
	c.console.ShowBatch(resp.Batch, st.Round+1, st.MaxRounds)

	payload := model.AnswersPayload{Answers: []model.AnswerItem{}}
	proceed := false

questions:
	for _, q := range resp.Batch.Questions {
		if err := ctx.Err(); err != nil {
			return false, ai.Canceled(err)
		}

		line, err := c.console.Ask(ctx, q)
		if err != nil {
			return false, err
		}

		switch ParseCommand(line) {
		case CommandSkip:
			continue
		case CommandAbortNow:
			return false, ErrUserAborted
		case CommandProceedNow:
			proceed = true
			break questions
		default:
			payload.Answers = append(payload.Answers, model.AnswerItem{
				ID:     q.ID,
				Answer: strings.TrimSpace(line),
			})
		}
	}

	if proceed {
		payload.Instruction = ForcedFinalizationInstruction
	}

	st.History.Append(model.RoleAssistant, resp.Raw)
	if err := st.History.AppendJSON(model.RoleUser, payload); err != nil {
		return false, err
	}
	st.Round++

	c.logger.Debug("clarifying round answered",
		zap.Int("round", st.Round),
		zap.Int("answered", len(payload.Answers)),
		zap.Int("asked", len(resp.Batch.Questions)),
		zap.Bool("proceed", proceed),
	)
	return proceed, nil
}

func (c *Controller) transition(to Phase) {
	if c.state.Phase == to {
		return
	}
	c.logger.Debug("taskfinisher phase",
		zap.Stringer("from", c.state.Phase),
		zap.Stringer("to", to),
		zap.Int("round", c.state.Round),
	)
	c.state.Phase = to
}

// abort moves to Aborted. Any failure observed after ctx is done is
// reported as cancellation.
func (c *Controller) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil && !ai.IsCanceled(err) {
		err = ai.Canceled(err)
	}
	c.transition(PhaseAborted)
	if !ai.IsCanceled(err) && !errors.Is(err, ErrUserAborted) {
		c.logger.Debug("taskfinisher aborted", zap.Error(err))
	}
	return err
}

func checkFinal(final *model.FinalArtifact) error {
	if final.Status != model.FinalStatus {
		return ai.NewParseError(fmt.Sprintf("final artifact has status %q", final.Status), final.Raw, nil)
	}
	if final.EndToken != EndToken {
		return ai.NewParseError(fmt.Sprintf("final artifact has end token %q", final.EndToken), final.Raw, nil)
	}
	return nil
}
