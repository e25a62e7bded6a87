package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/console"
	"github.com/nhle/deepseek-json/internal/keys"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/store"
	"github.com/nhle/deepseek-json/internal/taskfinisher"
	"github.com/nhle/deepseek-json/internal/ui/chat"
)

// session is one run of the tool: an engine, the console it reports to
// and the in-memory journal of every request sent.
type session struct {
	id       string
	cfg      *model.AppConfig
	console  *console.Console
	engine   *ai.Engine
	journal  *store.SQLiteStore
	settings ai.RequestSettings
	logger   *zap.Logger
}

// newSession wires the HTTP client, retry policy and journal for cfg.
func newSession(cfg *model.AppConfig, con *console.Console, logger *zap.Logger) (*session, error) {
	journal, err := store.NewSQLiteStore(store.MemoryDSN)
	if err != nil {
		return nil, fmt.Errorf("opening session journal: %w", err)
	}

	client := ai.NewClient(cfg.APIKey, cfg.API.BaseURL, cfg.Timeout())
	id := uuid.NewString()
	policy := ai.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Retry.MaxAttempts
	policy.BaseDelay = cfg.BaseDelay()

	return &session{
		id:       id,
		cfg:      cfg,
		console:  con,
		engine:   ai.NewEngine(client, policy, ai.WithLogger(logger), ai.WithRecorder(journal, id)),
		journal:  journal,
		settings: ai.SettingsFromConfig(cfg),
		logger:   logger.With(zap.String("session", id)),
	}, nil
}

// Close logs the journal summary and releases the journal.
func (s *session) Close() error {
	summary, err := s.journal.GetSummary(context.Background(), s.id)
	if err == nil {
		s.logger.Debug("session summary",
			zap.Int("requests", summary.Exchanges),
			zap.Int("attempts", summary.Attempts),
			zap.Int("failures", summary.Failures),
			zap.Duration("latency", summary.Latency),
		)
	}
	return s.journal.Close()
}

// runQuery answers a single query.
func (s *session) runQuery(ctx context.Context, q string) error {
	s.console.Status("Sending request to DeepSeek...")
	artifact, err := s.engine.Ask(ctx, s.settings, q)
	if err != nil {
		return err
	}
	return s.console.DisplayArtifact(artifact)
}

// runTaskFinisher drives the clarification dialogue for seed, prompting
// for it when empty.
func (s *session) runTaskFinisher(ctx context.Context, seed string) error {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		line, err := s.console.ReadLine(ctx, "Describe the task:")
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		seed = strings.TrimSpace(line)
	}
	if seed == "" {
		return ai.NewConfigError(errors.New("task description cannot be empty"))
	}

	ctrl := taskfinisher.New(s.engine, s.console, s.settings, s.cfg.TaskFinisher.MaxQuestions,
		taskfinisher.WithLogger(s.logger))
	res, err := ctrl.Run(ctx, seed)
	if err != nil {
		return err
	}

	s.logger.Debug("taskfinisher finished", zap.Int("rounds", res.Rounds))
	return s.console.DisplayFinal(res.Artifact)
}

// runInteractive reads queries until /quit, /exit or end of input. The
// chat view is used on a terminal with pretty output.
func (s *session) runInteractive(ctx context.Context) error {
	if s.console.Format() == console.FormatPretty &&
		console.IsTerminal(os.Stdin) && console.IsTerminal(os.Stdout) {
		return s.runChatView(ctx)
	}
	return s.runLineLoop(ctx)
}

func (s *session) ask(ctx context.Context, q string) (*model.StructuredArtifact, error) {
	return s.engine.Ask(ctx, s.settings, q)
}

// history renders the journal of this session.
func (s *session) history(ctx context.Context) (string, error) {
	exchanges, err := s.journal.GetExchanges(ctx, store.ExchangeFilter{SessionID: s.id})
	if err != nil {
		return "", err
	}
	summary, err := s.journal.GetSummary(ctx, s.id)
	if err != nil {
		return "", err
	}
	return console.RenderHistory(exchanges, summary), nil
}

func (s *session) runChatView(ctx context.Context) error {
	m := chat.New(ctx, chat.AskFunc(s.ask), s.history, keys.DefaultKeyMap(), 100, 30)

	// Signals stay with the interrupt source; its cancellation stops the program.
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	_, err := p.Run()
	if ctx.Err() != nil {
		return ai.Canceled(ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("running chat view: %w", err)
	}

	s.console.Println(console.RenderGoodbye())
	return nil
}

func (s *session) runLineLoop(ctx context.Context) error {
	if s.console.Format() == console.FormatPretty {
		s.console.Println(console.RenderWelcome())
	}

	for {
		line, err := s.console.ReadLine(ctx, "Query:")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "/quit", "/exit":
			if s.console.Format() == console.FormatPretty {
				s.console.Println(console.RenderGoodbye())
			}
			return nil
		case "/history":
			h, err := s.history(ctx)
			if err != nil {
				return err
			}
			s.console.Println(h)
			continue
		}

		s.console.Status("Sending request to DeepSeek...")
		artifact, err := s.ask(ctx, line)
		if err != nil {
			if ai.IsCanceled(err) {
				return err
			}
			s.console.DisplayError(err)
			continue
		}
		if err := s.console.DisplayArtifact(artifact); err != nil {
			return err
		}
	}
}
