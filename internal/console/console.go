// Package console renders artifacts and errors and reads user answers.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/taskfinisher"
	"github.com/nhle/deepseek-json/internal/theme"
)

// Format selects how artifacts are printed.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPretty, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q (want %q or %q)", s, FormatPretty, FormatJSON)
	}
}

// Console is the terminal collaborator for every mode.
type Console struct {
	out      io.Writer
	errOut   io.Writer
	prompter Prompter
	format   Format
	quiet    bool
}

var _ taskfinisher.Console = (*Console)(nil)

// Option customizes a Console.
type Option func(*Console)

// WithFormat sets the artifact output format.
func WithFormat(f Format) Option {
	return func(c *Console) {
		c.format = f
	}
}

// Quiet suppresses progress messages.
func Quiet() Option {
	return func(c *Console) {
		c.quiet = true
	}
}

// New creates a console. Answers are read through a huh form when in and
// out are both terminals, otherwise line by line from in.
func New(in io.Reader, out, errOut io.Writer, opts ...Option) *Console {
	c := &Console{
		out:    out,
		errOut: errOut,
		format: FormatPretty,
	}
	if IsTerminal(in) && IsTerminal(out) {
		c.prompter = FormPrompter{Accessible: os.Getenv("ACCESSIBLE") != ""}
	} else {
		c.prompter = NewLinePrompter(in, out)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTerminal reports whether v is an *os.File attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Format returns the output format.
func (c *Console) Format() Format {
	return c.format
}

// ReadLine prompts for free text.
func (c *Console) ReadLine(ctx context.Context, title string) (string, error) {
	return c.prompter.Prompt(ctx, Prompt{Title: title})
}

// ReadSecret prompts for a value that is not echoed on a terminal.
func (c *Console) ReadSecret(ctx context.Context, title string) (string, error) {
	return c.prompter.Prompt(ctx, Prompt{Title: title, Secret: true})
}

// ShowBatch prints a clarifying batch.
func (c *Console) ShowBatch(b *model.ClarifyingBatch, round, maxRounds int) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderBatch(b, round, maxRounds))
}

// Ask reads the answer to q. Exhausted input is treated as a request to
// finalize with the answers collected so far.
func (c *Console) Ask(ctx context.Context, q model.ClarifyingQuestion) (string, error) {
	line, err := c.prompter.Prompt(ctx, Prompt{
		Title:       fmt.Sprintf("%s:", q.ID),
		Description: q.Text,
		Placeholder: "Enter to skip, " + taskfinisher.CommandProceed + " to finalize",
		Suggestions: q.Options,
	})
	if errors.Is(err, io.EOF) {
		return taskfinisher.CommandProceed, nil
	}
	return line, err
}

// Status prints a progress line to the error stream.
func (c *Console) Status(msg string) {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.errOut, theme.StatusStyle.Render(msg))
}

// Println writes a line to the output stream.
func (c *Console) Println(s string) {
	fmt.Fprintln(c.out, s)
}

// DisplayArtifact prints a single-query artifact.
func (c *Console) DisplayArtifact(a *model.StructuredArtifact) error {
	if c.format == FormatJSON {
		return c.displayJSON(a)
	}
	fmt.Fprintln(c.out, RenderArtifact(a))
	return nil
}

// DisplayFinal prints a technical-task artifact.
func (c *Console) DisplayFinal(f *model.FinalArtifact) error {
	if c.format == FormatJSON {
		return c.displayJSON(f)
	}
	fmt.Fprintln(c.out, RenderFinal(f))
	return nil
}

// DisplayError prints guidance for err to the error stream. Cancellation is
// never displayed.
func (c *Console) DisplayError(err error) {
	if s := RenderError(err); s != "" {
		fmt.Fprintln(c.errOut, s)
	}
}

// DisplayHistory prints the session journal.
func (c *Console) DisplayHistory(exchanges []model.Exchange, summary model.JournalSummary) {
	fmt.Fprintln(c.out, RenderHistory(exchanges, summary))
}

func (c *Console) displayJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}
