package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/theme"
)

// Prompt describes one line of requested input.
type Prompt struct {
	Title       string
	Description string
	Placeholder string
	Suggestions []string
	Secret      bool
}

// Prompter reads one line of input. Implementations return an
// ai.KindCanceled error when ctx is done or the user interrupts, and
// io.EOF when input is exhausted.
type Prompter interface {
	Prompt(ctx context.Context, p Prompt) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// LinePrompter reads newline-terminated input from a plain reader. At most
// one read is outstanding: a read interrupted by cancellation is resumed by
// the next Prompt call instead of starting a second reader.
type LinePrompter struct {
	out     io.Writer
	reader  *bufio.Reader
	pending chan lineResult
}

// NewLinePrompter creates a prompter reading from in and echoing prompts to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// Prompt prints the prompt and waits for a line or cancellation.
func (p *LinePrompter) Prompt(ctx context.Context, pr Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ai.Canceled(err)
	}

	if pr.Description != "" {
		fmt.Fprintln(p.out, theme.HelpStyle.Render(pr.Description))
	}
	if len(pr.Suggestions) > 0 {
		fmt.Fprintln(p.out, theme.HelpStyle.Render("options: "+strings.Join(pr.Suggestions, ", ")))
	}
	fmt.Fprint(p.out, theme.PromptStyle.Render(pr.Title)+" ")

	if p.pending == nil {
		ch := make(chan lineResult, 1)
		p.pending = ch
		go func() {
			line, err := p.reader.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ai.Canceled(ctx.Err())
	case r := <-p.pending:
		p.pending = nil
		if r.err != nil && (r.line == "" || !errors.Is(r.err, io.EOF)) {
			if errors.Is(r.err, io.EOF) {
				fmt.Fprintln(p.out)
				return "", io.EOF
			}
			return "", fmt.Errorf("reading input: %w", r.err)
		}
		return strings.TrimRight(r.line, "\r\n"), nil
	}
}

// FormPrompter asks through a huh form on an interactive terminal.
type FormPrompter struct {
	Accessible bool
}

// Prompt runs a single-field form. Ctrl+C inside the form is reported as
// cancellation.
func (p FormPrompter) Prompt(ctx context.Context, pr Prompt) (string, error) {
	var value string

	input := huh.NewInput().
		Title(pr.Title).
		Value(&value)
	if pr.Description != "" {
		input = input.Description(pr.Description)
	}
	if pr.Placeholder != "" {
		input = input.Placeholder(pr.Placeholder)
	}
	if len(pr.Suggestions) > 0 {
		input = input.Suggestions(pr.Suggestions)
	}
	if pr.Secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	err := huh.NewForm(huh.NewGroup(input)).
		WithAccessible(p.Accessible).
		RunWithContext(ctx)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) || ctx.Err() != nil {
			return "", ai.Canceled(err)
		}
		return "", fmt.Errorf("running prompt: %w", err)
	}
	return value, nil
}
