package console

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/taskfinisher"
	"github.com/nhle/deepseek-json/internal/theme"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(theme.ColorGreen)
	textStyle  = lipgloss.NewStyle().Foreground(theme.ColorWhite)
	noneStyle  = lipgloss.NewStyle().Foreground(theme.ColorGray)
	idStyle    = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
)

// Guidance is the user-facing explanation of a failure.
type Guidance struct {
	Message string
	Tip     string
}

// GuidanceFor maps err onto a message and tip per error kind. Cancellation
// has no guidance: it is an intentional stop.
func GuidanceFor(err error) (Guidance, bool) {
	if err == nil || ai.IsCanceled(err) {
		return Guidance{}, false
	}
	if errors.Is(err, taskfinisher.ErrUserAborted) {
		return Guidance{Message: "Dialogue aborted. No artifact was produced."}, true
	}

	var e *ai.Error
	if !errors.As(err, &e) {
		return Guidance{
			Message: fmt.Sprintf("Error: %v", err),
			Tip:     "Run with --verbose for more detail.",
		}, true
	}

	switch e.Kind {
	case ai.KindServerBusy:
		msg := "DeepSeek servers are currently busy. Please try again in a few moments."
		switch e.StatusCode {
		case 429:
			msg = "Rate limit exceeded. Please wait a moment before trying again."
		case 503:
			msg = "Service temporarily unavailable. Please try again later."
		case 502, 504:
			msg = "Server gateway error. Please try again in a few moments."
		}
		return Guidance{Message: msg, Tip: "Try again in a few minutes when server load is lower."}, true

	case ai.KindNetwork:
		msg := "Network connection failed. Please check your internet connection and try again."
		if e.Detail != "" {
			msg += " (" + e.Detail + ")"
		}
		return Guidance{Message: msg, Tip: "Check your internet connection and firewall settings."}, true

	case ai.KindTimeout:
		return Guidance{
			Message: fmt.Sprintf("Request timed out after %d seconds. The server might be overloaded.", int(e.Timeout.Seconds())),
			Tip:     "The server might be overloaded. Try again later or raise --timeout.",
		}, true

	case ai.KindAPI:
		g := Guidance{Message: fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Detail)}
		switch e.StatusCode {
		case 401:
			g.Tip = "Check your DEEPSEEK_API_KEY environment variable or run 'deepseek-json auth set-key'."
		case 403:
			g.Tip = "Your API key may not have sufficient permissions."
		case 429:
			g.Tip = "You've hit the rate limit. Wait before trying again."
		default:
			g.Tip = "Check the DeepSeek API documentation for more details."
		}
		return g, true

	case ai.KindParse:
		return Guidance{
			Message: "Failed to parse server response: " + e.Detail,
			Tip:     "The server response was unexpected. Try rephrasing your query.",
		}, true

	case ai.KindConfig:
		return Guidance{
			Message: "Configuration error: " + e.Detail,
			Tip:     "Check your environment variables and configuration file.",
		}, true

	default:
		return Guidance{Message: e.Error()}, true
	}
}

// RenderError renders guidance for err, or "" when err must not be shown.
func RenderError(err error) string {
	g, ok := GuidanceFor(err)
	if !ok {
		return ""
	}

	lines := []string{theme.ErrorStyle.Render(g.Message)}
	if g.Tip != "" {
		lines = append(lines, theme.TipStyle.Render("Tip: "+g.Tip))
	}
	return theme.ErrorPanelStyle.Render(strings.Join(lines, "\n"))
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + textStyle.Render(value)
}

// RenderArtifact renders a single-query artifact panel.
func RenderArtifact(a *model.StructuredArtifact) string {
	lines := []string{
		theme.HeaderStyle.Render(a.Title),
		"",
		field("Description", a.Description),
		field("Content", a.Content),
	}
	if a.Category != nil {
		lines = append(lines, field("Category", *a.Category))
	}
	if a.Timestamp != nil {
		lines = append(lines, field("Timestamp", *a.Timestamp))
	}
	if a.Confidence != nil {
		lines = append(lines, labelStyle.Render("Confidence:")+" "+
			theme.ConfidenceStyle(*a.Confidence).Render(fmt.Sprintf("%.2f", *a.Confidence)))
	}
	return theme.PanelStyle.Render(strings.Join(lines, "\n"))
}

type section struct {
	title string
	lines []string
}

func bullets(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, "  • "+textStyle.Render(item))
	}
	return out
}

// RenderFinal renders a technical-task artifact panel.
func RenderFinal(f *model.FinalArtifact) string {
	header := []string{theme.HeaderStyle.Render(f.Title)}
	if f.ArtifactName != "" {
		name := f.ArtifactName
		if f.Version != "" {
			name += " v" + f.Version
		}
		header = append(header, noneStyle.Render(name))
	}
	header = append(header, "", field("Summary", f.Summary))

	sections := []section{
		{"Stakeholders", stakeholderLines(f.Stakeholders)},
		{"Scope", scopeLines(f.Scope)},
		{"Requirements", requirementLines(f.Requirements)},
		{"Data integrations", integrationLines(f.DataIntegrations)},
		{"Constraints", bullets(f.Constraints)},
		{"Assumptions", bullets(f.Assumptions)},
		{"Risks", riskLines(f.Risks)},
		{"Milestones", milestoneLines(f.Milestones)},
		{"Acceptance criteria", criteriaLines(f.AcceptanceCriteria)},
		{"Open questions", bullets(f.OpenQuestions)},
	}

	lines := header
	for _, s := range sections {
		lines = append(lines, "", theme.SectionStyle.Render(s.title))
		if len(s.lines) == 0 {
			lines = append(lines, noneStyle.Render("  (none)"))
			continue
		}
		lines = append(lines, s.lines...)
	}
	lines = append(lines, "", noneStyle.Render("status: "+f.Status+"  "+f.EndToken))

	return theme.PanelStyle.Render(strings.Join(lines, "\n"))
}

func stakeholderLines(items []model.Stakeholder) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, "  • "+idStyle.Render(s.Role)+" "+textStyle.Render(s.Description))
	}
	return out
}

func scopeLines(s model.Scope) []string {
	var out []string
	for _, item := range s.InScope {
		out = append(out, "  ✔ "+textStyle.Render(item))
	}
	for _, item := range s.OutOfScope {
		out = append(out, "  ✖ "+noneStyle.Render(item))
	}
	return out
}

func requirementLines(r model.Requirements) []string {
	var out []string
	for _, fr := range r.Functional {
		out = append(out, "  • "+idStyle.Render(fr.ID)+" "+textStyle.Render(fr.Statement))
		if fr.Rationale != "" {
			out = append(out, "      "+theme.HelpStyle.Render("rationale: "+fr.Rationale))
		}
	}
	for _, nfr := range r.NonFunctional {
		out = append(out, fmt.Sprintf("  • %s [%s] %s",
			idStyle.Render(nfr.ID), theme.SectionStyle.Render(nfr.Category), textStyle.Render(nfr.Target)))
	}
	return out
}

func integrationLines(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("  • %s = %v", idStyle.Render(name), m[name]))
	}
	return out
}

func riskLines(items []model.Risk) []string {
	out := make([]string, 0, len(items))
	for _, r := range items {
		out = append(out, "  • "+idStyle.Render(r.ID)+" "+textStyle.Render(r.Description))
		if r.Mitigation != "" {
			out = append(out, "      "+theme.HelpStyle.Render("mitigation: "+r.Mitigation))
		}
	}
	return out
}

func milestoneLines(items []model.Milestone) []string {
	var out []string
	for _, m := range items {
		out = append(out, "  • "+idStyle.Render(m.ID)+" "+textStyle.Render(m.Name))
		for _, d := range m.Deliverables {
			out = append(out, "      - "+textStyle.Render(d))
		}
	}
	return out
}

func criteriaLines(items []model.AcceptanceCriterion) []string {
	var out []string
	for _, ac := range items {
		out = append(out,
			"  • "+idStyle.Render(ac.ID),
			"      given "+textStyle.Render(ac.Given),
			"      when  "+textStyle.Render(ac.When),
			"      then  "+textStyle.Render(ac.Then),
		)
	}
	return out
}

// RenderBatch renders a clarifying batch with its checklist.
func RenderBatch(b *model.ClarifyingBatch, round, maxRounds int) string {
	lines := []string{
		theme.SectionStyle.Render(fmt.Sprintf("Clarifying questions (round %d of %d)", round, maxRounds)),
	}
	for _, q := range b.Questions {
		line := "  " + theme.QuestionIDStyle.Render(string(q.ID)) + " " + textStyle.Render(q.Text)
		if q.Required {
			line += " " + theme.TipStyle.Render("*")
		}
		lines = append(lines, line)
		if len(q.Options) > 0 {
			lines = append(lines, "      "+noneStyle.Render("options: "+strings.Join(q.Options, ", ")))
		}
	}

	if len(b.Checklist) > 0 {
		lines = append(lines, "", theme.SectionStyle.Render("Checklist"))
		for _, item := range b.Checklist {
			lines = append(lines, "  "+textStyle.Render(item.Field)+" "+
				theme.ChecklistStyle(item.Status).Render("["+item.Status+"]"))
		}
	}

	lines = append(lines, "", theme.HelpStyle.Render(
		"Answer one-by-one. Enter skips, "+taskfinisher.CommandProceed+
			" finalizes now, "+taskfinisher.CommandAbort+" aborts."))
	return strings.Join(lines, "\n")
}

// RenderWelcome renders the interactive-mode banner.
func RenderWelcome() string {
	return strings.Join([]string{
		theme.HeaderStyle.Render("DeepSeek JSON"),
		theme.StatusStyle.Render("Queries are answered as structured JSON artifacts."),
		theme.HelpStyle.Render("Type /history for this session's requests, /quit or /exit to stop."),
	}, "\n")
}

// RenderGoodbye renders the exit line.
func RenderGoodbye() string {
	return theme.TipStyle.Bold(true).Render("Goodbye!")
}

// RenderHistory renders the session journal.
func RenderHistory(exchanges []model.Exchange, summary model.JournalSummary) string {
	if len(exchanges) == 0 {
		return noneStyle.Render("No requests yet.")
	}

	lines := make([]string, 0, len(exchanges)+2)
	for _, ex := range exchanges {
		lines = append(lines, fmt.Sprintf("%s %s %s  %s",
			noneStyle.Render(ex.CreatedAt.Format("15:04:05")),
			theme.OutcomeStyle(ex.Outcome).Render(ex.Outcome),
			textStyle.Render(ex.Label),
			noneStyle.Render(fmt.Sprintf("%d attempt(s), %s", ex.Attempts, ex.Latency.Round(time.Millisecond))),
		))
	}
	lines = append(lines, "", theme.HelpStyle.Render(fmt.Sprintf(
		"%d request(s), %d attempt(s), %d failure(s), %s total",
		summary.Exchanges, summary.Attempts, summary.Failures, summary.Latency.Round(time.Millisecond))))
	return strings.Join(lines, "\n")
}
