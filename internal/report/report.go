package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"missionflow/internal/llm"
	"missionflow/internal/pipeline"
	"missionflow/internal/prompt"
)

// Renderer turns runs into terminal text.
type Renderer struct {
	styles   Styles
	width    int
	markdown *glamour.TermRenderer
}

// New creates a Renderer wrapping text at width columns.
func New(width int, dark bool) (*Renderer, error) {
	if width <= 0 {
		width = 100
	}
	style := "light"
	if dark {
		style = "dark"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{styles: NewStyles(dark), width: width, markdown: md}, nil
}

// NewPlain creates a Renderer without colors, for logs and pipes.
func NewPlain(width int) (*Renderer, error) {
	if width <= 0 {
		width = 100
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{styles: Styles{}, width: width, markdown: md}, nil
}

func (r *Renderer) status(s string) string {
	switch s {
	case string(pipeline.StepCompleted), string(pipeline.RunCompleted):
		return r.styles.Success.Render("✓ " + s)
	case string(pipeline.StepFailed), string(pipeline.RunFailed):
		return r.styles.Error.Render("✗ " + s)
	case string(pipeline.StepRunning), string(pipeline.RunRunning):
		return r.styles.Warning.Render("● " + s)
	default:
		return r.styles.Muted.Render("○ " + s)
	}
}

// RunTrace renders the execution trace of a run: one block per step with
// its status, attempts, duration and errors.
func (r *Renderer) RunTrace(run *pipeline.PipelineRun) string {
	var b strings.Builder

	title := run.Mission
	if title == "" {
		title = "(no mission)"
	}
	b.WriteString(r.styles.Title.Render(title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s  %s\n", r.styles.Muted.Render("run"), run.ID, r.status(string(run.Status)))
	if d := run.Duration(); d > 0 {
		fmt.Fprintf(&b, "%s %v\n", r.styles.Muted.Render("duration"), d.Round(time.Millisecond))
	}
	b.WriteString("\n")

	for _, step := range run.Steps {
		name := step.Role.DisplayName
		if name == "" {
			name = step.Role.ID
		}
		fmt.Fprintf(&b, "%s %s %s  %s",
			r.styles.Bold.Render(fmt.Sprintf("%d.", step.Position+1)),
			r.styles.Heading.Render(name),
			r.styles.Muted.Render("("+step.Role.ID+")"),
			r.status(string(step.Status)))
		if step.Attempts > 0 {
			fmt.Fprintf(&b, "  %s", r.styles.Muted.Render(fmt.Sprintf("attempts %d/%d", step.Attempts, pipeline.MaxRetries)))
		}
		if d := step.Duration(); d > 0 {
			fmt.Fprintf(&b, "  %s", r.styles.Muted.Render(d.Round(time.Millisecond).String()))
		}
		b.WriteString("\n")

		for _, a := range step.History {
			if a.Error == "" {
				continue
			}
			fmt.Fprintf(&b, "   %s %s\n",
				r.styles.Warning.Render(fmt.Sprintf("attempt %d [%s]", a.Number, a.Kind)),
				r.styles.Muted.Render(a.Error))
		}
		if step.Status == pipeline.StepCompleted && step.Output != "" {
			b.WriteString(r.styles.Output.Render(excerpt(step.Output, 6, r.width-4)))
			b.WriteString("\n")
		}
	}

	if f := run.Failure; f != nil {
		b.WriteString("\n")
		b.WriteString(r.styles.Error.Render(fmt.Sprintf("Halted at step %d (%s) after %d attempt(s) [%s]", f.Position+1, f.RoleID, f.Attempts, f.Kind)))
		b.WriteString("\n")
		b.WriteString(r.styles.Muted.Render(f.Message))
		b.WriteString("\n")
	}
	return b.String()
}

// Final renders the final output of a completed run as markdown.
func (r *Renderer) Final(run *pipeline.PipelineRun) (string, error) {
	out := run.FinalOutput()
	if out == "" {
		return "", nil
	}
	rendered, err := r.markdown.Render(out)
	if err != nil {
		return "", fmt.Errorf("failed to render output: %w", err)
	}
	return rendered, nil
}

// RunList renders one line per run.
func (r *Renderer) RunList(runs []*pipeline.PipelineRun) string {
	if len(runs) == 0 {
		return r.styles.Muted.Render("No runs recorded.") + "\n"
	}
	var b strings.Builder
	for _, run := range runs {
		started := "-"
		if !run.StartedAt.IsZero() {
			started = run.StartedAt.Local().Format("2006-01-02 15:04")
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(38).Render(run.ID),
			lipgloss.NewStyle().Width(18).Render(started),
			lipgloss.NewStyle().Width(16).Render(r.status(string(run.Status))),
			lipgloss.NewStyle().Width(8).Render(fmt.Sprintf("%d/%d", run.CompletedSteps(), len(run.Steps))),
			truncate(run.Mission, 60),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Prompt renders composed sections with highlighted headings.
func (r *Renderer) Prompt(sections []prompt.Section) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.styles.Heading.Render("## " + s.Title))
		b.WriteString("\n")
		b.WriteString(s.Body)
		b.WriteString("\n")
	}
	return b.String()
}

// Traces renders the generation traces of a run.
func (r *Renderer) Traces(traces []*llm.Trace) string {
	if len(traces) == 0 {
		return r.styles.Muted.Render("No generation traces recorded.") + "\n"
	}
	var b strings.Builder
	for _, t := range traces {
		outcome := r.styles.Success.Render("ok")
		if !t.Success {
			outcome = r.styles.Error.Render("error")
		}
		fmt.Fprintf(&b, "step %d %-12s attempt %d  %s  %dms", t.StepPosition+1, t.RoleID, t.Attempt, outcome, t.DurationMs)
		if t.Model != "" {
			fmt.Fprintf(&b, "  %s", r.styles.Muted.Render(t.Model))
		}
		if t.ErrorMessage != "" {
			fmt.Fprintf(&b, "  %s", r.styles.Muted.Render(truncate(t.ErrorMessage, 80)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// excerpt keeps the first lines of s, each cut to width runes.
func excerpt(s string, lines, width int) string {
	all := strings.Split(strings.TrimSpace(s), "\n")
	cut := all
	if len(cut) > lines {
		cut = cut[:lines]
	}
	out := make([]string, len(cut))
	for i, l := range cut {
		out[i] = truncate(l, width)
	}
	if len(all) > lines {
		out = append(out, fmt.Sprintf("… %d more lines", len(all)-lines))
	}
	return strings.Join(out, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
