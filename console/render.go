package console

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hupe1980/supportmesh/core"
)

// FailureMessage is shown instead of any draft when a turn fails.
const FailureMessage = "We could not complete this request. Please try rephrasing it or ask something else."

// Theme defines the color scheme of the console.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Warn    lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default console theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00afd7"),
	Accent:  lipgloss.Color("#5fd75f"),
	Warn:    lipgloss.Color("#ffaf00"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Banner  lipgloss.Style
	Tag     lipgloss.Style
	Handoff lipgloss.Style
	Action  lipgloss.Style
	Output  lipgloss.Style
	Message lipgloss.Style
	Warn    lipgloss.Style
	Dim     lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Banner:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Tag:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Handoff: lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Action:  lipgloss.NewStyle().Foreground(t.Primary),
		Output:  lipgloss.NewStyle().Foreground(t.Dim),
		Message: lipgloss.NewStyle().PaddingLeft(2),
		Warn:    lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		Dim:     lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Renderer turns events into display lines.
type Renderer struct {
	styles    Styles
	streaming bool
}

// NewRenderer creates a renderer.
func NewRenderer(styles Styles) *Renderer {
	return &Renderer{styles: styles}
}

// Event renders one event. Empty output means the event is not displayed.
// Chunks are printed inline; the final message after chunks only closes the
// line.
func (r *Renderer) Event(ev core.Event) string {
	s := r.styles

	switch ev.Type {
	case core.EventClassificationSet:
		return s.Tag.Render("[classified]") + " " + string(*ev.IssueType) + "\n"
	case core.EventClassificationAmbiguous:
		return s.Warn.Render("[ambiguous]") + " " + s.Dim.Render(ev.Reason+"; using general support") + "\n"
	case core.EventProfileUpdated:
		return s.Tag.Render("[profile]") + " " + formatProfile(ev.Profile) + "\n"
	case core.EventHandoffRequested:
		return "\n" + s.Handoff.Render("[handoff → "+ev.Target+"]") + "\n"
	case core.EventHandoffCompleted:
		return s.Dim.Render("[active handler] "+ev.Target) + "\n"
	case core.EventActionInvoked:
		return s.Action.Render("[tool call] "+ev.Action.Name) + " " + s.Dim.Render(formatArgs(ev.Action.Args)) + "\n"
	case core.EventActionResult:
		if ev.Error != "" {
			return s.Warn.Render("[tool error] ") + s.Output.Render(ev.Error) + "\n"
		}
		return s.Output.Render("[tool output] "+ev.Output) + "\n"
	case core.EventGuardrailTripped:
		return s.Warn.Render("[guardrail] draft withheld ("+ev.Reason+"), regenerating") + "\n"
	case core.EventMessageChunk:
		if !r.streaming {
			r.streaming = true
			return "\n  " + ev.Text
		}
		return ev.Text
	case core.EventFinalMessage:
		if r.streaming {
			r.streaming = false
			return "\n\n"
		}
		return "\n" + s.Message.Render(ev.Text) + "\n\n"
	case core.EventTurnFailed:
		r.streaming = false
		return "\n" + s.Warn.Render(FailureMessage) + "\n\n"
	default:
		return ""
	}
}

// Snapshot renders the context line shown after each turn.
func (r *Renderer) Snapshot(f core.SupportFields) string {
	return r.styles.Dim.Render("[context] "+f.String()) + "\n\n"
}

// Banner renders the welcome text.
func (r *Renderer) Banner() string {
	return r.styles.Banner.Render(strings.Join([]string{
		"supportmesh console",
		"Triage + Billing + Technical + General",
		"Gated tools, shared context, handoffs, output guardrail",
	}, "\n")) + "\nType 'exit' to quit.\n\n"
}

// Examples renders the example prompts.
func (r *Renderer) Examples() string {
	return "Ask your question(s). Examples:\n" +
		r.styles.Dim.Render(" - I want a refund for order 123, amount 49.99\n - Restart the payments service\n - What's your delivery policy?") +
		"\n\n"
}

func formatProfile(p map[string]string) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, p[k]))
	}

	return strings.Join(parts, " ")
}

func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}

	return "(" + strings.Join(parts, ", ") + ")"
}
