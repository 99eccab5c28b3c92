package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"openusage.dev/openusage/pkg/runtime"
)

const (
	defaultBarWidth = 20
	maxBarWidth     = 40
)

// terminalWidth sizes progress bars for w. Non-terminal writers get the default.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultBarWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return defaultBarWidth
	}
	return min(max(width/3, 10), maxBarWidth)
}

type probeStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	muted lipgloss.Style
	bar   lipgloss.Style
	badge lipgloss.Style
}

func newProbeStyles(r *lipgloss.Renderer) probeStyles {
	return probeStyles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		label: r.NewStyle().Width(14),
		muted: r.NewStyle().Foreground(lipgloss.Color("245")),
		bar:   r.NewStyle().Foreground(lipgloss.Color("39")),
		badge: r.NewStyle().Bold(true),
	}
}

// renderProbeOutputs prints one block per plugin. Colour is dropped
// automatically when w is not a terminal.
func renderProbeOutputs(w io.Writer, outputs []runtime.ProbeOutput, barWidth int) {
	styles := newProbeStyles(lipgloss.NewRenderer(w))

	blocks := make([]string, 0, len(outputs))
	for _, out := range outputs {
		rows := []string{styles.title.Render(out.DisplayName) + " " + styles.muted.Render("("+out.ProviderID+")")}
		if len(out.Lines) == 0 {
			rows = append(rows, styles.muted.Render("  no data"))
		}
		for _, line := range out.Lines {
			rows = append(rows, "  "+renderLine(styles, line, barWidth))
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	fmt.Fprintln(w, strings.Join(blocks, "\n\n"))
}

func renderLine(s probeStyles, line runtime.MetricLine, barWidth int) string {
	label := s.label.Render(line.Label)
	switch line.Type {
	case runtime.LineProgress:
		return label + " " + s.bar.Render(progressBar(line.Value, line.Max, barWidth)) + " " + formatAmount(line)
	case runtime.LineBadge:
		style := s.badge
		if line.Color != "" {
			style = style.Foreground(lipgloss.Color(line.Color))
		}
		return label + " " + style.Render("["+line.Text+"]")
	default:
		return label + " " + line.Text
	}
}

// progressBar draws value/maxValue as a fixed-width bar, clamped to [0, width].
func progressBar(value, maxValue float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if maxValue > 0 {
		filled = int(value / maxValue * float64(width))
	}
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatAmount(line runtime.MetricLine) string {
	amount := formatNumber(line.Value) + "/" + formatNumber(line.Max)
	if line.Unit != "" {
		amount += " " + line.Unit
	}
	return amount
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
