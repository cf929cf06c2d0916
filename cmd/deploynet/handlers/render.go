package handlers

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/pathfinder-net/deploynet/internal/orchestrate"
)

var (
	renderColorGreen = lipgloss.Color("#22c55e")
	renderColorRed   = lipgloss.Color("#ef4444")
	renderColorDim   = lipgloss.Color("#6b7280")
	renderColorWhite = lipgloss.Color("#f9fafb")
)

var (
	renderTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(renderColorWhite)
	renderDimStyle   = lipgloss.NewStyle().Foreground(renderColorDim)
	renderOKStyle    = lipgloss.NewStyle().Foreground(renderColorGreen)
	renderFailStyle  = lipgloss.NewStyle().Bold(true).Foreground(renderColorRed)
)

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// renderResults formats the per-node outcome table. Styling is dropped
// when stdout is not a terminal so logs stay grep-friendly.
func renderResults(results *orchestrate.Results) string {
	list := results.List()
	if len(list) == 0 {
		return ""
	}

	styled := stdoutIsTerminal()
	paint := func(style lipgloss.Style, s string) string {
		if !styled {
			return s
		}
		return style.Render(s)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(paint(renderTitleStyle, "  Deployment results"))
	b.WriteString("\n")
	b.WriteString(paint(renderDimStyle, "  "+strings.Repeat("─", 60)))
	b.WriteString("\n")
	b.WriteString(paint(renderDimStyle, fmt.Sprintf("  %-8s %-16s %-12s %-10s %s", "STAGE", "NODE", "TEAM", "KIND", "STATUS")))
	b.WriteString("\n")

	for _, result := range list {
		status := paint(renderOKStyle, "ok")
		if result.Err != nil {
			status = paint(renderFailStyle, "FAILED: "+result.Err.Error())
		}
		b.WriteString(fmt.Sprintf("  %-8s %-16s %-12s %-10s %s\n",
			result.Stage, result.Node, result.Team, result.Kind, status))
	}

	failed := results.FailureCount()
	b.WriteString("\n")
	if failed == 0 {
		b.WriteString(paint(renderOKStyle, fmt.Sprintf("  All %d node operations succeeded", len(list))))
	} else {
		b.WriteString(paint(renderFailStyle, fmt.Sprintf("  %d of %d node operations failed", failed, len(list))))
	}
	b.WriteString("\n")
	return b.String()
}
