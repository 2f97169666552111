package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/clawpanel/clawpanel/internal/observer"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)

	sourceStyles = map[observer.Source]lipgloss.Style{
		observer.SourceQQ:        lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		observer.SourceWeChat:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		observer.SourceAssistant: lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		observer.SourceSystem:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

// formatEntry renders one activity log line.
func formatEntry(e observer.LogEntry) string {
	style, ok := sourceStyles[e.Source]
	if !ok {
		style = dimStyle
	}
	label := fmt.Sprintf("%-9s", e.Source)
	return fmt.Sprintf("%s %s %s", dimStyle.Render(e.Time.Format("15:04:05")), style.Render(label), e.Summary)
}

// formatStatus renders one channel status line.
func formatStatus(name string, st observer.ChannelStatus) string {
	state := errorStyle.Render("offline")
	if st.Connected {
		state = successStyle.Render("online")
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("%-8s", name), state)
	if st.Identity != nil && st.Identity.DisplayName != "" {
		who := st.Identity.DisplayName
		if !st.Connected {
			who += " (last seen)"
		}
		parts = append(parts, who)
	}
	if !st.Running {
		parts = append(parts, dimStyle.Render("[stopped]"))
	}
	return strings.Join(parts, "  ")
}
