// Package display provides terminal formatting for mailagent output.
package display

import (
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/mailagent/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))

	AgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb")).Bold(true)
	ScoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7c3aed"))
)

// SenderLabel returns a short label for a From header.
// Derives the label from the domain (e.g., "Ann <ann@cs.columbia.edu>" -> "cs.columbia").
func SenderLabel(from string) string {
	addr := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		addr = parsed.Address
	}
	if idx := strings.LastIndex(addr, "@"); idx > 0 {
		domain := addr[idx+1:]
		// Drop the TLD (e.g., "columbia.edu" -> "columbia")
		if dotIdx := strings.LastIndex(domain, "."); dotIdx > 0 {
			return domain[:dotIdx]
		}
		return domain
	}
	return from
}

// SenderName returns the display name of a From header, or the address
// when there is none.
func SenderName(from string) string {
	parsed, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	if parsed.Name != "" {
		return parsed.Name
	}
	return parsed.Address
}

// parseDate understands RFC 5322 message dates as well as ISO timestamps.
func parseDate(s string) (time.Time, bool) {
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeAgo formats a date string as a relative time.
func TimeAgo(date string) string {
	return timeAgo(date, time.Now())
}

func timeAgo(date string, now time.Time) string {
	if date == "" {
		return ""
	}

	t, ok := parseDate(date)
	if !ok {
		return date[:min(10, len(date))]
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen runes, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Success.Render("✓") + " " + msg)
}

// WarnMsg prints an amber bang + message to stderr.
func WarnMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, Warn.Render("!")+" "+msg)
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+msg)
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}

// SubHeader prints a dim subsection label.
func SubHeader(title string) {
	fmt.Println(Muted.Render(title))
}

// EmailLine renders a one-line summary of an email.
func EmailLine(e *types.Email) string {
	return fmt.Sprintf("%s  %s  %s  %s",
		Dim.Render(fmt.Sprintf("%-16s", Truncate(e.ID, 16))),
		Bold.Render(fmt.Sprintf("%-24s", Truncate(SenderName(e.Sender), 24))),
		Truncate(e.Subject, 60),
		Dim.Render(TimeAgo(e.Date)),
	)
}

// EmailTree prints an email in a tree-style format.
// connector is one of "┌─", "├─", "└─"
func EmailTree(connector string, e *types.Email) {
	fromStr := Bold.Render(SenderName(e.Sender))
	dateStr := Dim.Render(TimeAgo(e.Date))
	fmt.Printf("  %s %s  ·  %s  ·  %s\n", Muted.Render(connector), fromStr, Truncate(e.Subject, 60), dateStr)
	if e.Content != "" {
		// Indent body lines under the connector
		prefix := "  │  "
		if connector == "└─" {
			prefix = "     "
		}
		lines := strings.Split(strings.TrimSpace(e.Content), "\n")
		maxLines := 4
		for i, line := range lines {
			if i >= maxLines {
				fmt.Printf("%s%s\n", Muted.Render(prefix), Dim.Render(fmt.Sprintf("... (%d more lines)", len(lines)-maxLines)))
				break
			}
			fmt.Printf("%s%s\n", Muted.Render(prefix), Truncate(strings.TrimSpace(line), 80))
		}
	}
}

// HitLine renders a retrieval hit with its similarity score and the
// sender's domain label.
func HitLine(h types.Hit) string {
	var subject, sender string
	for _, line := range strings.Split(h.Content, "\n") {
		if rest, ok := strings.CutPrefix(line, "【Subject】: "); ok {
			subject = rest
		}
		if rest, ok := strings.CutPrefix(line, "【Sender】: "); ok {
			sender = rest
		}
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		ScoreStyle.Render(fmt.Sprintf("%.3f", h.Score)),
		Dim.Render(fmt.Sprintf("%-16s", Truncate(h.EmailID, 16))),
		Muted.Render(fmt.Sprintf("%-14s", Truncate(SenderLabel(sender), 14))),
		Truncate(subject, 70),
	)
}

// Connector returns the tree connector for item i of n.
func Connector(i, n int) string {
	switch {
	case n == 1 || i == n-1:
		return "└─"
	case i == 0:
		return "┌─"
	default:
		return "├─"
	}
}
