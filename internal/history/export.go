package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diogo/checkin/internal/models"
)

// ExportFormat represents the format for exporting conversations
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
)

// ParseExportFormat accepts "markdown", "md" or "json"
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (use markdown or json)", s)
}

// Export renders a conversation in the given format
func (s *Store) Export(id string, format ExportFormat) ([]byte, error) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if format == ExportFormatJSON {
		return json.MarshalIndent(conv, "", "  ")
	}
	return []byte(ToMarkdown(conv)), nil
}

// ToMarkdown renders a conversation as Markdown
func ToMarkdown(conv *Conversation) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(conv.Title)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "**Backend:** %s\n", conv.Backend)
	fmt.Fprintf(&sb, "**Started:** %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Messages:** %d\n", len(conv.Messages))
	if scores := conv.MoodScores(); len(scores) > 0 {
		avg := 0.0
		for _, v := range scores {
			avg += v
		}
		avg /= float64(len(scores))
		fmt.Fprintf(&sb, "**Mood:** %.2f (%s)\n", avg, models.MoodLabel(avg))
	}
	sb.WriteString("\n---\n\n")

	for i, msg := range conv.Messages {
		role := "You"
		if msg.Role == string(models.RoleAssistant) {
			role = "Assistant"
		}

		sb.WriteString("## ")
		sb.WriteString(role)
		if !msg.Timestamp.IsZero() {
			sb.WriteString(" (")
			sb.WriteString(msg.Timestamp.Format("15:04:05"))
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")

		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		var notes []string
		if msg.MoodScore != nil {
			notes = append(notes, fmt.Sprintf("mood %.2f", *msg.MoodScore))
		}
		if msg.HasAudio {
			notes = append(notes, "audio reply")
		}
		if msg.Fallback {
			notes = append(notes, "request failed")
		}
		if len(notes) > 0 {
			sb.WriteString("\n_")
			sb.WriteString(strings.Join(notes, ", "))
			sb.WriteString("_\n")
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

// FormatRelativeTime formats t relative to now, e.g. "2h ago" or "yesterday"
func FormatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 48*time.Hour:
		return "yesterday"
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
