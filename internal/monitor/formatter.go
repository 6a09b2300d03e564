package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
)

// FormatElapsed formats a recording duration as "M:SS".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatPercentage formats a ratio (0-1) as a percentage.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatConfidence formats a completion confidence with a status color.
func FormatConfidence(c float64) string {
	s := FormatPercentage(c)
	switch {
	case c >= 0.85:
		return healthyStyle.Render(s)
	case c >= 0.7:
		return warningStyle.Render(s)
	}
	return dimStyle.Render(s)
}

// FormatWhen describes when an entity is due, or "" when it has no date.
func FormatWhen(e entity.Entity) string {
	switch e.Type {
	case entity.TypeTodo:
		if e.Todo != nil && e.Todo.DueDate != "" {
			return "due " + e.Todo.DueDate
		}
	case entity.TypeReminder:
		if e.Reminder != nil && !e.Reminder.ReminderTime.IsZero() {
			return "at " + e.Reminder.ReminderTime.Local().Format("2006-01-02 15:04")
		}
	case entity.TypeEvent:
		if e.Event != nil {
			return strings.TrimSpace("on " + e.Event.EventDate + " " + e.Event.EventTime)
		}
	}
	return ""
}

// FormatEntity renders one entity as a single styled line.
func FormatEntity(e entity.Entity) string {
	var b strings.Builder
	b.WriteString(typeBadge(string(e.Type)))
	b.WriteByte(' ')
	b.WriteString(valueStyle.Render(e.Preview(60)))
	if e.Type == entity.TypeShopping && e.Shopping != nil && len(e.Shopping.Items) > 0 {
		b.WriteString(labelStyle.Render(" (" + strings.Join(e.Shopping.Items, ", ") + ")"))
	}
	if when := FormatWhen(e); when != "" {
		b.WriteString(labelStyle.Render(" " + when))
	}
	if e.Status != entity.StatusActive {
		b.WriteString(dimStyle.Render(" " + string(e.Status)))
	}
	b.WriteString(dimStyle.Render(" " + e.ID))
	return b.String()
}

// FormatEntities renders entities one per line.
func FormatEntities(es []entity.Entity) string {
	if len(es) == 0 {
		return dimStyle.Render("Nothing here yet.")
	}
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = FormatEntity(e)
	}
	return strings.Join(lines, "\n")
}

// FormatOutcome renders what a processed note produced.
func FormatOutcome(out notes.Outcome) string {
	var b strings.Builder
	b.WriteString(valueStyle.Render(out.Summary))
	b.WriteByte('\n')
	for _, e := range out.Entities {
		b.WriteString("  " + FormatEntity(e) + "\n")
	}
	for _, c := range out.Completed {
		fmt.Fprintf(&b, "  %s %s %s\n", healthyStyle.Render("✓ completed"), c.EntityID, FormatConfidence(c.Confidence))
	}
	for _, c := range out.Suggested {
		fmt.Fprintf(&b, "  %s %s %s\n", warningStyle.Render("? maybe done"), c.EntityID, FormatConfidence(c.Confidence))
	}
	return strings.TrimRight(b.String(), "\n")
}
