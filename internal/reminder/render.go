package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Render formats the reminder for chat output.
func (r *Reminder) Render(now time.Time) string {
	prefix, timeLeft := "Pending Reminder", "N/A"
	if r.IsComplete(now) {
		prefix = "Complete Reminder"
	} else {
		timeLeft = FormatDuration(r.TriggerTime().Sub(now))
	}

	where := "direct message"
	if !r.FromDM {
		where = "#" + r.ChannelName
		if r.ChannelName == "" {
			where = "<#" + r.ChannelID + ">"
		}
	}

	when := r.ProvidedWhen
	if when == "" {
		when = "N/A"
	}

	content := r.Content
	if !strings.Contains(content, "```") {
		content = "```" + content + "```"
	}

	lines := []string{
		fmt.Sprintf("%s for %s at `%s`:", prefix, r.MemberName, r.TriggerTime().Format(time.RFC1123)),
		fmt.Sprintf("> Requested At: `%s`", r.CreatedTime().Format(time.RFC1123)),
		fmt.Sprintf("> Requested \"when\": `%s`", when),
		fmt.Sprintf("> Time left: `%s`", timeLeft),
		fmt.Sprintf("> Created In: %s", where),
		content,
	}
	return strings.Join(lines, "\n")
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, h, m)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
