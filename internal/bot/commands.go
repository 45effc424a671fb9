package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"minder/internal/fuzzytime"
	"minder/internal/manager"
	"minder/internal/reminder"
	"minder/internal/status"
	"minder/internal/timezone"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	commands = []*discordgo.ApplicationCommand{
		{
			Name:        "reminders",
			Description: "Manage your reminders",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Create a reminder",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "when",
							Description: "When to remind you (e.g., in 5 minutes, tomorrow at 9am)",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "content",
							Description: "What to remind you about",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "timezone",
							Description: "Timezone override (e.g., America/New_York)",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List your reminders",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "include_complete",
							Description: "Also show reminders that already fired",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a reminder",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "key",
							Description: "Reminder key as shown by /reminders list",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "clean",
					Description: "Remove every reminder of a member, or all complete reminders (admin only)",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "Member whose reminders to remove",
							Required:    false,
						},
					},
				},
			},
		},
		{
			Name:        "when",
			Description: "Preview how a time expression resolves",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "expression",
					Description: "Time expression (e.g., friday at noon)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "timezone",
					Description: "Timezone override (e.g., Europe/London)",
					Required:    false,
				},
			},
		},
		{
			Name:        "timezone",
			Description: "Set your timezone",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "zone",
					Description: "Timezone (e.g., America/New_York, Europe/London)",
					Required:    true,
				},
			},
		},
		{
			Name:        "settings",
			Description: "Show your effective settings",
		},
	}
)

const timeLayout = "Mon Jan _2 15:04:05 2006 MST"

// dispatch runs the command and returns the text to reply with.
func (b *Bot) dispatch(ctx context.Context, inv *invocation) string {
	switch inv.name() {
	case "reminders add":
		return b.handleAdd(ctx, inv)
	case "reminders list":
		return b.handleList(ctx, inv)
	case "reminders delete":
		return b.handleDelete(ctx, inv)
	case "reminders clean":
		return b.handleClean(ctx, inv)
	case "when":
		return b.handleWhen(ctx, inv)
	case "timezone":
		return b.handleTimezone(ctx, inv)
	case "settings":
		return b.handleSettings(ctx, inv)
	}
	b.log.Warn("Unknown command", inv.fields()...)
	return "Error: Unknown command"
}

func (b *Bot) handleAdd(ctx context.Context, inv *invocation) string {
	req := manager.AddRequest{
		When:     inv.String("when"),
		Content:  inv.String("content"),
		Owner:    reminder.Member{ID: inv.UserID, Name: inv.Username},
		Timezone: inv.String("timezone"),
	}
	if inv.GuildID != "" {
		req.Channel = &reminder.Channel{ID: inv.ChannelID, Name: inv.ChannelName}
	}

	r, err := b.manager.Add(ctx, req)
	if err != nil {
		return b.errorMessage(inv, err)
	}

	return fmt.Sprintf("Reminder `%s` saved :thumbsup:\n%s", r.Key, r.Render(b.clk.Now()))
}

func (b *Bot) handleList(ctx context.Context, inv *invocation) string {
	list, err := b.manager.List(ctx, manager.Filter{
		MemberID:        inv.UserID,
		ExcludeComplete: !inv.Bool("include_complete"),
	})
	if err != nil {
		return b.errorMessage(inv, err)
	}
	if len(list) == 0 {
		return "You have no reminders"
	}

	now := b.clk.Now()
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		left := "N/A"
		if !r.IsComplete(now) {
			left = reminder.FormatDuration(r.TriggerTime().Sub(now))
		}
		rows = append(rows, []string{
			r.Key,
			r.TriggerTime().Format(timeLayout),
			left,
			truncateString(r.Content, 30),
		})
	}
	return fmt.Sprintf("Found %d reminders:\n%s", len(list),
		formatTable([]string{"Key", "Remind At", "Time Left", "Content"}, rows))
}

func (b *Bot) handleDelete(ctx context.Context, inv *invocation) string {
	key := inv.String("key")
	r, err := b.manager.Get(ctx, key)
	if err != nil {
		return b.errorMessage(inv, err)
	}
	if r.MemberID != inv.UserID && !inv.IsAdmin {
		return "Error: You can only delete your own reminders"
	}

	if err := b.manager.Delete(ctx, key); err != nil {
		return b.errorMessage(inv, err)
	}
	return fmt.Sprintf("Deleted reminder `%s`", key)
}

func (b *Bot) handleClean(ctx context.Context, inv *invocation) string {
	memberID := inv.String("member")
	if memberID != inv.UserID && !inv.IsAdmin {
		if memberID == "" {
			return "Error: Only admins can purge complete reminders for everyone. Pass yourself as member to clear your own"
		}
		return "Error: Only admins can clean reminders of other members"
	}

	deleted, err := b.manager.Clean(ctx, memberID)
	if err != nil {
		return b.errorMessage(inv, err)
	}
	if memberID == "" {
		return fmt.Sprintf("Removed %d complete reminders", len(deleted))
	}
	return fmt.Sprintf("Removed %d reminders of <@%s>", len(deleted), memberID)
}

func (b *Bot) handleWhen(ctx context.Context, inv *invocation) string {
	ft, err := b.manager.Resolve(ctx, inv.String("expression"), inv.String("timezone"), inv.UserID)
	if err != nil {
		return b.errorMessage(inv, err)
	}

	now := b.clk.Now()
	left := "N/A (in the past)"
	if secs, ok := ft.SecondsRemaining(now); ok {
		left = reminder.FormatDuration(time.Duration(secs) * time.Second)
	}
	return fmt.Sprintf("`%s` resolves to `%s` (%s)\n> Time left: `%s`",
		ft.ProvidedWhen, ft.ResolvedTime.Format(timeLayout), ft.Timezone.Name(), left)
}

func (b *Bot) handleTimezone(ctx context.Context, inv *invocation) string {
	zone := inv.String("zone")
	us, err := b.settings.Set(ctx, inv.UserID, inv.GuildID, "timezone", zone)
	if err != nil {
		return b.errorMessage(inv, err)
	}
	name := us.GetString("timezone", zone)
	tz, err := timezone.Build(name)
	if err != nil {
		return fmt.Sprintf("Timezone updated to %s", name)
	}
	return fmt.Sprintf("Timezone updated to %s (currently %s)", name, formatOffset(tz.UTCOffset(b.clk.Now())))
}

// formatOffset renders an offset the way zone tables do, e.g. UTC+05:30.
func formatOffset(d time.Duration) string {
	sign := "+"
	if d < 0 {
		sign, d = "-", -d
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, int(d.Hours()), int(d.Minutes())%60)
}

func (b *Bot) handleSettings(ctx context.Context, inv *invocation) string {
	effective, err := b.settings.Effective(ctx, inv.UserID)
	if err != nil {
		return b.errorMessage(inv, err)
	}
	if _, ok := effective["timezone"]; !ok {
		effective["timezone"] = b.settings.Timezone(ctx, inv.UserID, "UTC") + " (default)"
	}

	names := make([]string, 0, len(effective))
	for name := range effective {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprint(effective[name])})
	}
	return "Your settings:\n" + formatTable([]string{"Setting", "Value"}, rows)
}

// errorMessage turns err into something the member can act on.
func (b *Bot) errorMessage(inv *invocation, err error) string {
	var tzErr *timezone.Error
	var whenErr *fuzzytime.UnresolvableError
	switch {
	case errors.As(err, &whenErr):
		if errors.As(err, &tzErr) {
			return fmt.Sprintf("%q does not name a single moment in %s (%s around a daylight saving change). Pick another time", whenErr.ProvidedWhen, tzErr.Name, tzErr.Reason)
		}
		return fmt.Sprintf("%q cannot be resolved into a date/time. Try something like: `in 5 minutes`", whenErr.ProvidedWhen)
	case errors.As(err, &tzErr):
		return fmt.Sprintf("Invalid timezone provided %q", tzErr.Name)
	case errors.Is(err, reminder.ErrDuplicateKey):
		return "Error: You already have a reminder at that exact time"
	case errors.Is(err, reminder.ErrNotFound):
		return fmt.Sprintf("Error: No reminder found with key `%s`", inv.String("key"))
	case errors.Is(err, reminder.ErrInvalid):
		return "Error: " + err.Error()
	}

	b.log.Error("Command failed", append(inv.fields(), zap.Error(err))...)
	b.record(status.Error, fmt.Sprintf("/%s failed", inv.name()), map[string]string{
		"member_id": inv.UserID,
		"error":     err.Error(),
	})
	if b.botCfg.ExtendedErrors {
		return "Error: An internal error occurred: " + err.Error()
	}
	return "Error: An internal error occurred"
}

func truncateString(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatTable creates a Discord-friendly table with fixed-width columns
func formatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var result strings.Builder
	result.WriteString("```\n")
	for i, header := range headers {
		result.WriteString(fmt.Sprintf("%-*s", widths[i]+2, header))
	}
	result.WriteString("\n")
	for _, width := range widths {
		result.WriteString(strings.Repeat("-", width+2))
	}
	result.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			result.WriteString(fmt.Sprintf("%-*s", widths[i]+2, cell))
		}
		result.WriteString("\n")
	}
	result.WriteString("```")

	return result.String()
}
