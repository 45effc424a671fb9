package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"minder/internal/config"
	"minder/internal/db"
	"minder/internal/delivery"
	"minder/internal/fuzzytime"
	"minder/internal/manager"
	"minder/internal/reminder"
	"minder/internal/scheduler"
	"minder/internal/settings"
	"minder/internal/status"

	"github.com/bwmarrin/discordgo"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopMessenger struct{}

func (nopMessenger) ChannelAvailable(context.Context, string) bool { return true }

func (nopMessenger) SendChannelMessage(context.Context, string, string) error { return nil }

func (nopMessenger) SendDirectMessage(context.Context, string, string) error { return nil }

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	log := zap.NewNop()
	clk := clock.New()
	kv := db.NewMemory()

	cfg := config.Default()
	cfg.Bot.Admins = []string{"9000"}
	cfg.Bot.Users = map[string]config.UserConfig{"1001": {Name: "alice", Settings: map[string]string{"admin_channels": "3003"}}}

	registry, err := settings.NewRegistry(log, settings.DefaultHandlers()...)
	require.NoError(t, err)
	userSettings := settings.NewStore(kv, registry, cfg.Bot)

	store := reminder.NewStore(kv, log)
	m := manager.New(manager.Deps{
		Store:     store,
		Scheduler: scheduler.New(clk, log, time.Second),
		Delivery:  delivery.NewHandler(store, nopMessenger{}, clk, log),
		Resolver:  fuzzytime.NewResolver(clk),
		Timezones: userSettings,
		Clock:     clk,
		Log:       log,
	}, manager.Options{})
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	return newBot(cfg, Deps{
		Manager:  m,
		Settings: userSettings,
		Status:   status.NewRecorder(kv, clk, log),
		Clock:    clk,
		Log:      log,
	})
}

func invoke(command, sub string, opts map[string]any) *invocation {
	inv := &invocation{
		GuildID:     "500",
		ChannelID:   "2002",
		ChannelName: "general",
		UserID:      "1001",
		Username:    "alice",
		Command:     command,
		Subcommand:  sub,
		Options:     make(map[string]*discordgo.ApplicationCommandInteractionDataOption),
	}
	for name, v := range opts {
		inv.Options[name] = &discordgo.ApplicationCommandInteractionDataOption{Name: name, Value: v}
	}
	return inv
}

func keyFrom(t *testing.T, reply string) string {
	t.Helper()
	start := strings.Index(reply, "`")
	require.GreaterOrEqual(t, start, 0, reply)
	end := strings.Index(reply[start+1:], "`")
	require.Greater(t, end, 0, reply)
	return reply[start+1 : start+1+end]
}

func TestAddAndList(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	reply := b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "2030-01-01 10:00", "content": "renew passport"}))
	assert.Contains(t, reply, "saved")
	assert.Contains(t, reply, "Created In: #general")
	key := keyFrom(t, reply)

	r, err := b.manager.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "2002", r.ChannelID)
	assert.False(t, r.FromDM)

	dm := invoke("reminders", "add", map[string]any{"when": "2030-01-02 10:00", "content": "call mum"})
	dm.GuildID, dm.ChannelName = "", ""
	reply = b.dispatch(ctx, dm)
	r, err = b.manager.Get(ctx, keyFrom(t, reply))
	require.NoError(t, err)
	assert.True(t, r.FromDM)
	assert.Empty(t, r.ChannelID)

	reply = b.dispatch(ctx, invoke("reminders", "list", nil))
	assert.Contains(t, reply, "Found 2 reminders")
	assert.Contains(t, reply, key)
	assert.Contains(t, reply, "renew passport")
}

func TestResolutionErrors(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	reply := b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "in 5 minutes", "content": "x", "timezone": "Mars/Olympus"}))
	assert.Equal(t, `Invalid timezone provided "Mars/Olympus"`, reply)

	reply = b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "qwertyuiop asdf", "content": "x"}))
	assert.Equal(t, "\"qwertyuiop asdf\" cannot be resolved into a date/time. Try something like: `in 5 minutes`", reply)

	reply = b.dispatch(ctx, invoke("when", "", map[string]any{"expression": "in 5 minutes", "timezone": "Mars/Olympus"}))
	assert.Equal(t, `Invalid timezone provided "Mars/Olympus"`, reply)

	reply = b.dispatch(ctx, invoke("timezone", "", map[string]any{"zone": "Mars/Olympus"}))
	assert.Equal(t, `Invalid timezone provided "Mars/Olympus"`, reply)

	reply = b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "2024-03-10 02:30", "content": "x", "timezone": "america/new_york"}))
	assert.Equal(t, "\"2024-03-10 02:30\" does not name a single moment in America/New_York (non-existent local time around a daylight saving change). Pick another time", reply)
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "UTC+00:00", formatOffset(0))
	assert.Equal(t, "UTC+05:30", formatOffset(5*time.Hour+30*time.Minute))
	assert.Equal(t, "UTC-03:30", formatOffset(-3*time.Hour-30*time.Minute))
}

func TestDuplicateReminder(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	add := invoke("reminders", "add", map[string]any{"when": "2030-01-01 10:00", "content": "x"})

	b.dispatch(ctx, add)
	assert.Equal(t, "Error: You already have a reminder at that exact time", b.dispatch(ctx, add))
}

func TestDeletePermissions(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	key := keyFrom(t, b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "2030-01-01 10:00", "content": "x"})))

	other := invoke("reminders", "delete", map[string]any{"key": key})
	other.UserID, other.Username = "1002", "bob"
	assert.Equal(t, "Error: You can only delete your own reminders", b.dispatch(ctx, other))

	other.IsAdmin = true
	assert.Equal(t, "Deleted reminder `"+key+"`", b.dispatch(ctx, other))

	assert.Equal(t, "Error: No reminder found with key `"+key+"`", b.dispatch(ctx, other))
}

func TestClean(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "2030-01-01 10:00", "content": "x"}))
	b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "2030-01-02 10:00", "content": "y"}))

	everyone := invoke("reminders", "clean", nil)
	assert.Contains(t, b.dispatch(ctx, everyone), "Only admins")

	stranger := invoke("reminders", "clean", map[string]any{"member": "1001"})
	stranger.UserID = "1002"
	assert.Equal(t, "Error: Only admins can clean reminders of other members", b.dispatch(ctx, stranger))

	self := invoke("reminders", "clean", map[string]any{"member": "1001"})
	assert.Equal(t, "Removed 2 reminders of <@1001>", b.dispatch(ctx, self))

	everyone.IsAdmin = true
	assert.Equal(t, "Removed 0 complete reminders", b.dispatch(ctx, everyone))
}

func TestWhen(t *testing.T) {
	b := newTestBot(t)
	reply := b.dispatch(context.Background(), invoke("when", "", map[string]any{"expression": "in 2 hours", "timezone": "Asia/Tokyo"}))
	assert.Contains(t, reply, "`in 2 hours` resolves to")
	assert.Contains(t, reply, "(Asia/Tokyo)")
	assert.Contains(t, reply, "Time left: `1h 59m")
}

func TestTimezoneAndSettings(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	reply := b.dispatch(ctx, invoke("settings", "", nil))
	assert.Contains(t, reply, "UTC (default)")
	assert.Contains(t, reply, "admin_channels")

	reply = b.dispatch(ctx, invoke("timezone", "", map[string]any{"zone": "asia/kolkata"}))
	assert.Equal(t, "Timezone updated to Asia/Kolkata (currently UTC+05:30)", reply)

	reply = b.dispatch(ctx, invoke("timezone", "", map[string]any{"zone": "Europe/Paris"}))
	assert.True(t, strings.HasPrefix(reply, "Timezone updated to Europe/Paris (currently UTC+0"), reply)

	reply = b.dispatch(ctx, invoke("settings", "", nil))
	assert.Contains(t, reply, "Europe/Paris")
	assert.NotContains(t, reply, "(default)")

	reply = b.dispatch(ctx, invoke("reminders", "add", map[string]any{"when": "in 5 minutes", "content": "x"}))
	r, err := b.manager.Get(ctx, keyFrom(t, reply))
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", r.TimezoneName)
}

func TestUnknownCommand(t *testing.T) {
	b := newTestBot(t)
	assert.Equal(t, "Error: Unknown command", b.dispatch(context.Background(), invoke("reminders", "snooze", nil)))
}

func TestNewInvocation(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "2002",
		User:      &discordgo.User{ID: "1001", Username: "alice"},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "reminders",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: "add",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "when", Type: discordgo.ApplicationCommandOptionString, Value: " tomorrow "},
					{Name: "content", Type: discordgo.ApplicationCommandOptionString, Value: "x"},
				},
			}},
		},
	}}

	inv := newInvocation(nil, i)
	assert.Equal(t, "reminders add", inv.name())
	assert.Equal(t, "1001", inv.UserID)
	assert.Equal(t, "tomorrow", inv.String("when"))
	assert.Equal(t, "", inv.String("timezone"))
	assert.False(t, inv.Bool("include_complete"))
	assert.Equal(t, []string{"content:x", "when:tomorrow"}, inv.params())
}

func TestIsAdminFromConfig(t *testing.T) {
	b := newTestBot(t)
	assert.True(t, b.isAdmin(nil, "", "9000"))
	assert.False(t, b.isAdmin(nil, "", "1001"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"aaaa", "bbbb"}, splitMessage("aaaa\nbbbb", 6))
	assert.Equal(t, []string{"abcdef", "ghij"}, splitMessage("abcdefghij", 6))

	for _, chunk := range splitMessage(strings.Repeat("é", 10), 5) {
		assert.LessOrEqual(t, len(chunk), 5)
		assert.True(t, strings.HasPrefix(chunk, "é"))
	}
}

func TestFormatTable(t *testing.T) {
	got := formatTable([]string{"Key", "Value"}, [][]string{{"timezone", "UTC"}})
	want := "```\n" +
		"Key       Value  \n" +
		"-----------------\n" +
		"timezone  UTC    \n" +
		"```"
	assert.Equal(t, want, got)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "line one...", truncateString("line one\nline two", 11))
}
