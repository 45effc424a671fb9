package bot

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// maxMessageLength is Discord's limit on message content.
const maxMessageLength = 2000

// invocation is the session-independent view of a slash command.
type invocation struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	UserID      string
	Username    string
	Command     string
	Subcommand  string
	Options     map[string]*discordgo.ApplicationCommandInteractionDataOption
	IsAdmin     bool
}

func newInvocation(s *discordgo.Session, i *discordgo.InteractionCreate) *invocation {
	inv := &invocation{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID, inv.Username = i.Member.User.ID, i.Member.User.Username
	case i.User != nil:
		inv.UserID, inv.Username = i.User.ID, i.User.Username
	}

	if i.GuildID != "" && s != nil {
		if ch, err := s.State.Channel(i.ChannelID); err == nil {
			inv.ChannelName = ch.Name
		}
	}

	data := i.ApplicationCommandData()
	inv.Command = data.Name
	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		inv.Subcommand = opts[0].Name
		opts = opts[0].Options
	}
	for _, opt := range opts {
		inv.Options[opt.Name] = opt
	}
	return inv
}

func (inv *invocation) String(name string) string {
	if opt, ok := inv.Options[name]; ok {
		return strings.TrimSpace(fmt.Sprint(opt.Value))
	}
	return ""
}

func (inv *invocation) Bool(name string) bool {
	if opt, ok := inv.Options[name]; ok {
		v, _ := opt.Value.(bool)
		return v
	}
	return false
}

// name is the full command path, e.g. "reminders add".
func (inv *invocation) name() string {
	if inv.Subcommand == "" {
		return inv.Command
	}
	return inv.Command + " " + inv.Subcommand
}

func (inv *invocation) params() []string {
	var params []string
	for name := range inv.Options {
		params = append(params, fmt.Sprintf("%s:%s", name, inv.String(name)))
	}
	sort.Strings(params)
	return params
}

func (inv *invocation) fields() []zap.Field {
	return []zap.Field{
		zap.String("command", inv.name()),
		zap.String("guild_id", inv.GuildID),
		zap.String("channel_id", inv.ChannelID),
		zap.String("member_id", inv.UserID),
		zap.String("member_name", inv.Username),
	}
}

// logCommand logs command execution and mirrors it to the guild's log channel.
func (b *Bot) logCommand(s *discordgo.Session, inv *invocation) {
	params := inv.params()
	b.log.Info("Command executed", append(inv.fields(), zap.Strings("params", params))...)

	g, ok := b.botCfg.Guild(inv.GuildID)
	if !ok || g.LogChannel == "" {
		return
	}
	msg := fmt.Sprintf("%s executed /%s", inv.Username, inv.name())
	if len(params) > 0 {
		msg += fmt.Sprintf(" [%s]", strings.Join(params, ", "))
	}
	if _, err := s.ChannelMessageSend(g.LogChannel, fmt.Sprintf("`%s`", msg)); err != nil {
		b.log.Warn("Error sending log to Discord", zap.String("channel_id", g.LogChannel), zap.Error(err))
	}
}

// respond replaces the deferred acknowledgement with msg, sending overflow as follow-ups.
func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	chunks := splitMessage(msg, maxMessageLength)
	first := chunks[0]
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &first}); err != nil {
		b.log.Error("Error responding to interaction", zap.Error(err))
		return
	}
	for _, chunk := range chunks[1:] {
		_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: chunk,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if err != nil {
			b.log.Error("Error sending follow-up message", zap.Error(err))
			return
		}
	}
}

// respondImmediately answers before any deferred acknowledgement was sent.
func (b *Bot) respondImmediately(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Error("Error responding to interaction", zap.Error(err))
	}
}

// splitMessage cuts msg into pieces of at most limit bytes, preferring line breaks.
func splitMessage(msg string, limit int) []string {
	var chunks []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}
		chunks = append(chunks, msg[:cut])
		msg = strings.TrimPrefix(msg[cut:], "\n")
	}
	return append(chunks, msg)
}

// isAdmin accepts configured bot admins, the guild owner and members holding a role with
// Administrator or Manage Server.
func (b *Bot) isAdmin(s *discordgo.Session, guildID, userID string) bool {
	if b.botCfg.IsAdmin(userID) {
		return true
	}
	if guildID == "" || s == nil {
		return false
	}

	guild, err := s.State.Guild(guildID)
	if err != nil {
		if guild, err = s.Guild(guildID); err != nil {
			b.log.Warn("Error getting guild", zap.String("guild_id", guildID), zap.Error(err))
			return false
		}
	}
	if guild.OwnerID == userID {
		return true
	}

	member, err := s.State.Member(guildID, userID)
	if err != nil {
		if member, err = s.GuildMember(guildID, userID); err != nil {
			b.log.Warn("Error getting guild member", zap.String("guild_id", guildID), zap.Error(err))
			return false
		}
	}

	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID != roleID {
				continue
			}
			if role.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0 {
				return true
			}
			break
		}
	}
	return false
}
