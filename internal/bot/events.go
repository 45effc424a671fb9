package bot

import (
	"context"
	"fmt"

	"minder/internal/status"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) record(action status.Action, msg string, details map[string]string) {
	b.status.Log(context.Background(), action, msg, details)
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("Bot is ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	b.record(status.Logon, fmt.Sprintf("Logged in as %s", r.User.Username), map[string]string{
		"session_id": r.SessionID,
		"guilds":     fmt.Sprint(len(r.Guilds)),
	})
}

func (b *Bot) handleDisconnect(s *discordgo.Session, _ *discordgo.Disconnect) {
	b.log.Warn("Disconnected from Discord")
	b.record(status.Logoff, "Disconnected from Discord", nil)
}

// handleGuildCreate fires for every guild on connect as well as for new joins.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log := b.log.With(zap.String("guild_id", g.ID), zap.String("guild", g.Name))
	if !b.botCfg.AllowsGuild(g.ID) {
		log.Info("Skipping unconfigured guild")
		return
	}

	b.record(status.Join, fmt.Sprintf("Available in guild %s", g.Name), map[string]string{"guild_id": g.ID})
	if err := b.registerGuildCommands(g.ID); err != nil {
		log.Error("Error registering commands", zap.Error(err))
		return
	}
	log.Info("Registered all commands")
}

func (b *Bot) handleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	name := g.ID
	if g.BeforeDelete != nil {
		name = g.BeforeDelete.Name
	}
	b.log.Info("Removed from guild", zap.String("guild_id", g.ID), zap.String("guild", name))
	b.record(status.Part, fmt.Sprintf("Left guild %s", name), map[string]string{"guild_id": g.ID})
}

func (b *Bot) handleMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	b.record(status.Join, fmt.Sprintf("%s joined %s", m.User.Username, b.guildName(m.GuildID)), map[string]string{
		"guild_id":  m.GuildID,
		"member_id": m.User.ID,
	})
}

func (b *Bot) handleMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	b.record(status.Part, fmt.Sprintf("%s left %s", m.User.Username, b.guildName(m.GuildID)), map[string]string{
		"guild_id":  m.GuildID,
		"member_id": m.User.ID,
	})
}

func (b *Bot) handleMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	details := map[string]string{
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"message_id": m.ID,
		"member_id":  m.Author.ID,
		"content":    m.Content,
	}
	if m.BeforeUpdate != nil {
		details["before"] = m.BeforeUpdate.Content
	}
	b.record(status.Edit, fmt.Sprintf("%s edited a message", m.Author.Username), details)
}

func (b *Bot) handleMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	details := map[string]string{
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"message_id": m.ID,
	}
	msg := "A message was deleted"
	if before := m.BeforeDelete; before != nil && before.Author != nil {
		if before.Author.Bot {
			return
		}
		details["member_id"] = before.Author.ID
		details["content"] = before.Content
		msg = fmt.Sprintf("A message by %s was deleted", before.Author.Username)
	}
	b.record(status.Delete, msg, details)
}
