package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ChannelAvailable reports whether the bot can still post in channelID.
func (b *Bot) ChannelAvailable(_ context.Context, channelID string) bool {
	ch, err := b.session.State.Channel(channelID)
	if err != nil {
		if ch, err = b.session.Channel(channelID); err != nil {
			return false
		}
	}
	if ch.GuildID == "" || b.session.State.User == nil {
		return true
	}

	perms, err := b.session.State.UserChannelPermissions(b.session.State.User.ID, channelID)
	if err != nil {
		// Without cached permissions, trust the channel lookup.
		return true
	}
	return perms&discordgo.PermissionSendMessages != 0
}

func (b *Bot) SendChannelMessage(ctx context.Context, channelID, content string) error {
	err := sendChunked(ctx, content, func(chunk string) error {
		_, err := b.session.ChannelMessageSend(channelID, chunk)
		return err
	})
	if err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

func (b *Bot) SendDirectMessage(ctx context.Context, userID, content string) error {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open direct message with %s: %w", userID, err)
	}
	err = sendChunked(ctx, content, func(chunk string) error {
		_, err := b.session.ChannelMessageSend(ch.ID, chunk)
		return err
	})
	if err != nil {
		return fmt.Errorf("send direct message to %s: %w", userID, err)
	}
	return nil
}

// sendChunked posts content in pieces Discord accepts, stopping at the first failure.
func sendChunked(ctx context.Context, content string, send func(string) error) error {
	chunks := splitMessage(content, maxMessageLength)
	for n, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("part %d of %d: %w", n+1, len(chunks), err)
		}
		if err := send(chunk); err != nil {
			return fmt.Errorf("part %d of %d: %w", n+1, len(chunks), err)
		}
	}
	return nil
}
