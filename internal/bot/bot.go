// Package bot is the Discord front end: slash commands, audit events and reminder
// delivery.
package bot

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"minder/internal/config"
	"minder/internal/manager"
	"minder/internal/settings"
	"minder/internal/status"

	"github.com/bwmarrin/discordgo"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

type Deps struct {
	Manager  *manager.Manager
	Settings *settings.Store
	Status   *status.Recorder
	Clock    clock.Clock
	Log      *zap.Logger
}

type Bot struct {
	cfg       config.Discord
	botCfg    config.BotConfig
	session   *discordgo.Session
	manager   *manager.Manager
	settings  *settings.Store
	status    *status.Recorder
	clk       clock.Clock
	log       *zap.Logger
	dmAllowed map[string]bool

	connected     chan struct{}
	connectedOnce sync.Once

	shutdownCh chan struct{}
	isShutdown bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func New(cfg *config.Config, d Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMembers

	b := newBot(cfg, d)
	b.session = session
	b.log.Info("Discord session created", zap.Int("intents", int(session.Identify.Intents)))
	return b, nil
}

func newBot(cfg *config.Config, d Deps) *Bot {
	dmAllowed := make(map[string]bool, len(cfg.Discord.DMCommands))
	for _, name := range cfg.Discord.DMCommands {
		dmAllowed[name] = true
	}
	return &Bot{
		cfg:        cfg.Discord,
		botCfg:     cfg.Bot,
		manager:    d.Manager,
		settings:   d.Settings,
		status:     d.Status,
		clk:        d.Clock,
		log:        d.Log.Named("bot"),
		dmAllowed:  dmAllowed,
		connected:  make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// SetManager attaches the reminder manager. The manager delivers through the bot, so
// it can only be built after the bot.
func (b *Bot) SetManager(m *manager.Manager) {
	b.manager = m
}

func (b *Bot) registerGuildCommands(guildID string) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := b.registerGuildCommandsOnce(guildID)
		if err == nil {
			return nil
		}
		lastErr = err
		b.log.Warn("Command registration attempt failed",
			zap.String("guild_id", guildID), zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return fmt.Errorf("failed to register commands after %d attempts: %w", maxRetries, lastErr)
}

func (b *Bot) registerGuildCommandsOnce(guildID string) error {
	log := b.log.With(zap.String("guild_id", guildID), zap.String("guild", b.guildName(guildID)))
	log.Info("Registering commands")

	// Overwrite replaces the whole set, removing commands that no longer exist.
	created, err := b.session.ApplicationCommandBulkOverwrite(b.cfg.ClientID, guildID, commands)
	if err != nil {
		return fmt.Errorf("error overwriting commands: %w", err)
	}
	for _, c := range created {
		log.Debug("Registered command", zap.String("command", c.Name))
	}
	return nil
}

// Start connects to Discord and blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.log.Info("Starting bot")

	for {
		_, err := b.session.User("@me")
		if err == nil {
			break
		}
		b.log.Warn("Failed to reach Discord API, retrying in 5 seconds", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}

	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.handleDisconnect)
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleGuildDelete)
	b.session.AddHandler(b.handleMemberAdd)
	b.session.AddHandler(b.handleMemberRemove)
	b.session.AddHandler(b.handleMessageUpdate)
	b.session.AddHandler(b.handleMessageDelete)
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type == discordgo.InteractionApplicationCommand {
			b.handleCommand(s, i)
		}
	})

	for {
		err := b.session.Open()
		if err == nil {
			break
		}
		b.log.Warn("Error opening Discord session, retrying in 5 seconds", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	b.log.Info("Session opened", zap.String("session_id", b.session.State.SessionID))
	b.markConnected()

	<-ctx.Done()
	return b.Shutdown()
}

// Connected is closed once the Discord session is open, so deliveries have somewhere to go.
func (b *Bot) Connected() <-chan struct{} {
	return b.connected
}

func (b *Bot) markConnected() {
	b.connectedOnce.Do(func() { close(b.connected) })
}

// Shutdown waits for running command handlers and closes the session.
func (b *Bot) Shutdown() error {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return nil
	}
	b.isShutdown = true
	close(b.shutdownCh)
	b.mu.Unlock()

	b.log.Info("Waiting for active handlers to complete")
	b.wg.Wait()

	b.status.Log(context.Background(), status.Logoff, "Bot shutting down", nil)

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing Discord session: %w", err)
	}
	b.log.Info("Discord session closed")
	return nil
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	inv := newInvocation(s, i)
	log := b.log.With(inv.fields()...)

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Error("Panic in command handler", zap.Any("panic", r), zap.ByteString("stack", buf[:n]))
			b.respond(s, i, "Error: An internal error occurred")
		}
	}()

	if inv.GuildID == "" && !b.dmAllowed[inv.Command] {
		b.respondImmediately(s, i, fmt.Sprintf("Error: The `/%s` command can only be used in a server", inv.Command))
		return
	}
	if !b.botCfg.AllowsGuild(inv.GuildID) {
		log.Info("Ignoring command from unconfigured guild")
		b.respondImmediately(s, i, "Error: This bot is not configured for this server")
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Error("Error acknowledging interaction", zap.Error(err))
		return
	}

	inv.IsAdmin = b.isAdmin(s, inv.GuildID, inv.UserID)
	b.logCommand(s, inv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b.respond(s, i, b.dispatch(ctx, inv))
}

func (b *Bot) guildName(guildID string) string {
	if g, ok := b.botCfg.Guild(guildID); ok && g.Name != "" {
		return g.Name
	}
	if b.session != nil {
		if g, err := b.session.State.Guild(guildID); err == nil {
			return g.Name
		}
	}
	return guildID
}
