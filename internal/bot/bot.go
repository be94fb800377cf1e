// Package bot connects the gateway session to the AutoMod engine, the
// moderation and scheduler services and the slash command router.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/automod"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg automod.Message) bool
}

type GuildLifecycle interface {
	Initialize(ctx context.Context, guildID string) (bool, error)
	MarkInactive(ctx context.Context, guildID string) error
}

type ScheduleDisabler interface {
	DisableGuild(ctx context.Context, guildID string) (int64, error)
}

type Bot struct {
	session   *discordgo.Session
	router    *Router
	automod   MessageHandler
	greeter   *Greeter
	guilds    GuildLifecycle
	schedules ScheduleDisabler
	logger    *zap.Logger
	ctx       context.Context
}

func New(session *discordgo.Session, router *Router, automod MessageHandler, greeter *Greeter, guilds GuildLifecycle, schedules ScheduleDisabler, logger *zap.Logger) *Bot {
	return &Bot{
		session:   session,
		router:    router,
		automod:   automod,
		greeter:   greeter,
		guilds:    guilds,
		schedules: schedules,
		logger:    logger.Named("bot"),
		ctx:       context.Background(),
	}
}

// Start opens the gateway and registers the slash commands. Event handlers
// run with ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onGuildDelete)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) registerCommands() error {
	defs := b.router.Definitions()
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", defs)
	if err != nil {
		return err
	}
	b.logger.Info("Slash commands registered", zap.Int("count", len(defs)))
	return nil
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("Discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.ID == "" || event.Unavailable {
		return
	}
	created, err := b.guilds.Initialize(b.ctx, event.ID)
	if err != nil {
		b.logger.Error("Failed to initialize guild config", zap.String("guild_id", event.ID), zap.Error(err))
		return
	}
	if created {
		b.logger.Info("Joined new guild", zap.String("guild_id", event.ID), zap.String("name", event.Name))
	}
}

// onGuildDelete handles removal from a guild. Outages arrive as unavailable
// deletes and leave state untouched.
func (b *Bot) onGuildDelete(_ *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Guild == nil || event.ID == "" || event.Unavailable {
		return
	}
	logger := b.logger.With(zap.String("guild_id", event.ID))
	if err := b.guilds.MarkInactive(b.ctx, event.ID); err != nil {
		logger.Error("Failed to mark guild inactive", zap.Error(err))
	}
	disabled, err := b.schedules.DisableGuild(b.ctx, event.ID)
	if err != nil {
		logger.Error("Failed to disable scheduled messages", zap.Error(err))
		return
	}
	logger.Info("Left guild", zap.Int64("scheduled_disabled", disabled))
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Message == nil || event.Author == nil || event.GuildID == "" {
		return
	}
	msg := automod.Message{
		GuildID:   event.GuildID,
		ChannelID: event.ChannelID,
		MessageID: event.ID,
		AuthorID:  event.Author.ID,
		AuthorBot: event.Author.Bot,
		Content:   event.Content,
	}
	if event.Member != nil {
		msg.AuthorRoles = event.Member.Roles
	}
	b.automod.HandleMessage(b.ctx, msg)
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	b.greeter.MemberJoined(b.ctx, event.GuildID, memberOf(event.User))
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	b.greeter.MemberLeft(b.ctx, event.GuildID, memberOf(event.User))
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	reply := b.router.Dispatch(b.ctx, invocationFrom(interaction))
	if err := session.InteractionRespond(interaction.Interaction, responseFor(reply)); err != nil {
		b.logger.Warn("Interaction response failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

func responseFor(reply Reply) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{
		Content: reply.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
	if reply.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

func memberOf(user *discordgo.User) Member {
	return Member{ID: user.ID, Username: user.Username, Bot: user.Bot}
}
