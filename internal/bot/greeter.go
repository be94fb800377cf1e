package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/placeholders"
	"guildwarden/internal/scheduler"
	"guildwarden/internal/utils"
)

type GuildConfigs interface {
	Get(ctx context.Context, guildID string) (*guildconfig.GuildConfig, bool, error)
}

type GreetPlatform interface {
	Send(ctx context.Context, channelID string, msg scheduler.Outgoing) error
	DirectText(ctx context.Context, userID, content string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

type Member struct {
	ID       string
	Username string
	Bot      bool
}

// Greeter posts welcome and leave messages and assigns auto-roles.
type Greeter struct {
	configs   GuildConfigs
	directory scheduler.Directory
	platform  GreetPlatform
	logger    *zap.Logger
	now       func() time.Time
}

func NewGreeter(configs GuildConfigs, directory scheduler.Directory, platform GreetPlatform, logger *zap.Logger) *Greeter {
	return &Greeter{
		configs:   configs,
		directory: directory,
		platform:  platform,
		logger:    logger.Named("welcome"),
		now:       time.Now,
	}
}

func (g *Greeter) welcomeConfig(ctx context.Context, guildID string) (guildconfig.WelcomeConfig, bool) {
	cfg, ok, err := g.configs.Get(ctx, guildID)
	if err != nil {
		g.logger.Warn("Failed to load welcome config", zap.String("guild_id", guildID), zap.Error(err))
		return guildconfig.WelcomeConfig{}, false
	}
	if !ok || !cfg.Modules.Welcome {
		return guildconfig.WelcomeConfig{}, false
	}
	return cfg.Welcome, true
}

func (g *Greeter) vars(ctx context.Context, guildID string, member Member) placeholders.Vars {
	guild, _ := g.directory.Guild(ctx, guildID)
	return placeholders.Vars{
		Server:      guild.Name,
		MemberCount: guild.MemberCount,
		Now:         g.now(),
		User:        member.Username,
		UserMention: "<@" + member.ID + ">",
	}
}

func (g *Greeter) MemberJoined(ctx context.Context, guildID string, member Member) {
	logger := g.logger.With(zap.String("guild_id", guildID), zap.String("user_id", member.ID))
	if created, ok := utils.SnowflakeTime(member.ID); ok {
		logger.Debug("Member joined", zap.Duration("account_age", g.now().Sub(created)))
	}

	w, ok := g.welcomeConfig(ctx, guildID)
	if !ok {
		return
	}
	vars := g.vars(ctx, guildID, member)

	if w.ChannelID != "" && w.Message != "" {
		msg := scheduler.Outgoing{Content: placeholders.Render(w.Message, vars), Embed: w.Embed}
		if color, ok := scheduler.ParseColor(w.EmbedColor); ok {
			msg.Color = color
		}
		if err := g.platform.Send(ctx, w.ChannelID, msg); err != nil {
			logger.Warn("Welcome message failed", zap.String("channel_id", w.ChannelID), zap.Error(err))
		}
	}
	if w.DMMessage != "" && !member.Bot {
		if err := g.platform.DirectText(ctx, member.ID, placeholders.Render(w.DMMessage, vars)); err != nil {
			logger.Debug("Welcome DM failed", zap.Error(err))
		}
	}
	for _, roleID := range w.AutoRoles {
		if err := g.platform.AddRole(ctx, guildID, member.ID, roleID); err != nil {
			logger.Warn("Auto-role failed", zap.String("role_id", roleID), zap.Error(err))
		}
	}
}

func (g *Greeter) MemberLeft(ctx context.Context, guildID string, member Member) {
	w, ok := g.welcomeConfig(ctx, guildID)
	if !ok || w.LeaveChannelID == "" || w.LeaveMessage == "" {
		return
	}
	msg := scheduler.Outgoing{Content: placeholders.Render(w.LeaveMessage, g.vars(ctx, guildID, member))}
	if err := g.platform.Send(ctx, w.LeaveChannelID, msg); err != nil {
		g.logger.Warn("Leave message failed",
			zap.String("guild_id", guildID),
			zap.String("channel_id", w.LeaveChannelID),
			zap.Error(err))
	}
}
