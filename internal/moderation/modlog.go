package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/storage"
)

type EmbedColors struct {
	Action  int
	Warning int
	Error   int
}

// ModLog records a finished action in mod_actions and mirrors it to the
// guild's mod-log channel. Both writes are best-effort.
type ModLog struct {
	store    Store
	platform Platform
	colors   EmbedColors
	logger   *zap.Logger
	now      func() time.Time
}

func NewModLog(store Store, platform Platform, colors EmbedColors, logger *zap.Logger) *ModLog {
	return &ModLog{store: store, platform: platform, colors: colors, logger: logger, now: time.Now}
}

func (l *ModLog) Record(ctx context.Context, channelID string, entry storage.ModAction) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	if l.store != nil {
		if err := l.store.AddModAction(ctx, entry); err != nil {
			l.logger.Warn("Failed to store mod action",
				zap.String("guild_id", entry.GuildID),
				zap.String("action", entry.Action),
				zap.Error(err))
		}
	}
	l.logger.Info("moderation",
		zap.String("guild_id", entry.GuildID),
		zap.String("user_id", entry.TargetID),
		zap.String("moderator_id", entry.ModeratorID),
		zap.String("action", entry.Action),
		zap.String("reason", entry.Reason))

	if channelID == "" || l.platform == nil {
		return
	}
	if err := l.platform.SendEmbed(ctx, channelID, l.embed(entry)); err != nil {
		l.logger.Debug("Mod-log post failed",
			zap.String("guild_id", entry.GuildID),
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

func (l *ModLog) embed(entry storage.ModAction) *discordgo.MessageEmbed {
	action, err := ParseAction(entry.Action)
	title := entry.Action
	if err == nil {
		title = action.Past()
	}
	color := l.colors.Action
	if action == Warn || action == Delete {
		color = l.colors.Warning
	}

	reason := entry.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: "<@" + entry.TargetID + ">", Inline: true},
		{Name: "Moderator", Value: mention(entry.ModeratorID), Inline: true},
		{Name: "Reason", Value: reason},
	}
	if entry.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: formatDuration(entry.Duration), Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     color,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields:    fields,
	}
}

func mention(userID string) string {
	if userID == "" {
		return "AutoMod"
	}
	return "<@" + userID + ">"
}

func formatDuration(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
}
