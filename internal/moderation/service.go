// Package moderation executes warn, mute, kick, ban and delete actions
// against Discord, records them and applies warning escalation.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/storage"
)

const (
	DefaultMuteDuration = 10 * time.Minute
	// MaxMuteDuration is the longest timeout Discord accepts.
	MaxMuteDuration = 28 * 24 * time.Hour
)

var errNoMessage = errors.New("delete requires a channel and message id")

// Platform is the Discord surface the service acts through.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
	DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

type Store interface {
	AddWarning(ctx context.Context, w storage.Warning) (int64, error)
	CountActiveWarnings(ctx context.Context, guildID, userID string) (int, error)
	ListWarnings(ctx context.Context, guildID, userID string) ([]storage.Warning, error)
	RevokeWarning(ctx context.Context, guildID string, id int64, moderatorID string) (bool, error)
	AddModAction(ctx context.Context, action storage.ModAction) error
}

type ConfigSource interface {
	Moderation(ctx context.Context, guildID string) (guildconfig.ModerationConfig, bool, error)
}

type Request struct {
	GuildID     string
	TargetID    string
	ModeratorID string
	Action      Action
	Reason      string
	Duration    time.Duration
	// ChannelID and MessageID identify the message for Delete.
	ChannelID string
	MessageID string
}

type Result struct {
	Success bool
	Err     error
	// Escalated is the follow-up action a warning triggered, if any.
	Escalated    Action
	WarningCount int
}

type Service struct {
	store    Store
	platform Platform
	config   ConfigSource
	modlog   *ModLog
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, platform Platform, config ConfigSource, colors EmbedColors, logger *zap.Logger) *Service {
	logger = logger.Named("moderation")
	return &Service{
		store:    store,
		platform: platform,
		config:   config,
		modlog:   NewModLog(store, platform, colors, logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Execute(ctx context.Context, req Request) Result {
	if !req.Action.Valid() {
		return Result{Err: fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)}
	}

	cfg, _, err := s.config.Moderation(ctx, req.GuildID)
	if err != nil {
		s.logger.Warn("Failed to load moderation config, using defaults",
			zap.String("guild_id", req.GuildID), zap.Error(err))
		cfg = guildconfig.ModerationConfig{}
	}

	if req.Action == Mute {
		req.Duration = clampMute(req.Duration)
	}
	if cfg.DMOnAction && req.Action != Delete {
		s.notifyTarget(ctx, req)
	}

	var warningID int64
	switch req.Action {
	case Delete:
		err = s.deleteMessage(ctx, req)
	case Warn:
		warningID, err = s.store.AddWarning(ctx, storage.Warning{
			GuildID:     req.GuildID,
			UserID:      req.TargetID,
			ModeratorID: req.ModeratorID,
			Reason:      req.Reason,
		})
	case Mute:
		err = s.platform.Timeout(ctx, req.GuildID, req.TargetID, s.now().Add(req.Duration), req.Reason)
	case Kick:
		err = s.platform.Kick(ctx, req.GuildID, req.TargetID, req.Reason)
	case Ban:
		err = s.platform.Ban(ctx, req.GuildID, req.TargetID, req.Reason)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
	if err != nil {
		s.logger.Warn("Moderation action failed",
			zap.String("guild_id", req.GuildID),
			zap.String("user_id", req.TargetID),
			zap.String("action", req.Action.String()),
			zap.Error(err))
		return Result{Err: fmt.Errorf("%s %s: %w", req.Action, req.TargetID, err)}
	}

	entry := storage.ModAction{
		GuildID:     req.GuildID,
		TargetID:    req.TargetID,
		ModeratorID: req.ModeratorID,
		Action:      req.Action.String(),
		Reason:      req.Reason,
		CreatedAt:   s.now(),
	}
	if req.Action == Mute {
		entry.Duration = req.Duration
	}
	s.modlog.Record(ctx, cfg.ModLogChannel, entry)

	result := Result{Success: true}
	if req.Action == Warn {
		s.logger.Debug("Warning stored", zap.Int64("warning_id", warningID), zap.String("guild_id", req.GuildID))
		s.escalate(ctx, req, cfg.Escalation, &result)
	}
	return result
}

func (s *Service) deleteMessage(ctx context.Context, req Request) error {
	if req.ChannelID == "" || req.MessageID == "" {
		return errNoMessage
	}
	return s.platform.DeleteMessage(ctx, req.ChannelID, req.MessageID)
}

func (s *Service) escalate(ctx context.Context, req Request, esc guildconfig.Escalation, result *Result) {
	count, err := s.store.CountActiveWarnings(ctx, req.GuildID, req.TargetID)
	if err != nil {
		s.logger.Warn("Failed to count warnings", zap.String("guild_id", req.GuildID), zap.String("user_id", req.TargetID), zap.Error(err))
		return
	}
	result.WarningCount = count

	next, duration, ok := escalationFor(esc, count)
	if !ok {
		return
	}
	sub := s.Execute(ctx, Request{
		GuildID:     req.GuildID,
		TargetID:    req.TargetID,
		ModeratorID: req.ModeratorID,
		Action:      next,
		Reason:      fmt.Sprintf("Automatic escalation after %d warnings", count),
		Duration:    duration,
	})
	if sub.Err != nil {
		s.logger.Warn("Escalation failed", zap.String("guild_id", req.GuildID), zap.String("user_id", req.TargetID), zap.Error(sub.Err))
		return
	}
	result.Escalated = next
}

// escalationFor picks the action for exactly count active warnings. The
// highest matching threshold wins, so each fires once when it is reached.
func escalationFor(esc guildconfig.Escalation, count int) (Action, time.Duration, bool) {
	if !esc.Enabled || count <= 0 {
		return 0, 0, false
	}
	switch count {
	case esc.BanAt:
		return Ban, 0, true
	case esc.KickAt:
		return Kick, 0, true
	case esc.MuteAt:
		return Mute, time.Duration(esc.MuteMinutes) * time.Minute, true
	}
	return 0, 0, false
}

func clampMute(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultMuteDuration
	}
	if d > MaxMuteDuration {
		return MaxMuteDuration
	}
	return d
}

func (s *Service) notifyTarget(ctx context.Context, req Request) {
	reason := req.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	embed := &discordgo.MessageEmbed{
		Title:       req.Action.Past(),
		Description: "A moderator took action on your account.",
		Color:       s.modlog.colors.Warning,
		Timestamp:   s.now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: reason},
		},
	}
	if req.Action == Mute {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Duration", Value: formatDuration(req.Duration), Inline: true})
	}
	if err := s.platform.DirectMessage(ctx, req.TargetID, embed); err != nil {
		s.logger.Debug("Direct message failed", zap.String("user_id", req.TargetID), zap.Error(err))
	}
}

func (s *Service) Warnings(ctx context.Context, guildID, userID string) ([]storage.Warning, error) {
	return s.store.ListWarnings(ctx, guildID, userID)
}

// RevokeWarning deactivates a warning. It reports false when no active
// warning with that id exists in the guild.
func (s *Service) RevokeWarning(ctx context.Context, guildID string, id int64, moderatorID string) (bool, error) {
	revoked, err := s.store.RevokeWarning(ctx, guildID, id, moderatorID)
	if err != nil {
		return false, fmt.Errorf("revoke warning %d: %w", id, err)
	}
	if revoked {
		s.logger.Info("Warning revoked", zap.String("guild_id", guildID), zap.Int64("warning_id", id), zap.String("moderator_id", moderatorID))
	}
	return revoked, nil
}

// Record logs an action that already happened elsewhere, such as a message
// AutoMod has deleted itself, without calling the platform again.
func (s *Service) Record(ctx context.Context, req Request) {
	cfg, _, err := s.config.Moderation(ctx, req.GuildID)
	if err != nil {
		s.logger.Warn("Failed to load moderation config", zap.String("guild_id", req.GuildID), zap.Error(err))
	}
	s.modlog.Record(ctx, cfg.ModLogChannel, storage.ModAction{
		GuildID:     req.GuildID,
		TargetID:    req.TargetID,
		ModeratorID: req.ModeratorID,
		Action:      req.Action.String(),
		Reason:      req.Reason,
		Duration:    req.Duration,
		CreatedAt:   s.now(),
	})
}
