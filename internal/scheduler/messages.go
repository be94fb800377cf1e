package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/storage"
)

type CreateRequest struct {
	GuildID         string     `json:"guildId" validate:"snowflake"`
	ChannelID       string     `json:"channelId" validate:"snowflake"`
	Message         string     `json:"message" validate:"required,max=2000"`
	Embed           bool       `json:"embed"`
	EmbedColor      string     `json:"embedColor" validate:"omitempty,hexrgb"`
	RunAt           *time.Time `json:"runAt"`
	IntervalMinutes int        `json:"intervalMinutes" validate:"omitempty,min=1,max=525600"`
	CronExpression  string     `json:"cronExpression" validate:"omitempty,max=120"`
	CreatedBy       string     `json:"createdBy" validate:"snowflake"`
}

// Create stores a new scheduled message and returns its id. At least one of
// RunAt, IntervalMinutes or CronExpression must be set.
func (s *Service) Create(ctx context.Context, req CreateRequest) (int64, error) {
	if req.RunAt == nil && req.IntervalMinutes == 0 && req.CronExpression == "" {
		return 0, ErrNoSchedule
	}
	if err := guildconfig.ValidateStruct(req); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	msg := storage.ScheduledMessage{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Message:   req.Message,
		Embed:     req.Embed,
		Enabled:   true,
		CreatedBy: req.CreatedBy,
	}
	if req.EmbedColor != "" {
		color := req.EmbedColor
		msg.EmbedColor = &color
	}
	if req.IntervalMinutes > 0 {
		interval := req.IntervalMinutes
		msg.IntervalMinutes = &interval
		msg.NextRun = now.Add(time.Duration(interval) * time.Minute)
	}
	if req.CronExpression != "" {
		schedule, err := cronParser.Parse(req.CronExpression)
		if err != nil {
			return 0, &guildconfig.ValidationError{Errors: []guildconfig.FieldError{{
				Field:   "cronExpression",
				Message: "is not a valid cron expression: " + err.Error(),
			}}}
		}
		expr := req.CronExpression
		msg.CronExpression = &expr
		if msg.NextRun.IsZero() {
			msg.NextRun = schedule.Next(now)
		}
	}
	if req.RunAt != nil {
		msg.NextRun = req.RunAt.UTC()
	}

	id, err := s.store.CreateScheduledMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("create scheduled message: %w", err)
	}
	s.logger.Info("Scheduled message created",
		zap.Int64("scheduled_id", id),
		zap.String("guild_id", req.GuildID),
		zap.String("channel_id", req.ChannelID),
		zap.Time("next_run", msg.NextRun))
	return id, nil
}

func (s *Service) Get(ctx context.Context, guildID string, id int64) (storage.ScheduledMessage, error) {
	msg, err := s.store.GetScheduledMessage(ctx, guildID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ScheduledMessage{}, ErrNotFound
	}
	return msg, err
}

func (s *Service) List(ctx context.Context, guildID string) ([]storage.ScheduledMessage, error) {
	return s.store.ListScheduledMessages(ctx, guildID)
}

// Delete removes the message with id in guildID. It reports false, without
// error, when there is no such message.
func (s *Service) Delete(ctx context.Context, guildID string, id int64) (bool, error) {
	deleted, err := s.store.DeleteScheduledMessage(ctx, guildID, id)
	if err != nil {
		return false, fmt.Errorf("delete scheduled message %d: %w", id, err)
	}
	if deleted {
		s.logger.Info("Scheduled message deleted", zap.Int64("scheduled_id", id), zap.String("guild_id", guildID))
	}
	return deleted, nil
}

// DisableGuild soft-disables every scheduled message of a guild the bot has
// left.
func (s *Service) DisableGuild(ctx context.Context, guildID string) (int64, error) {
	count, err := s.store.DisableGuildScheduledMessages(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("disable scheduled messages for guild %s: %w", guildID, err)
	}
	if count > 0 {
		s.logger.Info("Scheduled messages disabled", zap.String("guild_id", guildID), zap.Int64("count", count))
	}
	return count, nil
}
