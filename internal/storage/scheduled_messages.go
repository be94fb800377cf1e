package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type ScheduledMessage struct {
	ID              int64
	GuildID         string
	ChannelID       string
	Message         string
	Embed           bool
	EmbedColor      *string
	CronExpression  *string
	IntervalMinutes *int
	NextRun         time.Time
	LastRun         *time.Time
	Enabled         bool
	FailureCount    int
	LastError       *string
	CreatedBy       string
	CreatedAt       time.Time
}

const scheduledColumns = `id, guild_id, channel_id, message, embed, embed_color, cron_expression,
	interval_minutes, next_run, last_run, enabled, failure_count, last_error, created_by, created_at`

func scanScheduled(row pgx.Row) (ScheduledMessage, error) {
	var msg ScheduledMessage
	err := row.Scan(
		&msg.ID,
		&msg.GuildID,
		&msg.ChannelID,
		&msg.Message,
		&msg.Embed,
		&msg.EmbedColor,
		&msg.CronExpression,
		&msg.IntervalMinutes,
		&msg.NextRun,
		&msg.LastRun,
		&msg.Enabled,
		&msg.FailureCount,
		&msg.LastError,
		&msg.CreatedBy,
		&msg.CreatedAt,
	)
	return msg, err
}

func collectScheduled(rows pgx.Rows) ([]ScheduledMessage, error) {
	defer rows.Close()
	var messages []ScheduledMessage
	for rows.Next() {
		msg, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) CreateScheduledMessage(ctx context.Context, msg ScheduledMessage) (int64, error) {
	return retry(ctx, func(ctx context.Context) (int64, error) {
		var id int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO scheduled_messages (
				guild_id, channel_id, message, embed, embed_color, cron_expression,
				interval_minutes, next_run, enabled, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
			RETURNING id`,
			msg.GuildID,
			msg.ChannelID,
			msg.Message,
			msg.Embed,
			msg.EmbedColor,
			msg.CronExpression,
			msg.IntervalMinutes,
			msg.NextRun,
			msg.CreatedBy,
		).Scan(&id)
		return id, err
	})
}

func (s *Store) GetScheduledMessage(ctx context.Context, guildID string, id int64) (ScheduledMessage, error) {
	return retry(ctx, func(ctx context.Context) (ScheduledMessage, error) {
		row := s.pool.QueryRow(ctx, `SELECT `+scheduledColumns+`
			FROM scheduled_messages WHERE guild_id = $1 AND id = $2`, guildID, id)
		msg, err := scanScheduled(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ScheduledMessage{}, ErrNotFound
		}
		return msg, err
	})
}

func (s *Store) ListScheduledMessages(ctx context.Context, guildID string) ([]ScheduledMessage, error) {
	return retry(ctx, func(ctx context.Context) ([]ScheduledMessage, error) {
		rows, err := s.pool.Query(ctx, `SELECT `+scheduledColumns+`
			FROM scheduled_messages WHERE guild_id = $1 ORDER BY next_run`, guildID)
		if err != nil {
			return nil, err
		}
		return collectScheduled(rows)
	})
}

// ListDueScheduledMessages returns enabled rows whose next_run is at or before
// now. A nil guildIDs slice means every guild.
func (s *Store) ListDueScheduledMessages(ctx context.Context, now time.Time, guildIDs []string) ([]ScheduledMessage, error) {
	return retry(ctx, func(ctx context.Context) ([]ScheduledMessage, error) {
		var (
			rows pgx.Rows
			err  error
		)
		if guildIDs == nil {
			rows, err = s.pool.Query(ctx, `SELECT `+scheduledColumns+`
				FROM scheduled_messages
				WHERE enabled AND next_run <= $1
				ORDER BY next_run`, now)
		} else {
			rows, err = s.pool.Query(ctx, `SELECT `+scheduledColumns+`
				FROM scheduled_messages
				WHERE enabled AND next_run <= $1 AND guild_id = ANY($2)
				ORDER BY next_run`, now, guildIDs)
		}
		if err != nil {
			return nil, err
		}
		return collectScheduled(rows)
	})
}

func (s *Store) DeleteScheduledMessage(ctx context.Context, guildID string, id int64) (bool, error) {
	return retry(ctx, func(ctx context.Context) (bool, error) {
		tag, err := s.pool.Exec(ctx, `DELETE FROM scheduled_messages WHERE guild_id = $1 AND id = $2`, guildID, id)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	})
}

// MarkScheduledMessageSent records a successful delivery and clears the
// failure counter.
func (s *Store) MarkScheduledMessageSent(ctx context.Context, id int64, lastRun, nextRun time.Time, enabled bool) error {
	return retryNoResult(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			UPDATE scheduled_messages
			SET last_run = $2, next_run = $3, enabled = $4, failure_count = 0, last_error = NULL
			WHERE id = $1`, id, lastRun, nextRun, enabled)
		return err
	})
}

// RecordScheduledMessageFailure bumps the failure counter and disables the row
// once it reaches maxFailures (0 disables the limit). Reports whether the row
// was disabled by this call.
func (s *Store) RecordScheduledMessageFailure(ctx context.Context, id int64, reason string, maxFailures int) (bool, error) {
	return retry(ctx, func(ctx context.Context) (bool, error) {
		var enabled bool
		err := s.pool.QueryRow(ctx, `
			UPDATE scheduled_messages
			SET failure_count = failure_count + 1,
				last_error = $2,
				enabled = CASE WHEN $3 > 0 AND failure_count + 1 >= $3 THEN FALSE ELSE enabled END
			WHERE id = $1
			RETURNING enabled`, id, reason, maxFailures).Scan(&enabled)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, ErrNotFound
			}
			return false, err
		}
		return !enabled, nil
	})
}

func (s *Store) DisableGuildScheduledMessages(ctx context.Context, guildID string) (int64, error) {
	return retry(ctx, func(ctx context.Context) (int64, error) {
		tag, err := s.pool.Exec(ctx, `UPDATE scheduled_messages SET enabled = FALSE WHERE guild_id = $1 AND enabled`, guildID)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}
