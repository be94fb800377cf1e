package storage

import (
	"context"
	"time"
)

type Warning struct {
	ID          int64
	GuildID     string
	UserID      string
	ModeratorID string
	Reason      string
	Active      bool
	CreatedAt   time.Time
}

type ModAction struct {
	ID          int64
	GuildID     string
	TargetID    string
	ModeratorID string
	Action      string
	Reason      string
	Duration    time.Duration
	CreatedAt   time.Time
}

func (s *Store) AddWarning(ctx context.Context, w Warning) (int64, error) {
	return retry(ctx, func(ctx context.Context) (int64, error) {
		var id int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO warnings (guild_id, user_id, moderator_id, reason)
			VALUES ($1, $2, $3, $4)
			RETURNING id`, w.GuildID, w.UserID, w.ModeratorID, w.Reason).Scan(&id)
		return id, err
	})
}

func (s *Store) CountActiveWarnings(ctx context.Context, guildID, userID string) (int, error) {
	return retry(ctx, func(ctx context.Context) (int, error) {
		var count int
		err := s.pool.QueryRow(ctx, `
			SELECT count(*) FROM warnings
			WHERE guild_id = $1 AND user_id = $2 AND active`, guildID, userID).Scan(&count)
		return count, err
	})
}

func (s *Store) ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	return retry(ctx, func(ctx context.Context) ([]Warning, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT id, guild_id, user_id, moderator_id, reason, active, created_at
			FROM warnings
			WHERE guild_id = $1 AND user_id = $2
			ORDER BY created_at DESC`, guildID, userID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var warnings []Warning
		for rows.Next() {
			var w Warning
			if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.ModeratorID, &w.Reason, &w.Active, &w.CreatedAt); err != nil {
				return nil, err
			}
			warnings = append(warnings, w)
		}
		return warnings, rows.Err()
	})
}

// RevokeWarning deactivates one warning of the guild. Reports false when no
// active warning matched.
func (s *Store) RevokeWarning(ctx context.Context, guildID string, id int64, moderatorID string) (bool, error) {
	return retry(ctx, func(ctx context.Context) (bool, error) {
		tag, err := s.pool.Exec(ctx, `
			UPDATE warnings SET active = FALSE, revoked_at = now(), revoked_by = $3
			WHERE guild_id = $1 AND id = $2 AND active`, guildID, id, moderatorID)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	})
}

func (s *Store) AddModAction(ctx context.Context, action ModAction) error {
	return retryNoResult(ctx, func(ctx context.Context) error {
		var seconds *int64
		if action.Duration > 0 {
			value := int64(action.Duration / time.Second)
			seconds = &value
		}
		createdAt := action.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO mod_actions (guild_id, target_id, moderator_id, action, reason, duration_seconds, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			action.GuildID, action.TargetID, action.ModeratorID, action.Action, action.Reason, seconds, createdAt)
		return err
	})
}

func (s *Store) ListModActions(ctx context.Context, guildID string, since time.Time) ([]ModAction, error) {
	return retry(ctx, func(ctx context.Context) ([]ModAction, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT id, guild_id, target_id, moderator_id, action, reason, COALESCE(duration_seconds, 0), created_at
			FROM mod_actions
			WHERE guild_id = $1 AND created_at >= $2
			ORDER BY created_at DESC`, guildID, since)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var actions []ModAction
		for rows.Next() {
			var a ModAction
			var seconds int64
			if err := rows.Scan(&a.ID, &a.GuildID, &a.TargetID, &a.ModeratorID, &a.Action, &a.Reason, &seconds, &a.CreatedAt); err != nil {
				return nil, err
			}
			a.Duration = time.Duration(seconds) * time.Second
			actions = append(actions, a)
		}
		return actions, rows.Err()
	})
}
