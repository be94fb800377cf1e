package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type GuildConfigRow struct {
	GuildID   string
	Config    []byte
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	LeftAt    *time.Time
}

func (s *Store) GetGuildConfig(ctx context.Context, guildID string) (GuildConfigRow, error) {
	return retry(ctx, func(ctx context.Context) (GuildConfigRow, error) {
		row := s.pool.QueryRow(ctx, `
			SELECT guild_id, config::text, active, created_at, updated_at, left_at
			FROM guild_configs WHERE guild_id = $1`, guildID)

		var result GuildConfigRow
		var raw string
		err := row.Scan(&result.GuildID, &raw, &result.Active, &result.CreatedAt, &result.UpdatedAt, &result.LeftAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return GuildConfigRow{}, ErrNotFound
			}
			return GuildConfigRow{}, err
		}
		result.Config = []byte(raw)
		return result, nil
	})
}

// InsertGuildConfigIfMissing stores document as the guild's configuration
// unless a row already exists. Reports whether a row was created.
func (s *Store) InsertGuildConfigIfMissing(ctx context.Context, guildID string, document []byte) (bool, error) {
	return retry(ctx, func(ctx context.Context) (bool, error) {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO guild_configs (guild_id, config)
			VALUES ($1, $2::jsonb)
			ON CONFLICT (guild_id) DO NOTHING`, guildID, string(document))
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() == 1, nil
	})
}

// UpdateGuildConfig runs mutate against the locked configuration row inside a
// transaction and writes back whatever it returns. A missing row is created
// from defaults first.
func (s *Store) UpdateGuildConfig(ctx context.Context, guildID string, defaults []byte, mutate func(current []byte) ([]byte, error)) ([]byte, error) {
	return retry(ctx, func(ctx context.Context) ([]byte, error) {
		var updated []byte
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `
				INSERT INTO guild_configs (guild_id, config)
				VALUES ($1, $2::jsonb)
				ON CONFLICT (guild_id) DO NOTHING`, guildID, string(defaults)); err != nil {
				return err
			}

			var raw string
			if err := tx.QueryRow(ctx, `SELECT config::text FROM guild_configs WHERE guild_id = $1 FOR UPDATE`, guildID).Scan(&raw); err != nil {
				return err
			}

			next, err := mutate([]byte(raw))
			if err != nil {
				return err
			}

			if _, err := tx.Exec(ctx, `
				UPDATE guild_configs SET config = $2::jsonb, updated_at = now()
				WHERE guild_id = $1`, guildID, string(next)); err != nil {
				return err
			}
			updated = next
			return nil
		})
		return updated, err
	})
}

// SetGuildActive flips the active flag. Leaving a guild records left_at, the
// configuration itself is kept.
func (s *Store) SetGuildActive(ctx context.Context, guildID string, active bool) error {
	return retryNoResult(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			UPDATE guild_configs
			SET active = $2,
				left_at = CASE WHEN $2 THEN NULL ELSE now() END,
				updated_at = now()
			WHERE guild_id = $1`, guildID, active)
		return err
	})
}
