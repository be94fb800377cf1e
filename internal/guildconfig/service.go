// Package guildconfig owns the per-guild configuration document: typed
// access, section-scoped partial updates with validation, and a read-through
// cache in front of Postgres.
package guildconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"guildwarden/internal/kv"
	"guildwarden/internal/storage"
)

type Store interface {
	GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfigRow, error)
	InsertGuildConfigIfMissing(ctx context.Context, guildID string, document []byte) (bool, error)
	UpdateGuildConfig(ctx context.Context, guildID string, defaults []byte, mutate func(current []byte) ([]byte, error)) ([]byte, error)
	SetGuildActive(ctx context.Context, guildID string, active bool) error
}

type Service struct {
	store  Store
	cache  kv.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewService builds the service. cache may be nil, in which case every read
// goes to the store.
func NewService(store Store, cache kv.Store, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{store: store, cache: cache, ttl: ttl, logger: logger.Named("guildconfig")}
}

func (s *Service) loadDocument(ctx context.Context, guildID string) ([]byte, bool, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, kv.GuildConfigKey(guildID))
		if err != nil {
			s.logger.Warn("Config cache read failed", zap.String("guild_id", guildID), zap.Error(err))
		} else if ok {
			return raw, true, nil
		}
	}

	row, err := s.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load config for guild %s: %w", guildID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, kv.GuildConfigKey(guildID), row.Config, s.ttl); err != nil {
			s.logger.Warn("Config cache write failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
	return row.Config, true, nil
}

// Get returns the guild's document with defaults filled in for absent fields.
func (s *Service) Get(ctx context.Context, guildID string) (*GuildConfig, bool, error) {
	raw, ok, err := s.loadDocument(ctx, guildID)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg := Defaults()
	if err := sonic.Unmarshal(raw, &cfg); err != nil {
		return nil, false, fmt.Errorf("decode config for guild %s: %w", guildID, err)
	}
	return &cfg, true, nil
}

// GetSection returns the stored sub-document for section, or nil when the
// guild has no configuration or the section is absent.
func (s *Service) GetSection(ctx context.Context, guildID, name string) (map[string]any, error) {
	sec, err := lookupSection(name)
	if err != nil {
		return nil, err
	}
	raw, ok, err := s.loadDocument(ctx, guildID)
	if err != nil || !ok {
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return sec.extract(doc), nil
}

// UpdateSection validates partial, merges it into the stored section and
// returns the merged section. Other sections and fields omitted from partial
// keep their values. A *ValidationError means nothing was written.
func (s *Service) UpdateSection(ctx context.Context, guildID, name string, partial map[string]any) (map[string]any, error) {
	sec, err := lookupSection(name)
	if err != nil {
		return nil, err
	}
	defaults, err := sonic.Marshal(Defaults())
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateGuildConfig(ctx, guildID, defaults, func(current []byte) ([]byte, error) {
		doc, err := decodeDocument(current)
		if err != nil {
			return nil, err
		}
		next, err := sec.apply(doc, partial)
		if err != nil {
			return nil, err
		}
		return encodeDocument(next)
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, guildID)

	doc, err := decodeDocument(updated)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Config section updated", zap.String("guild_id", guildID), zap.String("section", name))
	return sec.extract(doc), nil
}

// Initialize writes the default document for a guild seen for the first
// time and reactivates one that was marked inactive.
func (s *Service) Initialize(ctx context.Context, guildID string) (bool, error) {
	defaults, err := sonic.Marshal(Defaults())
	if err != nil {
		return false, err
	}
	created, err := s.store.InsertGuildConfigIfMissing(ctx, guildID, defaults)
	if err != nil {
		return false, fmt.Errorf("initialize config for guild %s: %w", guildID, err)
	}
	if !created {
		if err := s.store.SetGuildActive(ctx, guildID, true); err != nil {
			return false, err
		}
	}
	s.Invalidate(ctx, guildID)
	return created, nil
}

func (s *Service) MarkInactive(ctx context.Context, guildID string) error {
	if err := s.store.SetGuildActive(ctx, guildID, false); err != nil {
		return fmt.Errorf("mark guild %s inactive: %w", guildID, err)
	}
	s.Invalidate(ctx, guildID)
	return nil
}

func (s *Service) MarkActive(ctx context.Context, guildID string) error {
	if err := s.store.SetGuildActive(ctx, guildID, true); err != nil {
		return fmt.Errorf("mark guild %s active: %w", guildID, err)
	}
	s.Invalidate(ctx, guildID)
	return nil
}

// Invalidate drops the cached document. Failures are logged only.
func (s *Service) Invalidate(ctx context.Context, guildID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, kv.GuildConfigKey(guildID)); err != nil {
		s.logger.Warn("Config cache invalidation failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (s *Service) Modules(ctx context.Context, guildID string) (Modules, bool, error) {
	cfg, ok, err := s.Get(ctx, guildID)
	if err != nil || !ok {
		return Modules{}, ok, err
	}
	return cfg.Modules, true, nil
}

// AutoMod returns the automod settings in effect. Enabled is false whenever
// the automod module is switched off.
func (s *Service) AutoMod(ctx context.Context, guildID string) (AutoModConfig, bool, error) {
	cfg, ok, err := s.Get(ctx, guildID)
	if err != nil || !ok {
		return AutoModConfig{}, ok, err
	}
	amod := cfg.Automod
	amod.Enabled = amod.Enabled && cfg.Modules.Automod
	return amod, true, nil
}

// Moderation returns the moderation settings in effect. The mod-log channel
// is blank while the logging module is switched off.
func (s *Service) Moderation(ctx context.Context, guildID string) (ModerationConfig, bool, error) {
	cfg, ok, err := s.Get(ctx, guildID)
	if err != nil || !ok {
		return ModerationConfig{}, ok, err
	}
	mod := cfg.Moderation
	if !cfg.Modules.Logging {
		mod.ModLogChannel = ""
	}
	return mod, true, nil
}

func (s *Service) Welcome(ctx context.Context, guildID string) (WelcomeConfig, bool, error) {
	cfg, ok, err := s.Get(ctx, guildID)
	if err != nil || !ok {
		return WelcomeConfig{}, ok, err
	}
	return cfg.Welcome, true, nil
}
