// Package automod inspects guild messages against the per-guild filter
// configuration and routes violations to the moderation service.
package automod

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/kv"
	"guildwarden/internal/moderation"
)

type Message struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorBot   bool
	AuthorRoles []string
	Content     string
}

type ConfigSource interface {
	AutoMod(ctx context.Context, guildID string) (guildconfig.AutoModConfig, bool, error)
}

type Moderator interface {
	Execute(ctx context.Context, req moderation.Request) moderation.Result
	Record(ctx context.Context, req moderation.Request)
}

type MessageDeleter interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type Engine struct {
	config  ConfigSource
	counter kv.Store
	mod     Moderator
	deleter MessageDeleter
	logger  *zap.Logger
}

func NewEngine(config ConfigSource, counter kv.Store, mod Moderator, deleter MessageDeleter, logger *zap.Logger) *Engine {
	return &Engine{
		config:  config,
		counter: counter,
		mod:     mod,
		deleter: deleter,
		logger:  logger.Named("automod"),
	}
}

// HandleMessage runs every enabled filter against msg and reports whether
// any of them triggered. Bots, unconfigured guilds and ignored channels or
// roles are skipped without side effects.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) bool {
	if msg.AuthorBot || msg.GuildID == "" || msg.AuthorID == "" {
		return false
	}
	cfg, ok, err := e.config.AutoMod(ctx, msg.GuildID)
	if err != nil {
		e.logger.Warn("Failed to load automod config", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return false
	}
	if !ok || !cfg.Enabled {
		return false
	}
	if contains(cfg.IgnoredChannels, msg.ChannelID) || containsAny(cfg.IgnoredRoles, msg.AuthorRoles) {
		return false
	}

	run := &messageRun{engine: e, msg: msg}
	filters := []filter{e.spamFilter, wordFilter, linkFilter, capsFilter}

	p := pool.NewWithResults[bool]()
	for _, f := range filters {
		p.Go(func() bool {
			v := f(ctx, cfg, msg)
			if !v.triggered {
				return false
			}
			run.act(ctx, v)
			return true
		})
	}

	triggered := false
	for _, hit := range p.Wait() {
		triggered = triggered || hit
	}
	return triggered
}

// messageRun holds per-message state shared by concurrently acting filters.
type messageRun struct {
	engine     *Engine
	msg        Message
	deleteOnce sync.Once
}

func (r *messageRun) act(ctx context.Context, v verdict) {
	e := r.engine
	action, err := moderation.ParseAction(v.action)
	if err != nil {
		e.logger.Warn("Invalid automod action, deleting only",
			zap.String("guild_id", r.msg.GuildID), zap.String("filter", v.filter), zap.Error(err))
		action = moderation.Delete
	}

	e.logger.Info("AutoMod filter triggered",
		zap.String("guild_id", r.msg.GuildID),
		zap.String("channel_id", r.msg.ChannelID),
		zap.String("user_id", r.msg.AuthorID),
		zap.String("filter", v.filter),
		zap.String("action", action.String()))

	r.deleteOnce.Do(func() {
		if err := e.deleter.DeleteMessage(ctx, r.msg.ChannelID, r.msg.MessageID); err != nil {
			e.logger.Debug("AutoMod delete failed", zap.String("message_id", r.msg.MessageID), zap.Error(err))
		}
	})

	req := moderation.Request{
		GuildID:   r.msg.GuildID,
		TargetID:  r.msg.AuthorID,
		Action:    action,
		Reason:    "AutoMod: " + v.reason,
		ChannelID: r.msg.ChannelID,
		MessageID: r.msg.MessageID,
	}
	if action == moderation.Mute && v.muteMinutes > 0 {
		req.Duration = time.Duration(v.muteMinutes) * time.Minute
	}

	if action == moderation.Delete {
		e.mod.Record(ctx, req)
		return
	}
	if result := e.mod.Execute(ctx, req); result.Err != nil {
		e.logger.Warn("AutoMod action failed",
			zap.String("guild_id", r.msg.GuildID),
			zap.String("filter", v.filter),
			zap.Error(result.Err))
	}
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func containsAny(values, targets []string) bool {
	for _, target := range targets {
		if contains(values, target) {
			return true
		}
	}
	return false
}
