// Package kv provides the expiring key-value store shared by the spam
// counter, the guild configuration cache, command cooldowns and dashboard
// sessions.
package kv

import (
	"context"
	"time"
)

// Store is implemented by Redis for multi-instance deployments and by Memory
// for a single process.
type Store interface {
	// Hit records one event for key and returns how many events fall inside
	// the trailing window, including this one.
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A ttl of zero keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Take returns and removes key in one step. Of several concurrent
	// callers only one sees the value.
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	SpamPrefix        = "spam:"
	GuildConfigPrefix = "guildconfig:"
	CooldownPrefix    = "cooldown:"
	SessionPrefix     = "session:"
	StatePrefix       = "oauthstate:"
	RatePrefix        = "ratelimit:"
)

func SpamKey(guildID, userID string) string {
	return SpamPrefix + guildID + ":" + userID
}

func GuildConfigKey(guildID string) string {
	return GuildConfigPrefix + guildID
}

func CooldownKey(command, userID string) string {
	return CooldownPrefix + command + ":" + userID
}

func SessionKey(id string) string {
	return SessionPrefix + id
}

func StateKey(state string) string {
	return StatePrefix + state
}

func RateKey(scope, client string) string {
	return RatePrefix + scope + ":" + client
}
