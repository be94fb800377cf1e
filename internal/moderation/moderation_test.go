package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/storage"
)

const (
	guildID  = "100000000000000001"
	userID   = "200000000000000002"
	modID    = "300000000000000003"
	logChan  = "400000000000000004"
	textChan = "500000000000000005"
)

type fakePlatform struct {
	mu       sync.Mutex
	calls    []string
	timeouts []time.Time
	embeds   map[string][]*discordgo.MessageEmbed
	dms      []*discordgo.MessageEmbed
	fail     error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{embeds: make(map[string][]*discordgo.MessageEmbed)}
}

func (f *fakePlatform) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.fail
}

func (f *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return f.record("delete:" + channelID + "/" + messageID)
}

func (f *fakePlatform) Timeout(_ context.Context, _, _ string, until time.Time, _ string) error {
	f.mu.Lock()
	f.timeouts = append(f.timeouts, until)
	f.mu.Unlock()
	return f.record("timeout")
}

func (f *fakePlatform) Kick(context.Context, string, string, string) error {
	return f.record("kick")
}

func (f *fakePlatform) Ban(context.Context, string, string, string) error {
	return f.record("ban")
}

func (f *fakePlatform) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds[channelID] = append(f.embeds[channelID], embed)
	return nil
}

func (f *fakePlatform) DirectMessage(_ context.Context, _ string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	f.dms = append(f.dms, embed)
	f.mu.Unlock()
	return f.record("dm")
}

type fakeStore struct {
	mu       sync.Mutex
	warnings []storage.Warning
	actions  []storage.ModAction
}

func (f *fakeStore) AddWarning(_ context.Context, w storage.Warning) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.ID = int64(len(f.warnings) + 1)
	w.Active = true
	f.warnings = append(f.warnings, w)
	return w.ID, nil
}

func (f *fakeStore) CountActiveWarnings(_ context.Context, guild, user string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, w := range f.warnings {
		if w.GuildID == guild && w.UserID == user && w.Active {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListWarnings(_ context.Context, guild, user string) ([]storage.Warning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Warning
	for _, w := range f.warnings {
		if w.GuildID == guild && w.UserID == user {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStore) RevokeWarning(_ context.Context, guild string, id int64, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.warnings {
		if f.warnings[i].ID == id && f.warnings[i].GuildID == guild && f.warnings[i].Active {
			f.warnings[i].Active = false
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) AddModAction(_ context.Context, action storage.ModAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

type staticConfig guildconfig.ModerationConfig

func (c staticConfig) Moderation(context.Context, string) (guildconfig.ModerationConfig, bool, error) {
	return guildconfig.ModerationConfig(c), true, nil
}

func newTestService(cfg guildconfig.ModerationConfig) (*Service, *fakeStore, *fakePlatform, time.Time) {
	store := &fakeStore{}
	platform := newFakePlatform()
	svc := NewService(store, platform, staticConfig(cfg), EmbedColors{Action: 1, Warning: 2, Error: 3}, zap.NewNop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	svc.modlog.now = svc.now
	return svc, store, platform, now
}

func TestParseAction(t *testing.T) {
	for _, action := range []Action{Delete, Warn, Mute, Kick, Ban} {
		parsed, err := ParseAction(action.String())
		require.NoError(t, err)
		assert.Equal(t, action, parsed)
	}
	parsed, err := ParseAction("Timeout")
	require.NoError(t, err)
	assert.Equal(t, Mute, parsed)

	_, err = ParseAction("nuke")
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestExecuteRejectsUnknownAction(t *testing.T) {
	svc, store, _, _ := newTestService(guildconfig.ModerationConfig{})
	result := svc.Execute(context.Background(), Request{GuildID: guildID, TargetID: userID, Action: Action(42)})
	assert.False(t, result.Success)
	require.ErrorIs(t, result.Err, ErrUnknownAction)
	assert.Empty(t, store.actions)
}

func TestWarnEscalatesAtThreshold(t *testing.T) {
	svc, store, platform, now := newTestService(guildconfig.ModerationConfig{
		Escalation: guildconfig.Escalation{Enabled: true, MuteAt: 2, MuteMinutes: 30, KickAt: 3, BanAt: 4},
	})
	ctx := context.Background()
	warn := Request{GuildID: guildID, TargetID: userID, ModeratorID: modID, Action: Warn, Reason: "spam"}

	first := svc.Execute(ctx, warn)
	require.True(t, first.Success)
	assert.Equal(t, 1, first.WarningCount)
	assert.Zero(t, first.Escalated)

	second := svc.Execute(ctx, warn)
	require.True(t, second.Success)
	assert.Equal(t, Mute, second.Escalated)
	require.Len(t, platform.timeouts, 1)
	assert.Equal(t, now.Add(30*time.Minute), platform.timeouts[0])

	third := svc.Execute(ctx, warn)
	assert.Equal(t, Kick, third.Escalated)

	require.Len(t, store.actions, 5)
	assert.Equal(t, "mute", store.actions[2].Action)
	assert.Equal(t, 30*time.Minute, store.actions[2].Duration)
	assert.Equal(t, "kick", store.actions[4].Action)
}

func TestEscalationPrefersHighestAction(t *testing.T) {
	action, _, ok := escalationFor(guildconfig.Escalation{Enabled: true, MuteAt: 3, KickAt: 3, BanAt: 3}, 3)
	require.True(t, ok)
	assert.Equal(t, Ban, action)

	_, _, ok = escalationFor(guildconfig.Escalation{Enabled: false, MuteAt: 1}, 1)
	assert.False(t, ok)

	_, _, ok = escalationFor(guildconfig.Escalation{Enabled: true, MuteAt: 2}, 3)
	assert.False(t, ok, "thresholds fire only when reached exactly")
}

func TestRevokedWarningsDoNotCount(t *testing.T) {
	svc, _, platform, _ := newTestService(guildconfig.ModerationConfig{
		Escalation: guildconfig.Escalation{Enabled: true, MuteAt: 2, MuteMinutes: 10},
	})
	ctx := context.Background()
	warn := Request{GuildID: guildID, TargetID: userID, ModeratorID: modID, Action: Warn}

	require.True(t, svc.Execute(ctx, warn).Success)
	revoked, err := svc.RevokeWarning(ctx, guildID, 1, modID)
	require.NoError(t, err)
	require.True(t, revoked)

	result := svc.Execute(ctx, warn)
	assert.Equal(t, 1, result.WarningCount)
	assert.Empty(t, platform.timeouts)

	revoked, err = svc.RevokeWarning(ctx, guildID, 1, modID)
	require.NoError(t, err)
	assert.False(t, revoked)

	warnings, err := svc.Warnings(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)
}

func TestMuteDurationIsClamped(t *testing.T) {
	svc, _, platform, now := newTestService(guildconfig.ModerationConfig{})
	ctx := context.Background()

	svc.Execute(ctx, Request{GuildID: guildID, TargetID: userID, Action: Mute})
	svc.Execute(ctx, Request{GuildID: guildID, TargetID: userID, Action: Mute, Duration: 60 * 24 * time.Hour})

	require.Len(t, platform.timeouts, 2)
	assert.Equal(t, now.Add(DefaultMuteDuration), platform.timeouts[0])
	assert.Equal(t, now.Add(MaxMuteDuration), platform.timeouts[1])
}

func TestDeleteRequiresMessage(t *testing.T) {
	svc, store, platform, _ := newTestService(guildconfig.ModerationConfig{})
	result := svc.Execute(context.Background(), Request{GuildID: guildID, TargetID: userID, Action: Delete})
	require.Error(t, result.Err)
	assert.Empty(t, platform.calls)
	assert.Empty(t, store.actions)

	result = svc.Execute(context.Background(), Request{GuildID: guildID, TargetID: userID, Action: Delete, ChannelID: textChan, MessageID: "9"})
	require.NoError(t, result.Err)
	assert.Equal(t, []string{"delete:" + textChan + "/9"}, platform.calls)
}

func TestPlatformFailureIsReported(t *testing.T) {
	svc, store, platform, _ := newTestService(guildconfig.ModerationConfig{ModLogChannel: logChan})
	platform.fail = errors.New("missing permissions")

	result := svc.Execute(context.Background(), Request{GuildID: guildID, TargetID: userID, Action: Kick})
	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Empty(t, store.actions)
	assert.Empty(t, platform.embeds[logChan])
}

func TestModLogAndDirectMessage(t *testing.T) {
	svc, _, platform, _ := newTestService(guildconfig.ModerationConfig{ModLogChannel: logChan, DMOnAction: true})

	result := svc.Execute(context.Background(), Request{GuildID: guildID, TargetID: userID, ModeratorID: modID, Action: Ban, Reason: "raid"})
	require.True(t, result.Success)

	assert.Equal(t, []string{"dm", "ban"}, platform.calls, "target is messaged before they lose access")
	require.Len(t, platform.embeds[logChan], 1)
	embed := platform.embeds[logChan][0]
	assert.Equal(t, "Banned", embed.Title)
	assert.Equal(t, 1, embed.Color)
	assert.Equal(t, "raid", embed.Fields[2].Value)
}

func TestModLogSkippedWithoutChannel(t *testing.T) {
	svc, store, platform, _ := newTestService(guildconfig.ModerationConfig{})
	result := svc.Execute(context.Background(), Request{GuildID: guildID, TargetID: userID, Action: Warn})
	require.True(t, result.Success)
	assert.Empty(t, platform.embeds)
	assert.Len(t, store.actions, 1)
}

func TestRecordDoesNotCallPlatform(t *testing.T) {
	svc, store, platform, _ := newTestService(guildconfig.ModerationConfig{ModLogChannel: logChan})
	svc.Record(context.Background(), Request{GuildID: guildID, TargetID: userID, Action: Delete, Reason: "AutoMod: blocked word"})

	assert.Empty(t, platform.calls)
	require.Len(t, store.actions, 1)
	assert.Equal(t, "delete", store.actions[0].Action)
	require.Len(t, platform.embeds[logChan], 1)
	assert.Equal(t, "Message deleted", platform.embeds[logChan][0].Title)
}
