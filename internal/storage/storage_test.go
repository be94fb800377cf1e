package storage

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to TEST_DATABASE_URL. Tests using it are skipped when
// no database is configured.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := New(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func uniqueGuild(t *testing.T) string {
	t.Helper()
	return "1" + strconv.FormatInt(time.Now().UnixNano(), 10)[:17]
}

func TestGuildConfigUpdateCreatesAndLocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guildID := uniqueGuild(t)

	_, err := store.GetGuildConfig(ctx, guildID)
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := store.UpdateGuildConfig(ctx, guildID, []byte(`{"prefix":"!"}`), func(current []byte) ([]byte, error) {
		assert.JSONEq(t, `{"prefix":"!"}`, string(current))
		return []byte(`{"prefix":"?"}`), nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"prefix":"?"}`, string(updated))

	row, err := store.GetGuildConfig(ctx, guildID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prefix":"?"}`, string(row.Config))
	assert.True(t, row.Active)

	require.NoError(t, store.SetGuildActive(ctx, guildID, false))
	row, err = store.GetGuildConfig(ctx, guildID)
	require.NoError(t, err)
	assert.False(t, row.Active)
	assert.NotNil(t, row.LeftAt)
}

func TestGuildConfigMutateErrorRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guildID := uniqueGuild(t)

	created, err := store.InsertGuildConfigIfMissing(ctx, guildID, []byte(`{"prefix":"!"}`))
	require.NoError(t, err)
	require.True(t, created)

	boom := errors.New("boom")
	_, err = store.UpdateGuildConfig(ctx, guildID, []byte(`{}`), func([]byte) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	row, err := store.GetGuildConfig(ctx, guildID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prefix":"!"}`, string(row.Config))
}

func TestScheduledMessageLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guildID := uniqueGuild(t)
	now := time.Now().UTC().Truncate(time.Second)
	interval := 30

	id, err := store.CreateScheduledMessage(ctx, ScheduledMessage{
		GuildID:         guildID,
		ChannelID:       "123456789012345678",
		Message:         "hello {server}",
		IntervalMinutes: &interval,
		NextRun:         now.Add(-time.Minute),
		CreatedBy:       "223456789012345678",
	})
	require.NoError(t, err)

	due, err := store.ListDueScheduledMessages(ctx, now, []string{guildID})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	require.NotNil(t, due[0].IntervalMinutes)
	assert.Equal(t, 30, *due[0].IntervalMinutes)

	require.NoError(t, store.MarkScheduledMessageSent(ctx, id, now, now.Add(30*time.Minute), true))
	due, err = store.ListDueScheduledMessages(ctx, now, []string{guildID})
	require.NoError(t, err)
	assert.Empty(t, due)

	disabled, err := store.RecordScheduledMessageFailure(ctx, id, "channel missing", 2)
	require.NoError(t, err)
	assert.False(t, disabled)
	disabled, err = store.RecordScheduledMessageFailure(ctx, id, "channel missing", 2)
	require.NoError(t, err)
	assert.True(t, disabled)

	deleted, err := store.DeleteScheduledMessage(ctx, "999999999999999999", id)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.DeleteScheduledMessage(ctx, guildID, id)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestWarningsCountOnlyActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guildID := uniqueGuild(t)

	first, err := store.AddWarning(ctx, Warning{GuildID: guildID, UserID: "u1", ModeratorID: "m1", Reason: "a"})
	require.NoError(t, err)
	_, err = store.AddWarning(ctx, Warning{GuildID: guildID, UserID: "u1", ModeratorID: "m1", Reason: "b"})
	require.NoError(t, err)

	count, err := store.CountActiveWarnings(ctx, guildID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	revoked, err := store.RevokeWarning(ctx, guildID, first, "m2")
	require.NoError(t, err)
	assert.True(t, revoked)

	count, err = store.CountActiveWarnings(ctx, guildID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsRetryableError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryableError(ErrNotFound))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(nil))
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	value, err := retry(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, &pgconn.PgError{Code: "40P01"}
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Equal(t, 2, calls)
}
