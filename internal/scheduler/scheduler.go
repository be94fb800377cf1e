// Package scheduler fires due scheduled messages into their channels and
// rolls recurring ones forward.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"guildwarden/internal/placeholders"
	"guildwarden/internal/storage"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultMaxFailures  = 10
	DefaultWorkers      = 4
)

var (
	ErrNoSchedule = errors.New("scheduled message needs a run time, an interval or a cron expression")
	ErrNotFound   = errors.New("scheduled message not found")
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Store interface {
	CreateScheduledMessage(ctx context.Context, msg storage.ScheduledMessage) (int64, error)
	GetScheduledMessage(ctx context.Context, guildID string, id int64) (storage.ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, guildID string) ([]storage.ScheduledMessage, error)
	ListDueScheduledMessages(ctx context.Context, now time.Time, guildIDs []string) ([]storage.ScheduledMessage, error)
	DeleteScheduledMessage(ctx context.Context, guildID string, id int64) (bool, error)
	MarkScheduledMessageSent(ctx context.Context, id int64, lastRun, nextRun time.Time, enabled bool) error
	RecordScheduledMessageFailure(ctx context.Context, id int64, reason string, maxFailures int) (bool, error)
	DisableGuildScheduledMessages(ctx context.Context, guildID string) (int64, error)
}

type Guild struct {
	ID          string
	Name        string
	MemberCount int
}

// Directory resolves live guild and channel state.
type Directory interface {
	Guild(ctx context.Context, guildID string) (Guild, bool)
	ChannelExists(ctx context.Context, guildID, channelID string) bool
	// GuildIDs lists the guilds this process serves. A nil slice means the
	// set is unknown and every guild is polled.
	GuildIDs() []string
}

type Outgoing struct {
	Content string
	Embed   bool
	Color   int
}

type Sender interface {
	Send(ctx context.Context, channelID string, msg Outgoing) error
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Options struct {
	PollInterval time.Duration
	MaxFailures  int
	Workers      int
	DefaultColor int
}

type Service struct {
	store     Store
	directory Directory
	sender    Sender
	clock     Clock
	opts      Options
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(store Store, directory Directory, sender Sender, opts Options, logger *zap.Logger) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Service{
		store:     store,
		directory: directory,
		sender:    sender,
		clock:     realClock{},
		opts:      opts,
		logger:    logger.Named("scheduler"),
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

// Start polls once immediately and then on every interval until Stop. It
// does nothing if the loop is already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
	s.logger.Info("Scheduler started", zap.Duration("interval", s.opts.PollInterval))
}

// Stop ends the loop and waits for an in-flight poll to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Scheduler stopped")
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick(ctx)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	// A poll that has started is allowed to finish after Stop.
	if err := s.Poll(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Scheduler poll failed", zap.Error(err))
	}
}

// Poll dispatches every due message once. Failures of individual messages
// are logged and never stop the others.
func (s *Service) Poll(ctx context.Context) error {
	now := s.clock.Now()
	guildIDs := s.directory.GuildIDs()
	if guildIDs != nil && len(guildIDs) == 0 {
		return nil
	}

	due, err := s.store.ListDueScheduledMessages(ctx, now, guildIDs)
	if err != nil {
		return fmt.Errorf("list due scheduled messages: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	s.logger.Debug("Dispatching scheduled messages", zap.Int("count", len(due)))

	p := pool.New().WithMaxGoroutines(s.opts.Workers)
	for _, msg := range due {
		p.Go(func() {
			var catcher panics.Catcher
			catcher.Try(func() { s.dispatch(ctx, msg, now) })
			if recovered := catcher.Recovered(); recovered != nil {
				s.logger.Error("Scheduled message dispatch panicked",
					zap.Int64("scheduled_id", msg.ID),
					zap.String("guild_id", msg.GuildID),
					zap.Error(recovered.AsError()))
			}
		})
	}
	p.Wait()
	return nil
}

func (s *Service) dispatch(ctx context.Context, msg storage.ScheduledMessage, now time.Time) {
	guild, ok := s.directory.Guild(ctx, msg.GuildID)
	if !ok {
		s.fail(ctx, msg, "guild not found")
		return
	}
	if !s.directory.ChannelExists(ctx, msg.GuildID, msg.ChannelID) {
		s.fail(ctx, msg, "channel not found")
		return
	}

	content := placeholders.Render(msg.Message, placeholders.Vars{
		Server:      guild.Name,
		MemberCount: guild.MemberCount,
		Now:         now,
	})
	out := Outgoing{Content: content, Embed: msg.Embed, Color: s.opts.DefaultColor}
	if msg.EmbedColor != nil {
		if color, ok := ParseColor(*msg.EmbedColor); ok {
			out.Color = color
		}
	}

	if err := s.sender.Send(ctx, msg.ChannelID, out); err != nil {
		s.fail(ctx, msg, err.Error())
		return
	}

	next, enabled := nextRun(msg, now)
	if err := s.store.MarkScheduledMessageSent(ctx, msg.ID, now, next, enabled); err != nil {
		s.logger.Error("Failed to record scheduled message run",
			zap.Int64("scheduled_id", msg.ID),
			zap.String("guild_id", msg.GuildID),
			zap.Error(err))
		return
	}
	s.logger.Info("Scheduled message sent",
		zap.Int64("scheduled_id", msg.ID),
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
		zap.Bool("recurring", enabled),
		zap.Time("next_run", next))
}

// fail counts a failed attempt. nextRun is left alone so the message is
// retried on the next poll until the failure limit disables it.
func (s *Service) fail(ctx context.Context, msg storage.ScheduledMessage, reason string) {
	disabled, err := s.store.RecordScheduledMessageFailure(ctx, msg.ID, reason, s.opts.MaxFailures)
	fields := []zap.Field{
		zap.Int64("scheduled_id", msg.ID),
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("reason", reason),
	}
	if err != nil {
		s.logger.Error("Failed to record scheduled message failure", append(fields, zap.Error(err))...)
		return
	}
	if disabled {
		s.logger.Warn("Scheduled message disabled after repeated failures", fields...)
		return
	}
	s.logger.Warn("Scheduled message not sent", fields...)
}

// nextRun computes when msg fires again after now. One-time messages are
// disabled instead.
func nextRun(msg storage.ScheduledMessage, now time.Time) (time.Time, bool) {
	if msg.IntervalMinutes != nil && *msg.IntervalMinutes > 0 {
		return now.Add(time.Duration(*msg.IntervalMinutes) * time.Minute), true
	}
	if msg.CronExpression != nil && *msg.CronExpression != "" {
		schedule, err := cronParser.Parse(*msg.CronExpression)
		if err == nil {
			return schedule.Next(now), true
		}
	}
	return msg.NextRun, false
}

// ParseColor reads a #RRGGBB embed colour.
func ParseColor(raw string) (int, bool) {
	value, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 16, 32)
	if err != nil {
		return 0, false
	}
	return int(value), true
}
