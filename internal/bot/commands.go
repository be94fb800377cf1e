package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/bytedance/sonic"

	"guildwarden/internal/analytics"
	"guildwarden/internal/guildconfig"
	"guildwarden/internal/moderation"
	"guildwarden/internal/scheduler"
	"guildwarden/internal/storage"
)

const (
	maxListed       = 10
	defaultStatDays = 7
	maxStatDays     = 90
	embedTextLimit  = 1900
)

type Moderator interface {
	Execute(ctx context.Context, req moderation.Request) moderation.Result
	Warnings(ctx context.Context, guildID, userID string) ([]storage.Warning, error)
	RevokeWarning(ctx context.Context, guildID string, id int64, moderatorID string) (bool, error)
}

type Schedules interface {
	Create(ctx context.Context, req scheduler.CreateRequest) (int64, error)
	List(ctx context.Context, guildID string) ([]storage.ScheduledMessage, error)
	Delete(ctx context.Context, guildID string, id int64) (bool, error)
}

type ConfigReader interface {
	GetSection(ctx context.Context, guildID, section string) (map[string]any, error)
}

type Reporter interface {
	Report(ctx context.Context, guildID string, since time.Time) (analytics.Report, error)
}

// Commands holds the slash command handlers.
type Commands struct {
	mod       Moderator
	schedules Schedules
	configs   ConfigReader
	stats     Reporter
	colors    moderation.EmbedColors
	now       func() time.Time
}

func NewCommands(mod Moderator, schedules Schedules, configs ConfigReader, stats Reporter, colors moderation.EmbedColors) *Commands {
	return &Commands{
		mod:       mod,
		schedules: schedules,
		configs:   configs,
		stats:     stats,
		colors:    colors,
		now:       time.Now,
	}
}

// RegisterAll adds every command to r.
func (c *Commands) RegisterAll(r *Router) {
	moderationModule := guildconfig.ModuleModeration
	r.Register(Command{Definition: warnCommand, Permission: discordgo.PermissionModerateMembers, Module: moderationModule, Handler: c.warn})
	r.Register(Command{Definition: warningsCommand, Permission: discordgo.PermissionModerateMembers, Module: moderationModule, Handler: c.warnings})
	r.Register(Command{Definition: unwarnCommand, Permission: discordgo.PermissionModerateMembers, Module: moderationModule, Handler: c.unwarn})
	r.Register(Command{Definition: timeoutCommand, Permission: discordgo.PermissionModerateMembers, Module: moderationModule, Handler: c.timeout})
	r.Register(Command{Definition: kickCommand, Permission: discordgo.PermissionKickMembers, Module: moderationModule, Handler: c.kick})
	r.Register(Command{Definition: banCommand, Permission: discordgo.PermissionBanMembers, Module: moderationModule, Handler: c.ban})
	r.Register(Command{Definition: scheduleCommand, Permission: discordgo.PermissionManageServer, Handler: c.schedule})
	r.Register(Command{Definition: configCommand, Permission: discordgo.PermissionManageServer, Handler: c.config})
	r.Register(Command{Definition: modstatsCommand, Permission: discordgo.PermissionModerateMembers, Module: moderationModule, Handler: c.modstats})
}

func (c *Commands) warn(ctx context.Context, inv Invocation) (Reply, error) {
	target := inv.String("user")
	if reply, ok := refuseSelf(inv, target); !ok {
		return reply, nil
	}
	result := c.mod.Execute(ctx, moderation.Request{
		GuildID:     inv.GuildID,
		TargetID:    target,
		ModeratorID: inv.UserID,
		Action:      moderation.Warn,
		Reason:      reasonOrDefault(inv.String("reason")),
	})
	if !result.Success {
		return c.failed(moderation.Warn, target), nil
	}
	text := fmt.Sprintf("Warned <@%s>. They now have %d active warning(s).", target, result.WarningCount)
	if result.Escalated != 0 {
		text += fmt.Sprintf(" Escalation: %s.", strings.ToLower(result.Escalated.Past()))
	}
	return Reply{Embed: c.embed("Warning issued", text, c.colors.Action, nil)}, nil
}

func (c *Commands) warnings(ctx context.Context, inv Invocation) (Reply, error) {
	target := inv.String("user")
	list, err := c.mod.Warnings(ctx, inv.GuildID, target)
	if err != nil {
		return Reply{}, err
	}
	if len(list) == 0 {
		return Reply{Content: fmt.Sprintf("<@%s> has no warnings.", target), Ephemeral: true}, nil
	}

	active := 0
	fields := make([]*discordgo.MessageEmbedField, 0, maxListed)
	for _, w := range list {
		if w.Active {
			active++
		}
		if len(fields) == maxListed {
			continue
		}
		status := ""
		if !w.Active {
			status = " (revoked)"
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d%s", w.ID, status),
			Value: fmt.Sprintf("%s\nBy <@%s> on %s", w.Reason, w.ModeratorID, w.CreatedAt.UTC().Format("2006-01-02")),
		})
	}
	desc := fmt.Sprintf("<@%s> has %d active of %d total warning(s).", target, active, len(list))
	return Reply{Embed: c.embed("Warnings", desc, c.colors.Warning, fields), Ephemeral: true}, nil
}

func (c *Commands) unwarn(ctx context.Context, inv Invocation) (Reply, error) {
	id, _ := inv.Int("id")
	revoked, err := c.mod.RevokeWarning(ctx, inv.GuildID, id, inv.UserID)
	if err != nil {
		return Reply{}, err
	}
	if !revoked {
		return Reply{Content: fmt.Sprintf("No active warning with id %d.", id), Ephemeral: true}, nil
	}
	return Reply{Content: fmt.Sprintf("Warning #%d revoked.", id)}, nil
}

func (c *Commands) timeout(ctx context.Context, inv Invocation) (Reply, error) {
	minutes, ok := inv.Int("minutes")
	if !ok || minutes <= 0 {
		minutes = int64(moderation.DefaultMuteDuration / time.Minute)
	}
	return c.sanction(ctx, inv, moderation.Mute, time.Duration(minutes)*time.Minute)
}

func (c *Commands) kick(ctx context.Context, inv Invocation) (Reply, error) {
	return c.sanction(ctx, inv, moderation.Kick, 0)
}

func (c *Commands) ban(ctx context.Context, inv Invocation) (Reply, error) {
	return c.sanction(ctx, inv, moderation.Ban, 0)
}

func (c *Commands) sanction(ctx context.Context, inv Invocation, action moderation.Action, duration time.Duration) (Reply, error) {
	target := inv.String("user")
	if reply, ok := refuseSelf(inv, target); !ok {
		return reply, nil
	}
	result := c.mod.Execute(ctx, moderation.Request{
		GuildID:     inv.GuildID,
		TargetID:    target,
		ModeratorID: inv.UserID,
		Action:      action,
		Reason:      reasonOrDefault(inv.String("reason")),
		Duration:    duration,
	})
	if !result.Success {
		return c.failed(action, target), nil
	}
	text := fmt.Sprintf("%s <@%s>.", action.Past(), target)
	return Reply{Embed: c.embed("Action taken", text, c.colors.Action, nil)}, nil
}

func (c *Commands) schedule(ctx context.Context, inv Invocation) (Reply, error) {
	switch inv.Subcommand {
	case "create":
		return c.scheduleCreate(ctx, inv)
	case "list":
		return c.scheduleList(ctx, inv)
	case "delete":
		return c.scheduleDelete(ctx, inv)
	}
	return Reply{Content: "Unknown subcommand.", Ephemeral: true}, nil
}

func (c *Commands) scheduleCreate(ctx context.Context, inv Invocation) (Reply, error) {
	req := scheduler.CreateRequest{
		GuildID:        inv.GuildID,
		ChannelID:      inv.String("channel"),
		Message:        inv.String("message"),
		Embed:          inv.Bool("embed"),
		EmbedColor:     inv.String("color"),
		CronExpression: inv.String("cron"),
		CreatedBy:      inv.UserID,
	}
	if interval, ok := inv.Int("interval"); ok {
		req.IntervalMinutes = int(interval)
	}
	if delay, ok := inv.Int("in"); ok && delay > 0 {
		runAt := c.now().Add(time.Duration(delay) * time.Minute)
		req.RunAt = &runAt
	}

	id, err := c.schedules.Create(ctx, req)
	if err != nil {
		var verr *guildconfig.ValidationError
		switch {
		case errors.Is(err, scheduler.ErrNoSchedule):
			return Reply{Content: "Provide one of `in`, `interval` or `cron`.", Ephemeral: true}, nil
		case errors.As(err, &verr):
			return Reply{Content: validationText(verr), Ephemeral: true}, nil
		}
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf("Scheduled message #%d created for <#%s>.", id, req.ChannelID), Ephemeral: true}, nil
}

func (c *Commands) scheduleList(ctx context.Context, inv Invocation) (Reply, error) {
	messages, err := c.schedules.List(ctx, inv.GuildID)
	if err != nil {
		return Reply{}, err
	}
	if len(messages) == 0 {
		return Reply{Content: "No scheduled messages.", Ephemeral: true}, nil
	}
	fields := make([]*discordgo.MessageEmbedField, 0, min(len(messages), maxListed))
	for _, msg := range messages[:min(len(messages), maxListed)] {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d in <#%s>", msg.ID, msg.ChannelID),
			Value: fmt.Sprintf("%s\nNext: %s%s", describeSchedule(msg), msg.NextRun.UTC().Format("2006-01-02 15:04 UTC"), disabledNote(msg)),
		})
	}
	desc := fmt.Sprintf("%d scheduled message(s).", len(messages))
	return Reply{Embed: c.embed("Scheduled messages", desc, c.colors.Action, fields), Ephemeral: true}, nil
}

func (c *Commands) scheduleDelete(ctx context.Context, inv Invocation) (Reply, error) {
	id, _ := inv.Int("id")
	deleted, err := c.schedules.Delete(ctx, inv.GuildID, id)
	if err != nil {
		return Reply{}, err
	}
	if !deleted {
		return Reply{Content: fmt.Sprintf("Scheduled message #%d not found.", id), Ephemeral: true}, nil
	}
	return Reply{Content: fmt.Sprintf("Scheduled message #%d deleted.", id), Ephemeral: true}, nil
}

func (c *Commands) config(ctx context.Context, inv Invocation) (Reply, error) {
	name := inv.String("section")
	data, err := c.configs.GetSection(ctx, inv.GuildID, name)
	if err != nil {
		if errors.Is(err, guildconfig.ErrUnknownSection) {
			return Reply{Content: "Unknown config section.", Ephemeral: true}, nil
		}
		return Reply{}, err
	}
	if data == nil {
		return Reply{Content: "This server has no configuration for that section yet.", Ephemeral: true}, nil
	}
	raw, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return Reply{}, err
	}
	text, cut := truncateRunes(string(raw), embedTextLimit)
	if cut {
		text += "\n..."
	}
	return Reply{Embed: c.embed("Config: "+name, "```json\n"+text+"\n```", c.colors.Action, nil), Ephemeral: true}, nil
}

func (c *Commands) modstats(ctx context.Context, inv Invocation) (Reply, error) {
	days := int64(defaultStatDays)
	if value, ok := inv.Int("days"); ok && value > 0 {
		days = min(value, maxStatDays)
	}
	report, err := c.stats.Report(ctx, inv.GuildID, c.now().AddDate(0, 0, -int(days)))
	if err != nil {
		return Reply{}, err
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Total", Value: strconv.Itoa(report.Total), Inline: true},
		{Name: "Automatic", Value: strconv.Itoa(report.Automatic), Inline: true},
	}
	for _, action := range []moderation.Action{moderation.Delete, moderation.Warn, moderation.Mute, moderation.Kick, moderation.Ban} {
		if n := report.ByAction[action.String()]; n > 0 {
			fields = append(fields, &discordgo.MessageEmbedField{Name: action.String(), Value: strconv.Itoa(n), Inline: true})
		}
	}
	if len(report.TopModerators) > 0 {
		lines := make([]string, 0, len(report.TopModerators))
		for _, m := range report.TopModerators {
			lines = append(lines, fmt.Sprintf("<@%s>: %d", m.ModeratorID, m.Count))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Top moderators", Value: strings.Join(lines, "\n")})
	}
	desc := fmt.Sprintf("Moderation over the last %d day(s).", days)
	return Reply{Embed: c.embed("Moderation stats", desc, c.colors.Action, fields), Ephemeral: true}, nil
}

func (c *Commands) failed(action moderation.Action, target string) Reply {
	return Reply{Content: fmt.Sprintf("Could not %s <@%s>. Check my role position and permissions.", action, target), Ephemeral: true}
}

func (c *Commands) embed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   c.now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func refuseSelf(inv Invocation, target string) (Reply, bool) {
	if target == "" {
		return Reply{Content: "A target user is required.", Ephemeral: true}, false
	}
	if target == inv.UserID {
		return Reply{Content: "You cannot moderate yourself.", Ephemeral: true}, false
	}
	return Reply{}, true
}

func reasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "No reason provided"
	}
	return reason
}

func validationText(verr *guildconfig.ValidationError) string {
	lines := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		lines = append(lines, fmt.Sprintf("`%s` %s", fe.Field, fe.Message))
	}
	return "Invalid input:\n" + strings.Join(lines, "\n")
}

func describeSchedule(msg storage.ScheduledMessage) string {
	switch {
	case msg.CronExpression != nil:
		return "Cron `" + *msg.CronExpression + "`"
	case msg.IntervalMinutes != nil:
		return fmt.Sprintf("Every %d minute(s)", *msg.IntervalMinutes)
	}
	return "Once"
}

func disabledNote(msg storage.ScheduledMessage) string {
	if msg.Enabled {
		return ""
	}
	return " (disabled)"
}

// truncateRunes shortens text to at most limit runes and reports whether it
// cut anything.
func truncateRunes(text string, limit int) (string, bool) {
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	return string([]rune(text)[:limit]), true
}
