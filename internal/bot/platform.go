package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"guildwarden/internal/scheduler"
)

// Outbound REST calls are paced below Discord's global limit of 50 per
// second.
const (
	outboundPerSecond = 40
	outboundBurst     = 10
)

// Discord adapts a gateway session to the interfaces the moderation,
// automod and scheduler services act through.
type Discord struct {
	session *discordgo.Session
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewDiscord(session *discordgo.Session, logger *zap.Logger) *Discord {
	return &Discord{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(outboundPerSecond), outboundBurst),
		logger:  logger.Named("discord"),
	}
}

func (d *Discord) wait(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discord rate limiter: %w", err)
	}
	return nil
}

// NewSession builds a gateway session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	return session, nil
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	return d.session.ChannelMessageDelete(channelID, messageID)
}

func (d *Discord) Timeout(ctx context.Context, guildID, userID string, until time.Time, _ string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	return d.session.GuildMemberTimeout(guildID, userID, &until)
}

func (d *Discord) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	return d.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (d *Discord) Ban(ctx context.Context, guildID, userID, reason string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	return d.session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (d *Discord) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	_, err := d.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (d *Discord) DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open DM channel: %w", err)
	}
	_, err = d.session.ChannelMessageSendEmbed(channel.ID, embed)
	return err
}

func (d *Discord) DirectText(ctx context.Context, userID, content string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open DM channel: %w", err)
	}
	_, err = d.session.ChannelMessageSend(channel.ID, content)
	return err
}

func (d *Discord) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

// Send posts a scheduled or welcome message, as an embed when requested.
func (d *Discord) Send(ctx context.Context, channelID string, msg scheduler.Outgoing) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	var err error
	if msg.Embed {
		_, err = d.session.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
			Description: msg.Content,
			Color:       msg.Color,
		})
	} else {
		_, err = d.session.ChannelMessageSend(channelID, msg.Content)
	}
	return err
}

// Guild resolves a guild from the gateway cache, falling back to REST.
func (d *Discord) Guild(ctx context.Context, guildID string) (scheduler.Guild, bool) {
	if guild, err := d.session.State.Guild(guildID); err == nil {
		return scheduler.Guild{ID: guild.ID, Name: guild.Name, MemberCount: guild.MemberCount}, true
	}
	if d.wait(ctx) != nil {
		return scheduler.Guild{}, false
	}
	guild, err := d.session.Guild(guildID)
	if err != nil {
		d.logger.Debug("Guild lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return scheduler.Guild{}, false
	}
	count := guild.MemberCount
	if count == 0 {
		count = guild.ApproximateMemberCount
	}
	return scheduler.Guild{ID: guild.ID, Name: guild.Name, MemberCount: count}, true
}

func (d *Discord) ChannelExists(ctx context.Context, guildID, channelID string) bool {
	if channel, err := d.session.State.Channel(channelID); err == nil {
		return channel.GuildID == guildID
	}
	if d.wait(ctx) != nil {
		return false
	}
	channel, err := d.session.Channel(channelID)
	if err != nil {
		return false
	}
	return channel.GuildID == guildID
}

// GuildIDs lists the guilds in the gateway cache. Until the first Ready
// event the list is empty and nothing is polled.
func (d *Discord) GuildIDs() []string {
	state := d.session.State
	if state == nil {
		return []string{}
	}
	state.RLock()
	defer state.RUnlock()
	ids := make([]string, 0, len(state.Guilds))
	for _, guild := range state.Guilds {
		ids = append(ids, guild.ID)
	}
	return ids
}
