package bot

import (
	"github.com/bwmarrin/discordgo"

	"guildwarden/internal/guildconfig"
)

var (
	noDM = false

	permModerate int64 = discordgo.PermissionModerateMembers
	permKick     int64 = discordgo.PermissionKickMembers
	permBan      int64 = discordgo.PermissionBanMembers
	permManage   int64 = discordgo.PermissionManageServer

	minOne = 1.0
)

func userOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: description,
		Required:    true,
	}
}

func reasonOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason recorded in the mod log",
		MaxLength:   512,
	}
}

var warnCommand = &discordgo.ApplicationCommand{
	Name:                     "warn",
	Description:              "Warn a member",
	DefaultMemberPermissions: &permModerate,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("Member to warn"),
		reasonOption(),
	},
}

var warningsCommand = &discordgo.ApplicationCommand{
	Name:                     "warnings",
	Description:              "List a member's warnings",
	DefaultMemberPermissions: &permModerate,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("Member to look up"),
	},
}

var unwarnCommand = &discordgo.ApplicationCommand{
	Name:                     "unwarn",
	Description:              "Revoke a warning",
	DefaultMemberPermissions: &permModerate,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "id",
			Description: "Warning id from /warnings",
			Required:    true,
			MinValue:    &minOne,
		},
	},
}

var timeoutCommand = &discordgo.ApplicationCommand{
	Name:                     "timeout",
	Description:              "Time out a member",
	DefaultMemberPermissions: &permModerate,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("Member to time out"),
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "minutes",
			Description: "Duration in minutes (default 10, max 40320)",
			MinValue:    &minOne,
			MaxValue:    40320,
		},
		reasonOption(),
	},
}

var kickCommand = &discordgo.ApplicationCommand{
	Name:                     "kick",
	Description:              "Kick a member",
	DefaultMemberPermissions: &permKick,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("Member to kick"),
		reasonOption(),
	},
}

var banCommand = &discordgo.ApplicationCommand{
	Name:                     "ban",
	Description:              "Ban a member",
	DefaultMemberPermissions: &permBan,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		userOption("Member to ban"),
		reasonOption(),
	},
}

var scheduleCommand = &discordgo.ApplicationCommand{
	Name:                     "schedule",
	Description:              "Manage scheduled messages",
	DefaultMemberPermissions: &permManage,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "create",
			Description: "Schedule a message",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel to post in",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Message text; supports {server}, {memberCount}, {date} and {time}",
					Required:    true,
					MaxLength:   2000,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "in",
					Description: "Send once after this many minutes",
					MinValue:    &minOne,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "interval",
					Description: "Repeat every N minutes",
					MinValue:    &minOne,
					MaxValue:    525600,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "cron",
					Description: "Cron expression, e.g. 0 9 * * MON",
					MaxLength:   120,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "embed",
					Description: "Send as an embed",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "color",
					Description: "Embed colour as #RRGGBB",
					MaxLength:   7,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "list",
			Description: "List scheduled messages",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "delete",
			Description: "Delete a scheduled message",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "id",
					Description: "Scheduled message id",
					Required:    true,
					MinValue:    &minOne,
				},
			},
		},
	},
}

var configCommand = &discordgo.ApplicationCommand{
	Name:                     "config",
	Description:              "Show this server's configuration",
	DefaultMemberPermissions: &permManage,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "section",
			Description: "Configuration section",
			Required:    true,
			Choices:     sectionChoices(),
		},
	},
}

var modstatsCommand = &discordgo.ApplicationCommand{
	Name:                     "modstats",
	Description:              "Show moderation statistics",
	DefaultMemberPermissions: &permModerate,
	DMPermission:             &noDM,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "days",
			Description: "Days to cover (default 7, max 90)",
			MinValue:    &minOne,
			MaxValue:    90,
		},
	},
}

func sectionChoices() []*discordgo.ApplicationCommandOptionChoice {
	names := guildconfig.Sections()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(names))
	for _, name := range names {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}
	return choices
}
