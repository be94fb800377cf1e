package guildconfig

type Modules struct {
	Moderation bool `json:"moderation"`
	Automod    bool `json:"automod"`
	Leveling   bool `json:"leveling"`
	Welcome    bool `json:"welcome"`
	Logging    bool `json:"logging"`
	Starboard  bool `json:"starboard"`
}

const (
	ModuleModeration = "moderation"
	ModuleAutomod    = "automod"
	ModuleLeveling   = "leveling"
	ModuleWelcome    = "welcome"
	ModuleLogging    = "logging"
	ModuleStarboard  = "starboard"
)

// Enabled reports whether the named module is switched on. Unknown names
// are off.
func (m Modules) Enabled(name string) bool {
	switch name {
	case ModuleModeration:
		return m.Moderation
	case ModuleAutomod:
		return m.Automod
	case ModuleLeveling:
		return m.Leveling
	case ModuleWelcome:
		return m.Welcome
	case ModuleLogging:
		return m.Logging
	case ModuleStarboard:
		return m.Starboard
	default:
		return false
	}
}

// General holds the top-level scalar fields of the document. It is exposed
// as the "general" section.
type General struct {
	Prefix   string  `json:"prefix" validate:"min=1,max=5"`
	Language string  `json:"language" validate:"min=2,max=10"`
	Timezone string  `json:"timezone" validate:"timezone"`
	Premium  bool    `json:"premium"`
	Modules  Modules `json:"modules"`
}

type Escalation struct {
	Enabled     bool `json:"enabled"`
	MuteAt      int  `json:"muteAt" validate:"min=0,max=50"`
	MuteMinutes int  `json:"muteMinutes" validate:"min=1,max=40320"`
	KickAt      int  `json:"kickAt" validate:"min=0,max=50"`
	BanAt       int  `json:"banAt" validate:"min=0,max=50"`
}

type ModerationConfig struct {
	ModLogChannel string     `json:"modLogChannel" validate:"omitempty,snowflake"`
	MuteRole      string     `json:"muteRole" validate:"omitempty,snowflake"`
	DMOnAction    bool       `json:"dmOnAction"`
	Escalation    Escalation `json:"escalation"`
}

type AntiSpam struct {
	Enabled      bool   `json:"enabled"`
	MaxMessages  int    `json:"maxMessages" validate:"min=2,max=50"`
	Interval     int    `json:"interval" validate:"min=1,max=60"`
	Action       string `json:"action" validate:"oneof=delete warn mute kick ban"`
	MuteDuration int    `json:"muteDuration,omitempty" validate:"omitempty,min=1,max=40320"`
}

type WordFilter struct {
	Enabled      bool     `json:"enabled"`
	Words        []string `json:"words" validate:"max=1000,dive,min=1,max=100"`
	Action       string   `json:"action" validate:"oneof=delete warn mute kick ban"`
	MuteDuration int      `json:"muteDuration,omitempty" validate:"omitempty,min=1,max=40320"`
}

type LinkFilter struct {
	Enabled        bool     `json:"enabled"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=500,dive,fqdn"`
	Action         string   `json:"action" validate:"oneof=delete warn mute"`
}

type CapsFilter struct {
	Enabled   bool   `json:"enabled"`
	Threshold int    `json:"threshold" validate:"min=1,max=100"`
	MinLength int    `json:"minLength" validate:"min=1,max=2000"`
	Action    string `json:"action" validate:"oneof=delete warn"`
}

type AutoModConfig struct {
	Enabled         bool       `json:"enabled"`
	AntiSpam        AntiSpam   `json:"antiSpam"`
	WordFilter      WordFilter `json:"wordFilter"`
	LinkFilter      LinkFilter `json:"linkFilter"`
	CapsFilter      CapsFilter `json:"capsFilter"`
	IgnoredChannels []string   `json:"ignoredChannels" validate:"max=100,dive,snowflake"`
	IgnoredRoles    []string   `json:"ignoredRoles" validate:"max=100,dive,snowflake"`
}

type RoleReward struct {
	Level  int    `json:"level" validate:"min=1,max=1000"`
	RoleID string `json:"roleId" validate:"snowflake"`
}

type LevelingConfig struct {
	XPMin           int          `json:"xpMin" validate:"min=1,max=1000"`
	XPMax           int          `json:"xpMax" validate:"min=1,max=1000,gtefield=XPMin"`
	CooldownSeconds int          `json:"cooldownSeconds" validate:"min=0,max=3600"`
	AnnounceChannel string       `json:"announceChannel" validate:"omitempty,snowflake"`
	LevelUpMessage  string       `json:"levelUpMessage" validate:"max=2000"`
	RoleRewards     []RoleReward `json:"roleRewards" validate:"max=100,dive"`
}

type WelcomeConfig struct {
	ChannelID      string   `json:"channelId" validate:"omitempty,snowflake"`
	Message        string   `json:"message" validate:"max=2000"`
	Embed          bool     `json:"embed"`
	EmbedColor     string   `json:"embedColor" validate:"omitempty,hexrgb"`
	DMMessage      string   `json:"dmMessage" validate:"max=2000"`
	AutoRoles      []string `json:"autoRoles" validate:"max=100,dive,snowflake"`
	LeaveChannelID string   `json:"leaveChannelId" validate:"omitempty,snowflake"`
	LeaveMessage   string   `json:"leaveMessage" validate:"max=2000"`
}

type LoggingConfig struct {
	ChannelID       string   `json:"channelId" validate:"omitempty,snowflake"`
	MessageDelete   bool     `json:"messageDelete"`
	MessageEdit     bool     `json:"messageEdit"`
	MemberJoin      bool     `json:"memberJoin"`
	MemberLeave     bool     `json:"memberLeave"`
	ModActions      bool     `json:"modActions"`
	IgnoredChannels []string `json:"ignoredChannels" validate:"max=100,dive,snowflake"`
}

type StarboardConfig struct {
	ChannelID       string   `json:"channelId" validate:"omitempty,snowflake"`
	Emoji           string   `json:"emoji" validate:"min=1,max=64"`
	Threshold       int      `json:"threshold" validate:"min=1,max=100"`
	SelfStar        bool     `json:"selfStar"`
	IgnoredChannels []string `json:"ignoredChannels" validate:"max=100,dive,snowflake"`
}

// GuildConfig is the whole per-guild document as stored in guild_configs.
type GuildConfig struct {
	General
	Moderation ModerationConfig `json:"moderation"`
	Automod    AutoModConfig    `json:"automod"`
	Leveling   LevelingConfig   `json:"leveling"`
	Welcome    WelcomeConfig    `json:"welcome"`
	Logging    LoggingConfig    `json:"logging"`
	Starboard  StarboardConfig  `json:"starboard"`
}

// Defaults returns the document written for a guild on first contact.
func Defaults() GuildConfig {
	return GuildConfig{
		General: General{
			Prefix:   "!",
			Language: "en",
			Timezone: "UTC",
			Modules: Modules{
				Moderation: true,
				Automod:    true,
				Welcome:    true,
				Logging:    true,
			},
		},
		Moderation: ModerationConfig{
			Escalation: Escalation{
				MuteAt:      3,
				MuteMinutes: 60,
				KickAt:      5,
				BanAt:       7,
			},
		},
		Automod: AutoModConfig{
			AntiSpam: AntiSpam{
				MaxMessages:  5,
				Interval:     5,
				Action:       "mute",
				MuteDuration: 10,
			},
			WordFilter: WordFilter{
				Words:        []string{},
				Action:       "delete",
				MuteDuration: 10,
			},
			LinkFilter: LinkFilter{
				AllowedDomains: []string{},
				Action:         "delete",
			},
			CapsFilter: CapsFilter{
				Threshold: 70,
				MinLength: 10,
				Action:    "delete",
			},
			IgnoredChannels: []string{},
			IgnoredRoles:    []string{},
		},
		Leveling: LevelingConfig{
			XPMin:           15,
			XPMax:           25,
			CooldownSeconds: 60,
			LevelUpMessage:  "GG {mention}, you levelled up!",
			RoleRewards:     []RoleReward{},
		},
		Welcome: WelcomeConfig{
			Message:      "Welcome to {server}, {mention}! You are member #{memberCount}.",
			EmbedColor:   "#5865F2",
			AutoRoles:    []string{},
			LeaveMessage: "{user} has left {server}.",
		},
		Logging: LoggingConfig{
			MessageDelete:   true,
			MessageEdit:     true,
			MemberJoin:      true,
			MemberLeave:     true,
			ModActions:      true,
			IgnoredChannels: []string{},
		},
		Starboard: StarboardConfig{
			Emoji:           "⭐",
			Threshold:       3,
			IgnoredChannels: []string{},
		},
	}
}
