package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/kv"
)

const genericError = "An error occurred while running this command."

// Invocation is a slash command call reduced to the values handlers read.
type Invocation struct {
	Name        string
	Subcommand  string
	GuildID     string
	ChannelID   string
	UserID      string
	Permissions int64
	Options     map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (i Invocation) String(name string) string {
	opt, ok := i.Options[name]
	if !ok {
		return ""
	}
	value, _ := opt.Value.(string)
	return value
}

func (i Invocation) Int(name string) (int64, bool) {
	opt, ok := i.Options[name]
	if !ok {
		return 0, false
	}
	switch v := opt.Value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func (i Invocation) Bool(name string) bool {
	opt, ok := i.Options[name]
	if !ok {
		return false
	}
	value, _ := opt.Value.(bool)
	return value
}

type Reply struct {
	Content   string
	Embed     *discordgo.MessageEmbed
	Ephemeral bool
}

type HandlerFunc func(ctx context.Context, inv Invocation) (Reply, error)

type ModuleSource interface {
	Modules(ctx context.Context, guildID string) (guildconfig.Modules, bool, error)
}

type Command struct {
	Definition *discordgo.ApplicationCommand
	// Permission is the member permission bit required to run the command.
	// Administrators always pass.
	Permission int64
	// Module names the guild module that must be switched on, if any.
	Module  string
	Handler HandlerFunc
}

// Router dispatches slash commands. It requires a guild, checks
// permissions, applies per-user cooldowns and converts handler errors and
// panics into a generic reply.
type Router struct {
	commands map[string]Command
	order    []string
	store    kv.Store
	modules  ModuleSource
	cooldown time.Duration
	logger   *zap.Logger
}

func NewRouter(store kv.Store, cooldown time.Duration, logger *zap.Logger) *Router {
	return &Router{
		commands: make(map[string]Command),
		store:    store,
		cooldown: cooldown,
		logger:   logger.Named("commands"),
	}
}

// UseModules makes the router refuse commands whose module a guild has
// switched off.
func (r *Router) UseModules(source ModuleSource) {
	r.modules = source
}

func (r *Router) Register(cmd Command) {
	name := cmd.Definition.Name
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

func (r *Router) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.commands[name].Definition)
	}
	return defs
}

func (r *Router) Dispatch(ctx context.Context, inv Invocation) (reply Reply) {
	cmd, ok := r.commands[inv.Name]
	if !ok {
		return Reply{Content: "Unknown command.", Ephemeral: true}
	}
	if inv.GuildID == "" {
		return Reply{Content: "This command can only be used in a server.", Ephemeral: true}
	}
	if !hasPermission(inv.Permissions, cmd.Permission) {
		return Reply{Content: "You do not have permission to use this command.", Ephemeral: true}
	}
	if !r.moduleEnabled(ctx, inv.GuildID, cmd.Module) {
		return Reply{Content: fmt.Sprintf("The %s module is disabled on this server.", cmd.Module), Ephemeral: true}
	}
	if !r.acquireCooldown(ctx, inv) {
		return Reply{Content: fmt.Sprintf("Please wait before using /%s again.", inv.Name), Ephemeral: true}
	}

	logger := r.logger.With(
		zap.String("command", inv.Name),
		zap.String("guild_id", inv.GuildID),
		zap.String("user_id", inv.UserID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Command panicked", zap.Any("panic", p), zap.Stack("stack"))
			reply = Reply{Content: genericError, Ephemeral: true}
		}
	}()

	reply, err := cmd.Handler(ctx, inv)
	if err != nil {
		logger.Error("Command failed", zap.Error(err))
		return Reply{Content: genericError, Ephemeral: true}
	}
	return reply
}

// acquireCooldown reports whether the user may run the command now. A kv
// failure lets the command through.
func (r *Router) acquireCooldown(ctx context.Context, inv Invocation) bool {
	if r.cooldown <= 0 || r.store == nil {
		return true
	}
	ok, err := r.store.SetNX(ctx, kv.CooldownKey(inv.Name, inv.UserID), []byte("1"), r.cooldown)
	if err != nil {
		r.logger.Warn("Cooldown check failed", zap.String("command", inv.Name), zap.Error(err))
		return true
	}
	return ok
}

// moduleEnabled reports whether the guild allows commands of module. Guilds
// without a stored document run on the defaults, and a load failure lets the
// command through.
func (r *Router) moduleEnabled(ctx context.Context, guildID, module string) bool {
	if module == "" || r.modules == nil {
		return true
	}
	modules, ok, err := r.modules.Modules(ctx, guildID)
	if err != nil {
		r.logger.Warn("Module check failed", zap.String("guild_id", guildID), zap.Error(err))
		return true
	}
	if !ok {
		modules = guildconfig.Defaults().Modules
	}
	return modules.Enabled(module)
}

func hasPermission(granted, required int64) bool {
	if required == 0 {
		return true
	}
	if granted&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return granted&required == required
}

// invocationFrom flattens an application command interaction, descending
// into a subcommand when present.
func invocationFrom(interaction *discordgo.InteractionCreate) Invocation {
	data := interaction.ApplicationCommandData()
	inv := Invocation{
		Name:      data.Name,
		GuildID:   interaction.GuildID,
		ChannelID: interaction.ChannelID,
		Options:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption),
	}
	if interaction.Member != nil {
		inv.Permissions = interaction.Member.Permissions
		if interaction.Member.User != nil {
			inv.UserID = interaction.Member.User.ID
		}
	} else if interaction.User != nil {
		inv.UserID = interaction.User.ID
	}

	options := data.Options
	if len(options) == 1 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		inv.Subcommand = options[0].Name
		options = options[0].Options
	}
	for _, opt := range options {
		inv.Options[opt.Name] = opt
	}
	return inv
}
