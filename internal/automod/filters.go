package automod

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/kv"
	"guildwarden/internal/utils"
)

type verdict struct {
	filter      string
	triggered   bool
	action      string
	muteMinutes int
	reason      string
}

type filter func(ctx context.Context, cfg guildconfig.AutoModConfig, msg Message) verdict

func (e *Engine) spamFilter(ctx context.Context, cfg guildconfig.AutoModConfig, msg Message) verdict {
	rule := cfg.AntiSpam
	if !rule.Enabled || rule.Interval <= 0 {
		return verdict{}
	}
	window := time.Duration(rule.Interval) * time.Second
	count, err := e.counter.Hit(ctx, kv.SpamKey(msg.GuildID, msg.AuthorID), window)
	if err != nil {
		e.logger.Warn("Spam counter unavailable", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return verdict{}
	}
	if count <= rule.MaxMessages {
		return verdict{}
	}
	return verdict{
		filter:      "spam",
		triggered:   true,
		action:      rule.Action,
		muteMinutes: rule.MuteDuration,
		reason:      fmt.Sprintf("spam (%d messages in %ds)", count, rule.Interval),
	}
}

func wordFilter(_ context.Context, cfg guildconfig.AutoModConfig, msg Message) verdict {
	rule := cfg.WordFilter
	if !rule.Enabled || len(rule.Words) == 0 {
		return verdict{}
	}
	content := strings.ToLower(msg.Content)
	for _, word := range rule.Words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if strings.Contains(content, word) {
			return verdict{
				filter:      "words",
				triggered:   true,
				action:      rule.Action,
				muteMinutes: rule.MuteDuration,
				reason:      "blocked word",
			}
		}
	}
	return verdict{}
}

// linkFilter triggers on the first link whose host is not allowed. Links
// that cannot be parsed count as disallowed.
func linkFilter(_ context.Context, cfg guildconfig.AutoModConfig, msg Message) verdict {
	rule := cfg.LinkFilter
	if !rule.Enabled {
		return verdict{}
	}
	for _, raw := range utils.ExtractURLs(msg.Content) {
		reason := ""
		normalized, host, err := utils.NormalizeURL(raw)
		switch {
		case err != nil:
			reason = "malformed link"
		case !utils.DomainAllowed(host, rule.AllowedDomains):
			reason = "link to " + normalized
		default:
			continue
		}
		return verdict{filter: "links", triggered: true, action: rule.Action, reason: reason}
	}
	return verdict{}
}

func capsFilter(_ context.Context, cfg guildconfig.AutoModConfig, msg Message) verdict {
	rule := cfg.CapsFilter
	if !rule.Enabled || utf8.RuneCountInString(msg.Content) < rule.MinLength {
		return verdict{}
	}
	upper, letters := countLetters(msg.Content)
	// Only a share strictly above the threshold triggers.
	if letters == 0 || upper*100 <= rule.Threshold*letters {
		return verdict{}
	}
	return verdict{
		filter:    "caps",
		triggered: true,
		action:    rule.Action,
		reason:    fmt.Sprintf("excessive caps (%.0f%%)", float64(upper)/float64(letters)*100),
	}
}

// countLetters returns how many runes of content are upper-case letters and
// how many are letters at all.
func countLetters(content string) (upper, letters int) {
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return upper, letters
}
