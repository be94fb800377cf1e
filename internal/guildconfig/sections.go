package guildconfig

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownSection = errors.New("unknown config section")

const (
	SectionGeneral    = "general"
	SectionModeration = "moderation"
	SectionAutomod    = "automod"
	SectionLeveling   = "leveling"
	SectionWelcome    = "welcome"
	SectionLogging    = "logging"
	SectionStarboard  = "starboard"
)

// generalKeys are the top-level document keys owned by the general section.
var generalKeys = []string{"prefix", "language", "timezone", "premium", "modules"}

type section struct {
	name string
	// target returns a pointer into cfg for decoding and validation.
	target func(cfg *GuildConfig) any
}

var sections = map[string]section{
	SectionGeneral:    {name: SectionGeneral, target: func(cfg *GuildConfig) any { return &cfg.General }},
	SectionModeration: {name: SectionModeration, target: func(cfg *GuildConfig) any { return &cfg.Moderation }},
	SectionAutomod:    {name: SectionAutomod, target: func(cfg *GuildConfig) any { return &cfg.Automod }},
	SectionLeveling:   {name: SectionLeveling, target: func(cfg *GuildConfig) any { return &cfg.Leveling }},
	SectionWelcome:    {name: SectionWelcome, target: func(cfg *GuildConfig) any { return &cfg.Welcome }},
	SectionLogging:    {name: SectionLogging, target: func(cfg *GuildConfig) any { return &cfg.Logging }},
	SectionStarboard:  {name: SectionStarboard, target: func(cfg *GuildConfig) any { return &cfg.Starboard }},
}

func lookupSection(name string) (section, error) {
	sec, ok := sections[name]
	if !ok {
		return section{}, fmt.Errorf("%w: %q", ErrUnknownSection, name)
	}
	return sec, nil
}

// Sections lists the section names accepted by GetSection and UpdateSection.
func Sections() []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// extract returns the section's sub-document, or nil when it is absent.
func (s section) extract(doc map[string]any) map[string]any {
	if s.name == SectionGeneral {
		out := make(map[string]any)
		for _, key := range generalKeys {
			if value, ok := doc[key]; ok {
				out[key] = value
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	sub, ok := doc[s.name].(map[string]any)
	if !ok {
		return nil
	}
	return sub
}

// put writes value back as the section's sub-document.
func (s section) put(doc map[string]any, value map[string]any) {
	if s.name == SectionGeneral {
		for _, key := range generalKeys {
			if v, ok := value[key]; ok {
				doc[key] = v
			}
		}
		return
	}
	doc[s.name] = value
}
