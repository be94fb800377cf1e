// Package placeholders renders the {name} variables accepted in scheduled,
// welcome and leave messages.
package placeholders

import (
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Vars struct {
	Server      string
	MemberCount int
	Now         time.Time
	User        string
	UserMention string
}

// Render substitutes every known placeholder in template. Unknown
// placeholders are left as written.
func Render(template string, vars Vars) string {
	if !strings.Contains(template, "{") {
		return template
	}
	now := vars.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	replacer := strings.NewReplacer(
		"{server}", vars.Server,
		"{memberCount}", strconv.Itoa(vars.MemberCount),
		"{date}", now.Format(DateLayout),
		"{time}", now.Format(TimeLayout),
		"{user}", vars.User,
		"{mention}", vars.UserMention,
	)
	return replacer.Replace(template)
}
