package utils

import (
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"
)

var snowflakeRegex = regexp.MustCompile(`^\d{17,19}$`)

func IsSnowflake(id string) bool {
	return snowflakeRegex.MatchString(id)
}

// SnowflakeTime returns the creation time encoded in a Discord ID.
func SnowflakeTime(id string) (time.Time, bool) {
	created, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return time.Time{}, false
	}
	return created.UTC(), true
}
