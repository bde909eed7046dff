package scraper

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord epoch, milliseconds since the Unix epoch.
const discordEpochMS = 1420070400000

// snowflakeFromTime returns the smallest snowflake covering instants at or
// after t. Used as the exclusive lower-bound cursor for history pagination:
// real message IDs at the same millisecond carry worker/increment bits and
// therefore sort after it.
func snowflakeFromTime(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMS
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatUint(uint64(ms)<<22, 10)
}

// newestID returns the largest message ID in a history page. Pages usually
// arrive newest first, but the ordering is not a documented contract worth
// leaning on for cursor advancement.
func newestID(page []*discordgo.Message) string {
	var best uint64
	var bestID string
	for _, m := range page {
		id, err := strconv.ParseUint(m.ID, 10, 64)
		if err != nil {
			continue
		}
		if id >= best {
			best = id
			bestID = m.ID
		}
	}
	return bestID
}
