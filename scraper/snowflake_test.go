package scraper

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestSnowflakeFromTime(t *testing.T) {
	epoch := time.UnixMilli(discordEpochMS).UTC()

	if got := snowflakeFromTime(epoch); got != "0" {
		t.Errorf("snowflake at epoch = %s, want 0", got)
	}
	if got := snowflakeFromTime(epoch.Add(time.Second)); got != "4194304000" {
		t.Errorf("snowflake at epoch+1s = %s, want 4194304000", got)
	}
	// Instants before the epoch clamp to zero rather than wrapping.
	if got := snowflakeFromTime(epoch.Add(-time.Hour)); got != "0" {
		t.Errorf("snowflake before epoch = %s, want 0", got)
	}
}

func TestNewestID(t *testing.T) {
	page := []*discordgo.Message{
		{ID: "300"},
		{ID: "not-a-snowflake"},
		{ID: "1000"},
		{ID: "999"},
	}
	if got := newestID(page); got != "1000" {
		t.Errorf("newestID = %s, want 1000", got)
	}
}
