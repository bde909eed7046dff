package bot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

func TestSelectTracked(t *testing.T) {
	all := []*discordgo.Channel{
		{ID: "100", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "200", Name: "forum", Type: discordgo.ChannelTypeGuildForum},
		{ID: "300", Name: "voice", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "500", Name: "Public", Type: discordgo.ChannelTypeGuildCategory},
	}

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	tracked, categories, err := selectTracked(all, []string{"100", "200", "300", "999"}, "Trading Floor", log)
	if err != nil {
		t.Fatalf("selectTracked: %v", err)
	}

	if len(tracked) != 2 || tracked[0].ID != "100" || tracked[1].ID != "200" {
		t.Errorf("tracked = %v, want text and forum channels only", tracked)
	}
	if _, ok := categories["500"]; !ok || len(categories) != 1 {
		t.Errorf("categories = %v, want the one category channel", categories)
	}

	// The voice channel and the unknown ID are both reported.
	logged := buf.String()
	for _, id := range []string{"300", "999"} {
		if !strings.Contains(logged, id) {
			t.Errorf("missing-channel warning does not name %s: %s", id, logged)
		}
	}
}

func TestSelectTrackedNoneFound(t *testing.T) {
	all := []*discordgo.Channel{
		{ID: "500", Name: "Public", Type: discordgo.ChannelTypeGuildCategory},
	}

	_, _, err := selectTracked(all, []string{"100"}, "Trading Floor", zerolog.Nop())
	if err == nil {
		t.Fatal("selectTracked succeeded with zero tracked channels")
	}
	if !strings.Contains(err.Error(), "Trading Floor") {
		t.Errorf("error %q does not name the guild", err)
	}
}
