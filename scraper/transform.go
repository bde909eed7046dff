package scraper

import (
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/forPelevin/gomoji"

	"discord-scraper/models"
)

// Cashtags are a leading $ followed by at least two letters ($GME, $btc).
var cashtagPattern = regexp.MustCompile(`\$\b([a-zA-Z]{2,})`)

// ChannelContext carries the metadata a raw message does not embed. Thread
// is non-nil when the message lives in a thread, in which case Channel is
// the thread's parent: records always report the parent as their primary
// channel.
type ChannelContext struct {
	Guild    *discordgo.Guild
	Channel  *discordgo.Channel
	Thread   *discordgo.Channel
	Category *discordgo.Channel
}

// BuildRecord flattens a Discord message into the sink document. It never
// fails outright: metadata that cannot be resolved stays zero, so a partial
// record still reaches the index instead of stalling the pipeline.
func BuildRecord(m *discordgo.Message, cc ChannelContext, now time.Time) (string, models.Record) {
	rec := models.Record{
		MessageID:  m.ID,
		ChannelID:  m.ChannelID,
		Text:       m.Content,
		CleanText:  m.ContentWithMentionsReplaced(),
		Timestamp:  m.Timestamp.UTC(),
		ComputedAt: now.UTC(),
		IsReply:    m.Type == discordgo.MessageTypeReply,
	}

	if cc.Guild != nil {
		rec.ServerName = cc.Guild.Name
		rec.ServerID = cc.Guild.ID
	}
	if m.Author != nil {
		rec.SenderID = m.Author.ID
		rec.SenderUsername = m.Author.Username
		rec.SenderDisplayName = m.Author.GlobalName
		rec.SenderIsBot = m.Author.Bot
	}
	if m.Member != nil {
		if m.Member.Nick != "" {
			rec.SenderDisplayName = m.Member.Nick
		}
		if cc.Guild != nil {
			rec.SenderRoles = roleNames(m.Member.Roles, cc.Guild.Roles)
		}
	}
	if cc.Channel != nil {
		rec.ChannelID = cc.Channel.ID
		rec.ChannelTitle = cc.Channel.Name
		rec.ChannelCategoryID = cc.Channel.ParentID
	}
	if cc.Thread != nil {
		rec.ThreadID = cc.Thread.ID
		rec.ThreadTitle = cc.Thread.Name
	}
	if cc.Category != nil {
		rec.ChannelCategory = cc.Category.Name
		rec.ChannelCategoryID = cc.Category.ID
		if cc.Thread != nil {
			rec.ThreadCategory = cc.Category.Name
			rec.ThreadCategoryID = cc.Category.ID
		}
	}

	rec.EmojiList, rec.EmojiImgList = emojiFacets(m.Content)
	rec.CashtagList = cashtags(m.Content)

	if m.MessageReference != nil {
		rec.ReplyToMessageID = m.MessageReference.MessageID
	}
	for _, user := range m.Mentions {
		rec.Mentions = append(rec.Mentions, user.ID)
	}
	rec.Reactions, rec.ReactionsImg = reactionTallies(m.Reactions)
	for _, attachment := range m.Attachments {
		rec.Media = append(rec.Media, attachment.URL)
	}

	return m.ID, rec
}

// emojiFacets extracts the distinct emoji from text, as searchable slugs
// and as raw characters.
func emojiFacets(text string) (names, chars []string) {
	for _, e := range gomoji.FindAll(text) {
		names = append(names, e.Slug)
		chars = append(chars, e.Character)
	}
	return names, chars
}

func cashtags(text string) []string {
	var tags []string
	for _, match := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		tags = append(tags, match[1])
	}
	return tags
}

// reactionTallies snapshots unicode-emoji reaction counts, keyed by slug
// and by character. Custom guild emoji carry an ID and no portable
// character, so they are skipped.
func reactionTallies(reactions []*discordgo.MessageReactions) (byName, byChar map[string]int) {
	for _, r := range reactions {
		if r == nil || r.Emoji == nil || r.Emoji.ID != "" {
			continue
		}
		if byName == nil {
			byName = make(map[string]int)
			byChar = make(map[string]int)
		}
		char := r.Emoji.Name
		name := char
		if info, err := gomoji.GetInfo(char); err == nil {
			name = info.Slug
		}
		byName[name] += r.Count
		byChar[char] += r.Count
	}
	return byName, byChar
}

func roleNames(ids []string, roles []*discordgo.Role) []string {
	byID := make(map[string]string, len(roles))
	for _, role := range roles {
		byID[role.ID] = role.Name
	}
	var names []string
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}
