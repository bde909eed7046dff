package scraper

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"discord-scraper/models"
)

// historyPageSize is the Discord API maximum per history request.
const historyPageSize = 100

// HistoryClient is the slice of the Discord API the collectors use;
// *discordgo.Session satisfies it.
type HistoryClient interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	GuildThreadsActive(guildID string, options ...discordgo.RequestOption) (*discordgo.ThreadsList, error)
}

// Sink is the write side of the search index.
type Sink interface {
	Upsert(rec models.Record) error
	UpsertBatch(recs []models.Record) error
}

// Collector runs the shared backfill/polling scan over the tracked
// channels. The two modes differ only in how the watermark is resolved.
type Collector struct {
	client     HistoryClient
	sink       Sink
	resolver   *Resolver
	guild      *discordgo.Guild
	channels   []*discordgo.Channel
	categories map[string]*discordgo.Channel
	batchSize  int
	now        func() time.Time
	log        zerolog.Logger
}

func NewCollector(
	client HistoryClient,
	sink Sink,
	resolver *Resolver,
	guild *discordgo.Guild,
	channels []*discordgo.Channel,
	categories map[string]*discordgo.Channel,
	batchSize int,
	logger zerolog.Logger,
) *Collector {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Collector{
		client:     client,
		sink:       sink,
		resolver:   resolver,
		guild:      guild,
		channels:   channels,
		categories: categories,
		batchSize:  batchSize,
		now:        time.Now,
		log:        logger,
	}
}

// Scan walks every tracked channel from its watermark through now. Backfill
// mode resumes from sink state over the long horizon; polling mode re-reads
// the window that just elapsed, which also refreshes edits and reaction
// counts. A failing channel is logged and skipped so the others still get
// scanned; a watermark integrity failure aborts the whole scan.
func (c *Collector) Scan(backfill bool) error {
	threadsByParent := c.activeThreads()

	for _, channel := range c.channels {
		dtFrom, err := c.resolver.Resolve(channel.ID, backfill)
		if err != nil {
			return fmt.Errorf("resolve watermark for channel %s: %w", channel.ID, err)
		}

		count, err := c.scanChannel(channel, threadsByParent[channel.ID], dtFrom)
		if err != nil {
			c.log.Error().Err(err).Str("channel_id", channel.ID).Msg("channel scan failed")
			continue
		}
		if backfill {
			c.log.Info().Str("channel_id", channel.ID).Int("messages", count).Msg("collected history from channel")
		}
	}
	return nil
}

// activeThreads enumerates the guild's active threads once per scan and
// groups them by parent channel. Archived threads are not revisited.
func (c *Collector) activeThreads() map[string][]*discordgo.Channel {
	byParent := make(map[string][]*discordgo.Channel)
	list, err := c.client.GuildThreadsActive(c.guild.ID)
	if err != nil {
		c.log.Warn().Err(err).Str("guild_id", c.guild.ID).Msg("listing active threads failed, scanning channels only")
		return byParent
	}
	for _, thread := range list.Threads {
		byParent[thread.ParentID] = append(byParent[thread.ParentID], thread)
	}
	return byParent
}

// scanChannel covers the channel itself plus its active threads. Threads
// inherit the channel's watermark rather than resolving their own.
func (c *Collector) scanChannel(channel *discordgo.Channel, threads []*discordgo.Channel, dtFrom time.Time) (int, error) {
	total := 0

	// Forum channels have no linear history of their own, only threads.
	if channel.Type != discordgo.ChannelTypeGuildForum {
		count, err := c.scanHistory(channel, nil, dtFrom)
		if err != nil {
			return total, err
		}
		total += count
	}

	for _, thread := range threads {
		count, err := c.scanHistory(channel, thread, dtFrom)
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

// scanHistory streams [dtFrom, now) through the paginated history API and
// flushes records to the sink in fixed-size batches plus a final remainder.
// The true unread count is unknowable up front, so pagination is unbounded.
func (c *Collector) scanHistory(channel, thread *discordgo.Channel, dtFrom time.Time) (int, error) {
	target := channel
	cc := ChannelContext{Guild: c.guild, Channel: channel, Category: c.categories[channel.ParentID]}
	if thread != nil {
		target = thread
		cc.Thread = thread
	}

	afterID := snowflakeFromTime(dtFrom)
	batch := make([]models.Record, 0, c.batchSize)
	count := 0

	for {
		page, err := c.client.ChannelMessages(target.ID, historyPageSize, "", afterID, "")
		if err != nil {
			return count, fmt.Errorf("fetch history page after %s: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}

		// Pages arrive newest first; walk them backwards so batches land in
		// chronological order.
		for i := len(page) - 1; i >= 0; i-- {
			_, rec := BuildRecord(page[i], cc, c.now())
			batch = append(batch, rec)
			count++
			if len(batch) >= c.batchSize {
				c.flush(target.ID, batch)
				batch = batch[:0]
			}
		}

		afterID = newestID(page)
		if len(page) < historyPageSize {
			break
		}
	}

	c.flush(target.ID, batch)
	return count, nil
}

// flush writes a batch best-effort. A failed batch is dropped, not retried:
// the next polling pass re-reads the window.
func (c *Collector) flush(channelID string, batch []models.Record) {
	if len(batch) == 0 {
		return
	}
	if err := c.sink.UpsertBatch(batch); err != nil {
		c.log.Error().Err(err).Str("channel_id", channelID).Int("records", len(batch)).Msg("batch write failed, dropping batch")
	}
}
