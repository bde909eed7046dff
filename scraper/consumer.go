package scraper

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// ChannelResolver looks up channel metadata for live events;
// *discordgo.Session satisfies it.
type ChannelResolver interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Consumer drains the ingestion queue and writes live events through the
// sink one at a time, in arrival order. One entry is fully processed before
// the next is dequeued; a slow sink therefore throttles live ingestion, and
// the queue bound keeps that from growing into unbounded memory.
type Consumer struct {
	queue      *Queue
	sink       Sink
	client     ChannelResolver
	guild      *discordgo.Guild
	categories map[string]*discordgo.Channel
	selfID     string
	now        func() time.Time
	log        zerolog.Logger
	done       chan struct{}
}

func NewConsumer(
	queue *Queue,
	sink Sink,
	client ChannelResolver,
	guild *discordgo.Guild,
	categories map[string]*discordgo.Channel,
	selfID string,
	logger zerolog.Logger,
) *Consumer {
	return &Consumer{
		queue:      queue,
		sink:       sink,
		client:     client,
		guild:      guild,
		categories: categories,
		selfID:     selfID,
		now:        time.Now,
		log:        logger,
		done:       make(chan struct{}),
	}
}

// Run processes entries until the stop sentinel arrives. Messages authored
// by the ingesting identity are dropped so the pipeline can never feed on
// its own output.
func (c *Consumer) Run() {
	defer close(c.done)
	for {
		m, ok := c.queue.Get()
		if !ok {
			c.log.Info().Msg("consumer stopped")
			return
		}
		if m.Author != nil && m.Author.ID == c.selfID {
			continue
		}

		_, rec := BuildRecord(m, c.resolveContext(m), c.now())
		if err := c.sink.Upsert(rec); err != nil {
			c.log.Error().Err(err).Str("channel_id", m.ChannelID).Str("message_id", m.ID).Msg("live write failed")
		}
	}
}

// Wait blocks until Run has exited.
func (c *Consumer) Wait() {
	<-c.done
}

// resolveContext recovers the channel/thread/category shape of a live
// event. A lookup failure yields a partial context; the record is written
// anyway rather than stalling the queue.
func (c *Consumer) resolveContext(m *discordgo.Message) ChannelContext {
	cc := ChannelContext{Guild: c.guild}

	channel, err := c.client.Channel(m.ChannelID)
	if err != nil {
		c.log.Warn().Err(err).Str("channel_id", m.ChannelID).Msg("channel lookup failed, writing partial record")
		return cc
	}

	if channel.IsThread() {
		cc.Thread = channel
		parent, err := c.client.Channel(channel.ParentID)
		if err != nil {
			c.log.Warn().Err(err).Str("channel_id", channel.ParentID).Msg("parent channel lookup failed, writing partial record")
		} else {
			cc.Channel = parent
		}
	} else {
		cc.Channel = channel
	}

	if cc.Channel != nil {
		cc.Category = c.categories[cc.Channel.ParentID]
	}
	return cc
}
