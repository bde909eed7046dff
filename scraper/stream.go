package scraper

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Listener forwards live gateway events into the ingestion queue. Handlers
// do no filtering, no transformation and no sink I/O: when the queue is
// full the blocking Put stalls event delivery, which is the intended
// backpressure signal.
type Listener struct {
	queue *Queue
	log   zerolog.Logger
}

func NewListener(queue *Queue, logger zerolog.Logger) *Listener {
	return &Listener{queue: queue, log: logger}
}

// Register attaches the live-event handlers to the session. MessageCreate
// covers new messages in channels and threads alike; MessageUpdate feeds
// edits through the same path, where the idempotent sink turns the second
// write into an overwrite.
func (l *Listener) Register(s *discordgo.Session) {
	s.AddHandler(l.onMessageCreate)
	s.AddHandler(l.onMessageUpdate)
	l.log.Info().Int("queue_capacity", l.queue.Cap()).Msg("stream listener registered")
}

func (l *Listener) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	l.queue.Put(m.Message)
}

func (l *Listener) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	// Partial update events (embed unfurls and the like) carry no author.
	if m.Author == nil {
		return
	}
	l.queue.Put(m.Message)
}
