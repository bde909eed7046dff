package scraper

import "github.com/bwmarrin/discordgo"

// Queue is the bounded hand-off between the gateway event handlers and the
// consumer. Put blocks when the buffer is full: that stall is the
// backpressure signal toward event delivery, preferred over dropping.
type Queue struct {
	ch chan *discordgo.Message
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan *discordgo.Message, capacity)}
}

// Put enqueues a raw event, blocking while the queue is at capacity.
func (q *Queue) Put(m *discordgo.Message) {
	q.ch <- m
}

// Get blocks until an entry arrives. ok is false when the entry is the stop
// sentinel, after which the queue must not be read again.
func (q *Queue) Get() (*discordgo.Message, bool) {
	m := <-q.ch
	if m == nil {
		return nil, false
	}
	return m, true
}

// Stop enqueues the nil sentinel behind any pending entries, letting the
// consumer drain before it exits.
func (q *Queue) Stop() {
	q.ch <- nil
}

// Len reports the number of buffered entries.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the configured capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
