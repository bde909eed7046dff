package scraper

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"discord-scraper/config"
	"discord-scraper/index"
)

// TimestampSource is the read access to the sink the resolver needs.
type TimestampSource interface {
	LatestTimestamp(channelID string) (time.Time, error)
}

// Resolver computes the lower bound a channel scan must start from. The
// sink itself is the checkpoint: there is no separate watermark store.
type Resolver struct {
	source          TimestampSource
	pollingInterval time.Duration
	historyHorizon  time.Duration
	historyStart    time.Time
	now             func() time.Time
	log             zerolog.Logger
}

func NewResolver(source TimestampSource, cfg config.Config, logger zerolog.Logger) *Resolver {
	return &Resolver{
		source:          source,
		pollingInterval: cfg.PollingInterval,
		historyHorizon:  cfg.HistoryHorizon,
		historyStart:    cfg.HistoryStartDate,
		now:             time.Now,
		log:             logger,
	}
}

// Resolve returns the scan start for a channel. Polling mode uses a fixed
// look-back window and never touches the sink. Backfill mode resumes from
// the latest stored message when one exists, so restarts never re-walk the
// whole horizon; a sink lookup failure degrades to the configured fallback,
// but a corrupt stored timestamp is propagated.
func (r *Resolver) Resolve(channelID string, backfill bool) (time.Time, error) {
	// Rounding "now" down keeps repeated polling windows stable and safely
	// overlapping.
	dtTo := r.now().UTC().Truncate(5 * time.Minute)
	if !backfill {
		return dtTo.Add(-r.pollingInterval), nil
	}

	dtFrom := dtTo.Add(-r.historyHorizon)
	if !r.historyStart.IsZero() {
		dtFrom = r.historyStart
	}

	stored, err := r.source.LatestTimestamp(channelID)
	switch {
	case errors.Is(err, index.ErrBadTimestamp):
		return time.Time{}, err
	case errors.Is(err, sql.ErrNoRows):
		r.log.Info().Str("channel_id", channelID).Msg("no stored messages for channel, using fallback start")
	case err != nil:
		r.log.Warn().Err(err).Str("channel_id", channelID).Msg("latest-timestamp lookup failed, using fallback start")
	default:
		if stored.After(dtFrom) {
			dtFrom = stored
		}
	}

	r.log.Info().Str("channel_id", channelID).Time("dt_from", dtFrom).Msg("resolved backfill start")
	return dtFrom, nil
}
