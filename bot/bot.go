package bot

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"discord-scraper/config"
	"discord-scraper/health"
	"discord-scraper/index"
	"discord-scraper/scraper"
)

// Bot wires the Discord session, the three collection paths and the sink
// together and owns their lifecycle.
type Bot struct {
	cfg     config.Config
	session *discordgo.Session
	idx     *index.Index
	log     zerolog.Logger

	queue     *scraper.Queue
	consumer  *scraper.Consumer
	scheduler *scheduler
}

// New creates the session and opens the index. Nothing talks to Discord
// until Run.
func New(cfg config.Config, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// MessageContent is needed to see full message text, not just mentions
	// of the bot.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	idx, err := index.Open(cfg.IndexPath, logger)
	if err != nil {
		return nil, err
	}

	return &Bot{cfg: cfg, session: session, idx: idx, log: logger}, nil
}

// Run opens the gateway connection, resolves the tracked guild and
// channels, starts the collection tasks and blocks until a termination
// signal arrives.
func (b *Bot) Run() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway connection: %w", err)
	}
	defer b.session.Close()
	b.log.Info().Str("user", b.session.State.User.String()).Msg("logged in")

	guild, err := b.findGuild()
	if err != nil {
		return err
	}
	channels, categories, err := b.resolveChannels(guild)
	if err != nil {
		return err
	}

	b.queue = scraper.NewQueue(len(channels) * b.cfg.QueueMultiplier)
	resolver := scraper.NewResolver(b.idx, b.cfg, b.log)
	collector := scraper.NewCollector(b.session, b.idx, resolver, guild, channels, categories, b.cfg.BatchSize, b.log)
	b.consumer = scraper.NewConsumer(b.queue, b.idx, b.session, guild, categories, b.session.State.User.ID, b.log)

	go b.consumer.Run()
	scraper.NewListener(b.queue, b.log).Register(b.session)

	health.NewServer(b.idx, b.cfg.Guild, b.cfg.HealthCheckInterval, b.cfg.ListenAddr, b.log).Start()

	b.scheduler = newScheduler(collector, b.cfg, b.log)
	if err := b.scheduler.start(); err != nil {
		return err
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	b.shutdown()
	return nil
}

// findGuild resolves the configured guild by name among the servers this
// bot belongs to. Matching the name explicitly means a token invited to
// several servers still only scrapes the intended one.
func (b *Bot) findGuild() (*discordgo.Guild, error) {
	guilds, err := b.session.UserGuilds(200, "", "", false)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	for _, g := range guilds {
		if g.Name != b.cfg.Guild {
			continue
		}
		guild, err := b.session.Guild(g.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch guild %s: %w", g.ID, err)
		}
		b.log.Info().Str("guild_id", guild.ID).Msg("listening to server")
		return guild, nil
	}
	return nil, fmt.Errorf("guild %q not found among this bot's servers", b.cfg.Guild)
}

// resolveChannels maps the configured channel IDs onto real guild channels.
func (b *Bot) resolveChannels(guild *discordgo.Guild) ([]*discordgo.Channel, map[string]*discordgo.Channel, error) {
	all, err := b.session.GuildChannels(guild.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list guild channels: %w", err)
	}
	return selectTracked(all, b.cfg.Channels, b.cfg.Guild, b.log)
}

// selectTracked filters the guild's channels down to the configured IDs and
// builds the category lookup used for record context. Ending up with zero
// tracked channels is fatal: the process would only burn API quota.
func selectTracked(all []*discordgo.Channel, ids []string, guildName string, log zerolog.Logger) ([]*discordgo.Channel, map[string]*discordgo.Channel, error) {
	byID := make(map[string]*discordgo.Channel, len(all))
	categories := make(map[string]*discordgo.Channel)
	for _, channel := range all {
		byID[channel.ID] = channel
		if channel.Type == discordgo.ChannelTypeGuildCategory {
			categories[channel.ID] = channel
		}
	}

	var tracked []*discordgo.Channel
	var missing []string
	for _, id := range ids {
		channel, ok := byID[id]
		if !ok || (channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildForum) {
			missing = append(missing, id)
			continue
		}
		tracked = append(tracked, channel)
	}

	log.Info().Int("found", len(tracked)).Int("configured", len(ids)).Msg("resolved tracked channels")
	if len(missing) > 0 {
		log.Warn().Strs("channel_ids", missing).Msg("configured channels not found in guild")
	}
	if len(tracked) == 0 {
		return nil, nil, fmt.Errorf("none of the configured channels exist in guild %q", guildName)
	}
	return tracked, categories, nil
}

// shutdown stops the pull paths, lets the consumer drain the queue behind
// the stop sentinel and closes the index.
func (b *Bot) shutdown() {
	b.log.Info().Msg("shutting down")
	b.scheduler.stop()
	b.queue.Stop()
	b.consumer.Wait()
	if err := b.idx.Close(); err != nil {
		b.log.Error().Err(err).Msg("closing index failed")
	}
}
