package main

import (
	"os"

	"discord-scraper/bot"
	"discord-scraper/config"
	"discord-scraper/utils"
)

func main() {
	logger := utils.NewLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}
	logger = utils.NewLogger(cfg.LogLevel)

	b, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	if err := b.Run(); err != nil {
		// Exit non-zero so an external supervisor restarts the process.
		logger.Fatal().Err(err).Msg("scraper terminated")
	}
}
