package service

import (
	"os"

	"license-key-engine/internal/config"

	"github.com/rs/zerolog"
)

// 服务层共享配置和日志器，启动时由 main 注入
var (
	cfg    = defaultConfig()
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

func defaultConfig() *config.Config {
	c, err := config.Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Init 注入配置并装配外部协作方
func Init(c *config.Config, l zerolog.Logger) {
	cfg = c
	logger = l

	if c.ShortenerEndpoint != "" {
		Shortener = NewHTTPShortener(c.ShortenerEndpoint, c.ShortenerAPIKey)
	} else {
		Shortener = noopShortener{}
	}

	if c.NotifyEndpoint != "" {
		Notifier = NewHTTPNotifier(c.NotifyEndpoint)
	} else {
		Notifier = logNotifier{}
	}
}
