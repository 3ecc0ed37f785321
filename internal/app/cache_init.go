package app

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/cache"
)

// initFilmCache подключает Redis-кэш каталога, если задан RedisURL.
// Недоступный Redis не останавливает запуск: каталог работает напрямую с хранилищем.
func initFilmCache(ctx context.Context, cfg Config, logger *log.Entry) (*redis.Client, *cache.FilmCache) {
	rawURL := strings.TrimSpace(cfg.RedisURL)
	if rawURL == "" {
		return nil, nil
	}

	client, err := cache.NewRedisClient(ctx, rawURL)
	if err != nil {
		logger.WithError(err).Warn("redis is unavailable, catalog cache disabled")
		return nil, nil
	}

	logger.WithField("ttl", cfg.CacheTTL).Info("catalog cache enabled")
	return client, cache.NewFilmCache(client, cfg.CacheTTL)
}

func closeRedis(client *redis.Client, logger *log.Entry) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}
