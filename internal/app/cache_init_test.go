package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitFilmCache_Disabled(t *testing.T) {
	client, filmCache := initFilmCache(context.Background(), DefaultConfig(), log.WithField("test", "cache"))
	if client != nil || filmCache != nil {
		t.Fatal("cache must be disabled without STOREFRONT_REDIS_URL")
	}
	closeRedis(nil, log.WithField("test", "cache"))
}

func TestInitFilmCache_UnreachableRedisIsNotFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	client, filmCache := initFilmCache(context.Background(), cfg, log.WithField("test", "cache"))
	if client != nil || filmCache != nil {
		t.Fatal("unreachable redis must disable the cache")
	}
}

func TestInitFilmCache_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisURL = "not-a-redis-url"

	if client, filmCache := initFilmCache(context.Background(), cfg, log.WithField("test", "cache")); client != nil || filmCache != nil {
		t.Fatal("invalid url must disable the cache")
	}
}
