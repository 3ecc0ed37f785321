package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/app"
	"github.com/vladislavdragonenkov/filmstore/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level, format string) error {
	log.SetFormatter(newFormatter(format))

	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return fmt.Errorf("invalid log level %q, using info: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

func newFormatter(format string) log.Formatter {
	if strings.EqualFold(strings.TrimSpace(format), app.LogFormatJSON) {
		return &log.JSONFormatter{}
	}
	return &log.TextFormatter{FullTimestamp: true}
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		if errors.Is(err, app.ErrHelpWanted) {
			fmt.Println(strings.TrimPrefix(err.Error(), app.ErrHelpWanted.Error()+"\n"))
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Warn("logger configured with fallback level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"storage":      cfg.StorageDriver,
		"version":      version.GetVersion(),
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
