package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/config"
	"github.com/bailaid/case-ledger/events"
)

// Notify bridge: subscribes to case events on Redis and tells the duty desk
// which cases became fully paid and are waiting for an OCS release.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := events.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	err = subscriber.Subscribe(ctx, events.StreamCases, func(e events.Event) {
		switch e.Type {
		case events.EventCasePaid:
			log.Info("case fully paid, awaiting release",
				zap.Any("case_id", e.Payload["case_id"]),
				zap.Any("station", e.Payload["station"]),
				zap.Any("report_number", e.Payload["report_number"]),
			)
		case events.EventCaseReleased:
			log.Info("detainee released", zap.Any("case_id", e.Payload["case_id"]))
		default:
			log.Debug("event", zap.String("type", e.Type))
		}
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify bridge started", zap.String("stream", events.StreamCases))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")
}
