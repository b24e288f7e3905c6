package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/shutdown"
	"github.com/tom-notifier/shared/wire"
	"github.com/tom-notifier/ws-delivery/internal/auth"
	"github.com/tom-notifier/ws-delivery/internal/config"
	"github.com/tom-notifier/ws-delivery/internal/connection"
	"github.com/tom-notifier/ws-delivery/internal/dedup"
	"github.com/tom-notifier/ws-delivery/internal/event"
	"github.com/tom-notifier/ws-delivery/internal/handlers"
	"github.com/tom-notifier/ws-delivery/internal/netstatus"
	"github.com/tom-notifier/ws-delivery/internal/ratelimit"
	"github.com/tom-notifier/ws-delivery/internal/registry"
	"github.com/tom-notifier/ws-delivery/internal/ticket"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	tickets := ticket.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TicketLifespan)
	if err := tickets.Ping(context.Background()); err != nil {
		slog.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer tickets.Close()

	reg := registry.New()
	dedupCache := dedup.New(cfg.DedupTTL)
	limiter := ratelimit.New(cfg.TicketRatePS, cfg.TicketBurst)
	defer limiter.Stop()

	queueName := wire.NotificationsQueuePrefix + uuid.NewString()
	busClient := bus.NewClient(cfg.RabbitMQURL, cfg.BusReconnectDelay, declareTopology(queueName))

	publisher := event.NewConfirmationPublisher(busClient)
	consumer := event.NewConsumer(dedupCache, func(evt wire.NotificationEvent, frame wire.WSFrame) {
		if len(evt.UserIDs) == 0 {
			reg.Broadcast(frame)
			return
		}
		for _, userID := range evt.UserIDs {
			reg.Deliver(userID, frame)
		}
	})
	busClient.Subscribe(queueName, consumer.Handle)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAlgorithm)
	connOptions := connection.Options{
		BufferSize:    cfg.ConnectionBufferSize,
		PingInterval:  cfg.PingInterval,
		RetryInterval: cfg.RetryInterval,
		RetryMaxCount: cfg.RetryMaxCount,
	}
	h := handlers.New(verifier, tickets, limiter, reg, publisher, busClient, connOptions)

	app := fiber.New()
	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	h.Register(app)

	seq := shutdown.New(cfg.ShutdownGrace)

	busCtx, cancelBus := context.WithCancel(context.Background())
	seq.Go(busCtx, cancelBus, func(ctx context.Context) {
		busClient.Run(ctx)
	})

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	seq.Go(sweepCtx, cancelSweep, func(ctx context.Context) {
		dedupCache.Run(ctx, cfg.DedupSweepInterval)
	})

	netstatusCtx, cancelNetstatus := context.WithCancel(context.Background())
	seq.Go(netstatusCtx, cancelNetstatus, func(ctx context.Context) {
		netstatus.Run(ctx, busClient.Lifecycle(), reg)
	})

	go func() {
		slog.Info("ws-delivery: listening", "addr", cfg.BindAddr)
		if err := app.Listen(cfg.BindAddr); err != nil {
			slog.Error("ws-delivery: listener stopped", "error", err)
		}
	}()

	seq.Wait()
	_ = app.ShutdownWithContext(context.Background())
}

// declareTopology binds this instance's own exclusive, auto-delete
// queue to every notification routing key (spec §6: "WS-Delivery
// declares its own queue bound to notifications exchange for all
// keys"), plus the confirmations exchange this instance publishes to.
func declareTopology(queueName string) bus.Topology {
	return func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(wire.NotificationsExchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.ExchangeDeclare(wire.ConfirmationsExchange, "fanout", true, false, false, false, nil); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(queueName, false, true, true, false, nil); err != nil {
			return err
		}
		for _, key := range []string{string(wire.StatusNew), string(wire.StatusUpdated), string(wire.StatusDeleted)} {
			if err := ch.QueueBind(queueName, key, wire.NotificationsExchange, false, nil); err != nil {
				return err
			}
		}
		return nil
	}
}
