package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v3"

	"github.com/tom-notifier/core/internal/auth"
	"github.com/tom-notifier/core/internal/config"
	"github.com/tom-notifier/core/internal/db"
	"github.com/tom-notifier/core/internal/event"
	"github.com/tom-notifier/core/internal/handlers"
	"github.com/tom-notifier/core/internal/repository"
	"github.com/tom-notifier/core/internal/service"
	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/shutdown"
	"github.com/tom-notifier/shared/wire"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	conn, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		slog.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	repo := repository.New(conn)

	busClient := bus.NewClient(cfg.RabbitMQURL, cfg.BusReconnectDelay, declareTopology)
	consumer := event.NewConfirmationConsumer(repo)
	busClient.Subscribe(wire.ConfirmationsQueue, consumer.Handle)

	publisher := event.NewPublisher(busClient)
	svc := service.New(repo, publisher, cfg.MaxContentBytes)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAlgorithm)
	h := handlers.New(svc, verifier)

	app := fiber.New(fiber.Config{BodyLimit: cfg.MaxBodyBytes})
	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	h.Register(app)

	seq := shutdown.New(cfg.ShutdownGrace)

	busCtx, cancelBus := context.WithCancel(context.Background())
	seq.Go(busCtx, cancelBus, func(ctx context.Context) {
		busClient.Run(ctx)
	})

	go func() {
		slog.Info("core: listening", "addr", cfg.BindAddr)
		if err := app.Listen(cfg.BindAddr); err != nil {
			slog.Error("core: listener stopped", "error", err)
		}
	}()

	seq.Wait()
	_ = app.ShutdownWithContext(context.Background())
}

// declareTopology matches spec §6's bus topology: a topic exchange for
// notification events and a fanout exchange feeding Core's own
// confirmations queue.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(wire.NotificationsExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(wire.ConfirmationsExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(wire.ConfirmationsQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(wire.ConfirmationsQueue, "", wire.ConfirmationsExchange, false, nil)
}
