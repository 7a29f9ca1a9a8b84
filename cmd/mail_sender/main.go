package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"account_service/internal/config"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/mailer"
	"account_service/internal/models"
	"account_service/internal/rabbitmq"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type sender interface {
	Send(msg models.Message) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoadMailSender()
	log := setupLogger(cfg.Env)

	log.Info("Starting mail_sender", slog.String("env", cfg.Env))

	startConsumer(ctx, cfg, log)
}

func startConsumer(ctx context.Context, cfg *config.MailSender, log *slog.Logger) {
	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to init rabbitmq", sl.Err(err))
		return
	}
	defer r.Close()

	m := &mailer.Mailer{
		Host:     cfg.Mailer.Host,
		Port:     cfg.Mailer.Port,
		Username: cfg.Mailer.Username,
		Password: cfg.Mailer.Password,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := r.StartReading(ctx, handleMessage(log, m)); err != nil {
			log.Error("failed to read messages", sl.Err(err))
		}
	}()

	log.Info("consumer successfully started", slog.String("queue", cfg.RabbitMQ.QueueName))

	select {
	case <-ctx.Done():
		log.Info("shutting down consumer...")
		<-done
	case <-done:
		log.Info("consumer finished the work")
	}

	log.Info("service gracefully stopped")
}

// handleMessage decodes one queued link and mails it. Malformed payloads
// are dropped since redelivery cannot fix them.
func handleMessage(log *slog.Logger, s sender) func(ctx context.Context, body []byte) error {
	return func(_ context.Context, body []byte) error {
		const op = "mail_sender.handleMessage"

		log := log.With(slog.String("op", op))

		var msg models.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Error("failed to unmarshal message", sl.Err(err))
			return nil
		}

		if msg.Email == "" || msg.Link == "" {
			log.Error("message without recipient or link", slog.String("purpose", msg.Purpose))
			return nil
		}

		if err := s.Send(msg); err != nil {
			log.Error("failed to send message", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}

		log.Info("message sent successfully", slog.String("purpose", msg.Purpose))

		return nil
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		fallthrough
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
