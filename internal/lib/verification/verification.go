package verification

import (
	"context"
	"fmt"
	"log/slog"

	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"
)

const (
	PurposeVerification = "email_verification"
	PurposeReset        = "password_reset"
)

var subjects = map[string]string{
	PurposeVerification: "Confirm your email",
	PurposeReset:        "Reset your password",
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// LinkSender delivers one-time links to users through a Publisher.
type LinkSender struct {
	log *slog.Logger
	pub Publisher
}

func New(log *slog.Logger, pub Publisher) *LinkSender {
	return &LinkSender{
		log: log,
		pub: pub,
	}
}

func (s *LinkSender) SendLink(ctx context.Context, email, link, purpose string) error {
	const op = "verification.SendLink"

	subject, ok := subjects[purpose]
	if !ok {
		return fmt.Errorf("%s: unknown purpose %q", op, purpose)
	}

	msg := models.Message{
		Email:   email,
		Link:    link,
		Purpose: purpose,
		Subject: subject,
	}

	if err := s.pub.SendMessage(ctx, msg); err != nil {
		s.log.Error("failed to send link", slog.String("op", op), slog.String("purpose", purpose), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LogPublisher prints messages instead of delivering them. Used when no
// message broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.log.Info("email delivery is stubbed, link not sent",
		slog.String("to", msg.Email),
		slog.String("purpose", msg.Purpose),
		slog.String("link", msg.Link),
	)

	return nil
}
