package mailer

import (
	"fmt"

	"account_service/internal/models"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (m *Mailer) Send(msg models.Message) error {
	const op = "mailer.Send"

	if err := m.dialer().DialAndSend(m.build(msg)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Mailer) build(msg models.Message) *gomail.Message {
	subject := msg.Subject
	if subject == "" {
		subject = "Account notification"
	}

	mail := gomail.NewMessage()
	mail.SetHeader("To", msg.Email)
	mail.SetHeader("From", m.Username)
	mail.SetHeader("Subject", subject)

	mail.SetBody("text/plain", body(msg))

	return mail
}

func (m *Mailer) dialer() *gomail.Dialer {
	return gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
}

func body(msg models.Message) string {
	switch msg.Purpose {
	case "password_reset":
		return fmt.Sprintf("To reset your password open the link below.\n\n%s\n\nIf you did not ask for a reset, ignore this email.", msg.Link)
	default:
		return fmt.Sprintf("To confirm your email open the link below.\n\n%s", msg.Link)
	}
}
