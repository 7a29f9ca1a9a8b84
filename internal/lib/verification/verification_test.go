package verification

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"account_service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	msgs []models.Message
	err  error
}

func (p *recordingPublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestSendLink(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), pub)

	err := s.SendLink(context.Background(), "a@x.com", "http://host/account/verify?token=t", PurposeVerification)
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, models.Message{
		Email:   "a@x.com",
		Link:    "http://host/account/verify?token=t",
		Purpose: PurposeVerification,
		Subject: "Confirm your email",
	}, pub.msgs[0])
}

func TestSendLink_UnknownPurpose(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), pub)

	err := s.SendLink(context.Background(), "a@x.com", "l", "2fa")
	assert.Error(t, err)
	assert.Empty(t, pub.msgs)
}

func TestSendLink_PublisherError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("channel closed")}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), pub)

	err := s.SendLink(context.Background(), "a@x.com", "l", PurposeReset)
	assert.ErrorContains(t, err, "channel closed")
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, p.SendMessage(context.Background(), models.Message{Email: "a@x.com", Link: "http://l", Purpose: PurposeReset}))
	assert.Contains(t, buf.String(), "http://l")
	assert.Contains(t, buf.String(), "a@x.com")
}
