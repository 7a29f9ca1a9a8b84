package rabbitmq

import (
	"account_service/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func New(urlForConn string, queueName string) (*RabbitMQClient, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(urlForConn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		queueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
		queue:   q,
	}, nil
}

func (r *RabbitMQClient) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "rabbitmq.SendMessage"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		"",
		r.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * StartReading читает сообщения из очереди и передает их handler, пока ctx не отменен.
// Сообщение подтверждается после успешной обработки, иначе возвращается в очередь.
func (r *RabbitMQClient) StartReading(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
	const op = "rabbitmq.StartReading"

	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%s: qos: %w", op, err)
	}

	deliveries, err := r.channel.ConsumeWithContext(ctx, r.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: consume: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%s: delivery channel closed", op)
			}

			if err := handler(ctx, d.Body); err != nil {
				_ = d.Nack(false, !d.Redelivered)
				continue
			}

			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() {
	_ = r.channel.Close()
	_ = r.conn.Close()
}
