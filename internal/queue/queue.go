package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"compass_sync/internal/logger"
	"compass_sync/internal/notify"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer публикует уведомления в очередь RabbitMQ для слоя доставки.
type Producer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewProducer(url, queueName string) (*Producer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Очередь durable, чтобы уведомления переживали перезапуск брокера
	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	logger.Log.WithFields(logger.Fields{
		"queue":    q.Name,
		"messages": q.Messages,
	}).Info("Notification queue ready")

	return &Producer{conn: conn, ch: ch, queue: q.Name}, nil
}

// Publish реализует notify.Publisher.
func (p *Producer) Publish(ctx context.Context, payload notify.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	return p.ch.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key (имя очереди)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
}

func (p *Producer) Close() {
	p.ch.Close()
	p.conn.Close()
}
