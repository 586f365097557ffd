package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ProducerOption func(p *Producer)

func WithProducerDialer(d Dialer) ProducerOption {
	return func(p *Producer) {
		p.dial = d
	}
}

// Producer publishes persistent messages. Every call to Publish uses its own connection.
type Producer struct {
	url  string
	dial Dialer
}

func NewProducer(url string, opts ...ProducerOption) *Producer {
	p := &Producer{url: url, dial: DialAMQP}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish declares the durable queue and publishes body with persistent delivery mode.
// Errors are returned as they come from the broker client.
func (p *Producer) Publish(ctx context.Context, queue string, body []byte) error {
	conn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declare(ch, queue); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}
