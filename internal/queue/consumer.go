package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultReconnectDelay = 5 * time.Second

// ErrRequeue makes the consumer hand the message back to the broker instead of dropping it.
var ErrRequeue = errors.New("requeue message")

// Handler processes the body of one delivery. A nil error acks the message,
// ErrRequeue nacks it with requeue and any other error nacks it without requeue.
type Handler func(ctx context.Context, body []byte) error

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

type ConsumerOption func(c *Consumer)

func WithConsumerDialer(d Dialer) ConsumerOption {
	return func(c *Consumer) {
		c.dial = d
	}
}

func WithReconnectDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.reconnectDelay = d
	}
}

func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.tag = tag
	}
}

// Consumer is a long lived subscription to one durable queue. It reconnects on its own
// when the broker goes away and never holds more than maxInFlight unacked messages.
type Consumer struct {
	url            string
	dial           Dialer
	reconnectDelay time.Duration
	tag            string

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	log      *zap.SugaredLogger
}

func NewConsumer(url string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		url:            url,
		dial:           DialAMQP,
		reconnectDelay: defaultReconnectDelay,
		stopCh:         make(chan struct{}),
		log:            zap.S().Named("consumer"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// Stop asks Start to close the subscription and returns immediately.
// Start returns once in-flight handlers are done and the connection is closed.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Consumer) stopping(ctx context.Context) bool {
	select {
	case <-c.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Start consumes queue until Stop is called or ctx is done. Each delivery runs handler in its own
// goroutine; at most maxInFlight handlers run at the same time, across reconnections.
func (c *Consumer) Start(ctx context.Context, queue string, handler Handler, maxInFlight int) error {
	if maxInFlight <= 0 {
		return fmt.Errorf("max in flight must be positive, got %d", maxInFlight)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxInFlight)

	defer func() {
		wg.Wait()
		c.setState(StateStopped)
		c.log.Infow("consumer stopped", "queue", queue)
	}()

	for {
		if c.stopping(ctx) {
			return nil
		}

		c.setState(StateConnecting)
		err := c.consume(ctx, queue, handler, sem, &wg)
		if c.stopping(ctx) {
			return nil
		}

		c.setState(StateDisconnected)
		metrics.IncreaseQueueReconnectsMetric()
		c.log.Errorw("lost connection to the broker", "queue", queue, "error", err, "retry_in", c.reconnectDelay)

		select {
		case <-time.After(c.reconnectDelay):
		case <-c.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// consume runs one connection until it breaks or the consumer is stopped.
// It always returns a non-nil error unless it was stopped.
func (c *Consumer) consume(ctx context.Context, queue string, handler Handler, sem chan struct{}, wg *sync.WaitGroup) error {
	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	defer func() {
		if !conn.IsClosed() {
			_ = conn.Close()
		}
	}()
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(cap(sem), 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	deliveries, err := ch.Consume(queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming queue %s: %w", queue, err)
	}

	c.setState(StateConnected)
	c.log.Infow("consuming", "queue", queue, "prefetch", cap(sem))

	for {
		select {
		case <-c.stopCh:
			return c.drain(wg)
		case <-ctx.Done():
			return c.drain(wg)
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if c.stopping(ctx) {
				// never started, the broker redelivers it
				_ = d.Nack(false, true)
				return c.drain(wg)
			}

			select {
			case sem <- struct{}{}:
			case <-c.stopCh:
				_ = d.Nack(false, true)
				return c.drain(wg)
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return c.drain(wg)
			case amqpErr, ok := <-closed:
				// the broker already took the delivery back
				if !ok || amqpErr == nil {
					return errors.New("connection closed")
				}
				return amqpErr
			}

			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				c.dispatch(ctx, d, handler)
			}(d)
		}
	}
}

// drain waits for in-flight handlers so their acks go out before the channel closes.
func (c *Consumer) drain(wg *sync.WaitGroup) error {
	c.setState(StateClosing)
	wg.Wait()
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handler Handler) {
	err := c.handle(ctx, d.Body, handler)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Errorw("failed to ack message", "delivery_tag", d.DeliveryTag, "error", ackErr)
			return
		}
		metrics.IncreaseQueueDeliveriesMetric(metrics.DeliveryAcked)
	case errors.Is(err, ErrRequeue):
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.log.Errorw("failed to requeue message", "delivery_tag", d.DeliveryTag, "error", nackErr)
			return
		}
		metrics.IncreaseQueueDeliveriesMetric(metrics.DeliveryRequeued)
	default:
		c.log.Warnw("handler failed, dropping message", "delivery_tag", d.DeliveryTag, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.Errorw("failed to nack message", "delivery_tag", d.DeliveryTag, "error", nackErr)
			return
		}
		metrics.IncreaseQueueDeliveriesMetric(metrics.DeliveryNacked)
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, body)
}
