package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue and exchange names for the order pipeline
const (
	// MainQueue receives order intents from the producer
	MainQueue = "order_tasks"

	// DeadLetterExchange receives messages nacked without requeue on MainQueue
	DeadLetterExchange = "order_dlx"

	// FailedQueue is bound to DeadLetterExchange and feeds the repair consumer
	FailedQueue = "order_failed"

	// ParkingQueue is the terminal destination for intents that exhausted their repair attempts
	ParkingQueue = "order_parking"
)

// Client owns one AMQP connection and one channel. It is created once at
// process start and passed to whichever component needs it.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials the broker and opens a channel
func Connect(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Client{conn: conn, channel: channel}, nil
}

// topologyDeclarer is the slice of *amqp.Channel used to set up queues and
// exchanges
type topologyDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareOrderTopology declares the main queue with dead-letter routing, the
// dead-letter exchange with its failed queue, and the parking queue
func (c *Client) DeclareOrderTopology() error {
	return declareOrderTopology(c.channel)
}

func declareOrderTopology(ch topologyDeclarer) error {
	if _, err := ch.QueueDeclare(MainQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchange,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", MainQueue, err)
	}

	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", DeadLetterExchange, err)
	}

	if _, err := ch.QueueDeclare(FailedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", FailedQueue, err)
	}

	if err := ch.QueueBind(FailedQueue, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", FailedQueue, err)
	}

	if _, err := ch.QueueDeclare(ParkingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ParkingQueue, err)
	}

	return nil
}

// Publish sends a persistent JSON message to the given queue via the default exchange
func (c *Client) Publish(ctx context.Context, queue string, body []byte, messageID string) error {
	err := c.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Consume starts delivering messages from the given queue with prefetch 1, so
// a consumer never holds more than one unacknowledged message per channel
func (c *Client) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s: %w", queue, err)
	}
	return deliveries, nil
}

// NotifyClose returns a channel that receives the error when the connection dies
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close shuts down the channel and the connection
func (c *Client) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
