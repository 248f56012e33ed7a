package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMqClient struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queueName  string

	mu         sync.Mutex
	deliveries map[string]amqp.Delivery
	stopCh     chan struct{}
}

func NewRabbitMqClient(url, user, password, queueName string) (*RabbitMqClient, error) {
	amqpURI := url
	if user != "" {
		// Credentials are supplied separately so the url can be checked into config.
		amqpURI = strings.Replace(url, "amqp://", fmt.Sprintf("amqp://%s:%s@", user, password), 1)
	}

	conn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &RabbitMqClient{
		connection: conn,
		channel:    ch,
		queueName:  queueName,
		deliveries: make(map[string]amqp.Delivery),
		stopCh:     make(chan struct{}),
	}, nil
}

func (c *RabbitMqClient) SendMessage(ctx context.Context, messageBody string) error {
	return c.channel.PublishWithContext(
		ctx,
		"",          // default exchange
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(messageBody),
		},
	)
}

// ReceiveMessages starts consuming and returns a channel of messages. Each
// message must be acknowledged via DeleteMessage once processed; unacked
// messages are redelivered by the broker.
func (c *RabbitMqClient) ReceiveMessages() (<-chan QueueMessage, error) {
	deliveries, err := c.channel.Consume(
		c.queueName,
		"",    // consumer tag
		false, // autoAck: manual ack so failed handlers lead to redelivery
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from queue %s: %w", c.queueName, err)
	}

	out := make(chan QueueMessage)
	go func() {
		defer close(out)
		for {
			select {
			case <-c.stopCh:
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				receipt := strconv.FormatUint(d.DeliveryTag, 10)
				c.mu.Lock()
				c.deliveries[receipt] = d
				c.mu.Unlock()
				out <- QueueMessage{Body: string(d.Body), Receipt: receipt}
			}
		}
	}()
	return out, nil
}

func (c *RabbitMqClient) DeleteMessage(receipt string) error {
	c.mu.Lock()
	delivery, ok := c.deliveries[receipt]
	if ok {
		delete(c.deliveries, receipt)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown delivery receipt: %s", receipt)
	}
	return delivery.Ack(false)
}

func (c *RabbitMqClient) GetQueueName() string {
	return c.queueName
}

// Ping checks the liveness of the underlying connection.
func (c *RabbitMqClient) Ping() error {
	if c.connection == nil || c.connection.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

func (c *RabbitMqClient) Stop() error {
	close(c.stopCh)
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.connection.Close()
}
