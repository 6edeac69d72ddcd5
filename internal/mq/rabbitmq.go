package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	ExchangeTasks = "folder-delete.exchange"
	ExchangeRetry = "folder-delete.retry.exchange"
	ExchangeDLQ   = "folder-delete.dlq.exchange"

	QueueTasks = "folder-delete.queue"
	QueueRetry = "folder-delete.retry.queue"
	QueueDLQ   = "folder-delete.dlq.queue"

	RoutingTask  = "folder-delete"
	RoutingRetry = "folder-delete.retry"
	RoutingDLQ   = "folder-delete.dlq"
)

type exchangeBinding struct {
	exchange string
	queue    string
	routing  string
	args     amqp.Table
}

// The retry queue has no consumer; expired messages dead-letter back onto the task exchange.
var topology = []exchangeBinding{
	{exchange: ExchangeTasks, queue: QueueTasks, routing: RoutingTask},
	{exchange: ExchangeRetry, queue: QueueRetry, routing: RoutingRetry, args: amqp.Table{
		"x-dead-letter-exchange":    ExchangeTasks,
		"x-dead-letter-routing-key": RoutingTask,
	}},
	{exchange: ExchangeDLQ, queue: QueueDLQ, routing: RoutingDLQ},
}

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn == nil || c.Conn.IsClosed() || c.Channel == nil || c.Channel.IsClosed()
}

// DeclareTopology declares the task, retry and dead-letter exchanges and queues.
func (c *Client) DeclareTopology() error {
	for _, b := range topology {
		if err := c.Channel.ExchangeDeclare(b.exchange, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
		}
		if _, err := c.Channel.QueueDeclare(b.queue, true, false, false, false, b.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := c.Channel.QueueBind(b.queue, b.routing, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeTasks, RoutingTask, body, "")
}

// PublishRetry parks body on the retry queue for delay before it returns to the task queue.
func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	expiration := fmt.Sprintf("%d", delay.Milliseconds())
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, expiration)
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    uuid.NewString(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// Publisher holds one lazily dialed publishing connection and redials after it drops.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		log.Warn().Msg("rabbitmq publisher connection lost; redialing")
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Publisher) PublishTask(ctx context.Context, body []byte) error {
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.PublishTask(ctx, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
