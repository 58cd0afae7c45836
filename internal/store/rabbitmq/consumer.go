package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

const retryHeader = "x-retry-count"

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, jobID string) error

type ConsumerOptions struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	opts  ConsumerOptions
	// guards publishes to the retry queue from the worker pool
	mu sync.Mutex
}

func NewConsumer(url, queue string, opts ConsumerOptions) (*Consumer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Concurrency > 50 {
		opts.Concurrency = 50
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, goerr.Wrap(err, "rabbit dial failed")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, goerr.Wrap(err, "rabbit channel failed")
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(opts.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, goerr.Wrap(err, "rabbit qos failed")
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, opts: opts}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is done, dispatching deliveries to a worker pool.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return goerr.Wrap(err, "rabbit consume failed", goerr.V("queue", c.queue))
	}

	logger := c.opts.Logger
	logger.Info("worker started", "queue", c.queue, "concurrency", c.opts.Concurrency)

	jobs := make(chan amqp.Delivery, c.opts.Concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.opts.Concurrency)
	for i := 0; i < c.opts.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(ctx, logger.With("worker", workerID), d, handle)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return goerr.New("delivery channel closed", goerr.V("queue", c.queue))
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, logger *slog.Logger, d amqp.Delivery, handle Handler) {
	var m JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		logger.Warn("bad message", "error", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := handle(ctx, m.JobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			logger.Error("ack failed", "job_id", m.JobID, "error", err)
		}
		return
	}

	attempt := retryCount(d.Headers)
	logger.Warn("job failed", "job_id", m.JobID, "attempt", attempt, "cost", time.Since(start), "error", err)
	if attempt >= c.opts.MaxRetries {
		_ = d.Nack(false, false)
		return
	}
	if err := c.scheduleRetry(ctx, d, attempt+1); err != nil {
		logger.Error("retry publish failed", "job_id", m.JobID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) scheduleRetry(ctx context.Context, d amqp.Delivery, attempt int) error {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(cctx, "", retryQueue(c.queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      amqp.Table{retryHeader: int32(attempt)},
		Expiration:   strconv.FormatInt(c.opts.RetryDelay.Milliseconds(), 10),
		Timestamp:    time.Now(),
	})
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
