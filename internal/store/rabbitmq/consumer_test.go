package rabbitmq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/agent-backend/internal/logger"
)

func TestRetryCount(t *testing.T) {
	gt.Value(t, retryCount(nil)).Equal(0)
	gt.Value(t, retryCount(amqp.Table{retryHeader: int32(2)})).Equal(2)
	gt.Value(t, retryCount(amqp.Table{retryHeader: int64(3)})).Equal(3)
	gt.Value(t, retryCount(amqp.Table{retryHeader: "x"})).Equal(0)
}

func TestQueueNames(t *testing.T) {
	gt.Value(t, retryQueue("chat_jobs")).Equal("chat_jobs.retry")
	gt.Value(t, deadQueue("chat_jobs")).Equal("chat_jobs.dlq")
}

func TestPublishConsume(t *testing.T) {
	url := os.Getenv("TEST_RABBIT_URL")
	if url == "" {
		t.Skip("TEST_RABBIT_URL not set")
	}
	queue := "agent_test_jobs_" + time.Now().Format("150405.000")

	pub, err := NewPublisher(url, queue)
	gt.NoError(t, err).Required()
	defer pub.Close()

	cons, err := NewConsumer(url, queue, ConsumerOptions{Concurrency: 1, Logger: logger.Nop()})
	gt.NoError(t, err).Required()
	defer cons.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = cons.Run(ctx, func(ctx context.Context, jobID string) error {
			got <- jobID
			return nil
		})
	}()

	gt.NoError(t, pub.PublishJob(ctx, "01JOBTEST")).Required()
	select {
	case id := <-got:
		gt.Value(t, id).Equal("01JOBTEST")
	case <-ctx.Done():
		t.Fatal("job not delivered")
	}
}
