package rabbitmq

import (
	"github.com/m-mizutani/goerr/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobMessage is the body of every queued delivery.
type JobMessage struct {
	JobID string `json:"job_id"`
}

func retryQueue(queue string) string { return queue + ".retry" }
func deadQueue(queue string) string  { return queue + ".dlq" }

// declareTopology declares the main queue, its retry queue (messages expire
// back into the main queue) and its dead letter queue.
func declareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := retryQueue(queue)
	dlqQ := deadQueue(queue)

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return goerr.Wrap(err, "failed to declare dead letter queue", goerr.V("queue", dlqQ))
	}

	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return goerr.Wrap(err, "failed to declare retry queue", goerr.V("queue", retryQ))
	}

	// reject/nack(requeue=false) dead-letters to the DLQ
	if _, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	); err != nil {
		return goerr.Wrap(err, "failed to declare queue", goerr.V("queue", mainQ))
	}
	return nil
}
