package worker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer pulls production tasks from the durable task queue and feeds them
// to the handler. Unprocessable messages are nacked without requeue so the
// dead-letter topology picks them up.
type Consumer struct {
	channel   *amqp.Channel
	queueName string
	handler   *TaskHandler
	logger    *zap.Logger
}

// NewConsumer creates a consumer over an already-declared queue.
func NewConsumer(channel *amqp.Channel, queueName string, handler *TaskHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		channel:   channel,
		queueName: queueName,
		handler:   handler,
		logger:    logger.Named("Consumer"),
	}
}

// Start consumes until the context is canceled or the delivery channel
// closes. One message is processed at a time per consumer (prefetch 1).
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set channel QoS: %w", err)
	}

	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.queueName,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", c.queueName, err)
	}

	c.logger.Info("Consuming production tasks", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopping", zap.Error(ctx.Err()))
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.queueName)
			}
			c.process(ctx, delivery)
		}
	}
}

func (c *Consumer) process(ctx context.Context, delivery amqp.Delivery) {
	if err := c.handler.Handle(ctx, delivery.Body); err != nil {
		c.logger.Error("Task rejected, routing to dead-letter queue",
			zap.String("message_id", delivery.MessageId),
			zap.Error(err))
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ack message", zap.Error(err))
	}
}
