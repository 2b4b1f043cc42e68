package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"promo-server/internal/config"
	"promo-server/internal/models"
)

// Notifier makes the audit decision visible to the human-review surface. It
// performs no gating of its own; the flags in the payload are authoritative.
type Notifier interface {
	// Dispatch publishes the review notification and reports success.
	// Failures are logged by the implementation; the pipeline treats them as
	// best-effort.
	Dispatch(ctx context.Context, payload models.ReviewNotificationPayload) bool
}

// rabbitMQNotifier publishes review notifications to a durable queue polled
// by the review interface.
type rabbitMQNotifier struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQNotifier declares the review queue and returns the notifier.
// The channel is owned by the caller and closed there.
func NewRabbitMQNotifier(ch *amqp.Channel, cfg *config.Config, logger *zap.Logger) (Notifier, error) {
	queueName := cfg.ReviewQueueName

	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare review queue %q: %w", queueName, err)
	}

	logger.Info("Review queue declared", zap.String("queue", queueName))
	return &rabbitMQNotifier{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("ReviewNotifier"),
	}, nil
}

// Dispatch publishes the payload. Returns false on marshal or publish
// failure; never panics, never aborts the caller.
func (n *rabbitMQNotifier) Dispatch(ctx context.Context, payload models.ReviewNotificationPayload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Failed to marshal review notification",
			zap.String("batch_id", payload.BatchID), zap.Error(err))
		return false
	}

	err = n.channel.PublishWithContext(ctx,
		"",          // default exchange
		n.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "promo-worker",
			MessageId:    payload.BatchID + "-review",
		},
	)
	if err != nil {
		n.logger.Error("Failed to publish review notification",
			zap.String("batch_id", payload.BatchID), zap.Error(err))
		return false
	}

	n.logger.Info("Review notification dispatched",
		zap.String("batch_id", payload.BatchID),
		zap.String("status", payload.Status),
		zap.Float64("score", payload.Score))
	return true
}
