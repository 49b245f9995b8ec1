package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

// RabbitNotifier publishes notifications for the mail delivery consumer and
// waits for the broker to confirm them.
type RabbitNotifier struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
	log        *zap.Logger
}

func NewRabbitNotifier(conn *amqp.Connection, exchange, routingKey string, log *zap.Logger) (*RabbitNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &RabbitNotifier{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		log:        logger.OrNop(log),
	}, nil
}

// Send reports false when the broker nacked the message.
func (p *RabbitNotifier) Send(ctx context.Context, n models.Notification) (bool, error) {
	msg, err := notificationMessage(n, time.Now())
	if err != nil {
		return false, err
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		p.routingKey+"."+string(n.Kind),
		false,
		false,
		msg,
	)
	if err != nil {
		return false, fmt.Errorf("failed to publish notification: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed waiting for broker confirm: %w", err)
	}

	p.log.Info("notification published",
		zap.String(logger.FieldJobID, n.JobID.String()),
		zap.String("kind", string(n.Kind)),
		zap.Bool("acked", acked),
	)
	return acked, nil
}

func (p *RabbitNotifier) Close() error {
	return p.channel.Close()
}

func notificationMessage(n models.Notification, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode notification: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Type:         string(n.Kind),
		Body:         body,
	}, nil
}

// LogNotifier only writes notifications to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger.OrNop(log)}
}

func (l *LogNotifier) Send(_ context.Context, n models.Notification) (bool, error) {
	l.log.Info("notification",
		zap.String(logger.FieldJobID, n.JobID.String()),
		zap.String("kind", string(n.Kind)),
		zap.String("subject", n.Subject),
		zap.Strings("recipients", n.Recipients),
		zap.Float64("overall_score", n.OverallScore),
		zap.Int("matches", len(n.Matches)),
	)
	return true, nil
}
