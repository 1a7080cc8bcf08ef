// Package queue_publisher provides functions to publish domain events to
// RabbitMQ. Errors are logged and returned so callers can ignore
// failures without interrupting the main request flow: a transition that
// committed must never be rolled back because the broker was down.
package queue_publisher

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	q "github.com/unithrift/marketplace-api/internal/queue"
)

// PublishListingReserved publishes a ListingReservedEvent to the
// listing.reserved queue.
func PublishListingReserved(ctx context.Context, event q.ListingReservedEvent) error {
	return publish(ctx, q.ReservedQueueName, event)
}

// PublishTransactionCompleted publishes a TransactionCompletedEvent to
// the transaction.completed queue.
func PublishTransactionCompleted(ctx context.Context, event q.TransactionCompletedEvent) error {
	return publish(ctx, q.CompletedQueueName, event)
}

// publish marshals the event and delivers it to the named durable
// queue. The connection is short-lived; event volume here is one
// message per human-paced transaction step.
func publish(ctx context.Context, queueName string, event interface{}) error {
	conn, err := amqp.Dial(q.BrokerURL())
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}
