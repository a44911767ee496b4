package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"logichat/internal/fanout"
)

// EventRelayWorker consumes chat events from the broker queue and dispatches
// them into the in-process hub. A single consumer goroutine per instance
// keeps hub dispatch order equal to queue order.
type EventRelayWorker struct {
	conn      *amqp.Connection
	hub       *fanout.Hub
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventRelayWorker(conn *amqp.Connection, hub *fanout.Hub, queueName string) *EventRelayWorker {
	return &EventRelayWorker{
		conn:      conn,
		hub:       hub,
		queueName: queueName,
	}
}

func (w *EventRelayWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event fanout.Event
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Printf("worker decode chat event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				w.hub.Dispatch(event)
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *EventRelayWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
