package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/events"
)

// PaymentLogFile is the file, under the log directory, payments are
// appended to.
const PaymentLogFile = "payments.log"

// StartPaymentConsumer connects to RabbitMQ, declares the events queue
// (durable) and appends one line per payment.added message to
// <logDir>/payments.log.  Other event types are acknowledged and skipped.
// It reconnects with backoff until ctx is cancelled, then returns
// ctx.Err().  A message that cannot be handled is rejected without requeue
// so the consumer keeps going.
func StartPaymentConsumer(ctx context.Context, url, logDir string, log *zap.SugaredLogger) error {
	if url == "" {
		url = DefaultURL
	}
	if logDir == "" {
		logDir = "logs"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warnw("payment consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, logDir, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnw("payment consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logDir string, log *zap.SugaredLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warnw("payment consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(EventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleMessage(logDir, d.Type, d.Body); err != nil {
				log.Warnw("payment consumer: handle message failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage processes one delivery: a payment.added body is appended to
// the payment log, anything else is ignored.
func HandleMessage(logDir, eventType string, body []byte) error {
	if eventType != events.PaymentAdded {
		return nil
	}
	var ev PaymentAddedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, PaymentLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Payment recorded | bill_id=%s | table=%d | name=%q | section=%q | amount=%.2f | offered=%.2f | method=%s | type=%s | items=%d\n",
		ev.PaidAt, ev.BillID, ev.TableNumber, ev.TableName, ev.Section, ev.Amount, ev.OfferedAmount, ev.PaymentMethod, ev.PaymentType, ev.ItemCount)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
