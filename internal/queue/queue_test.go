package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/model"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []string
	body []any
}

func (s *recordingSink) Publish(_ context.Context, eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, eventType)
	s.body = append(s.body, payload)
	return nil
}

func TestForwarderRelaysBusEvents(t *testing.T) {
	bus := events.NewBus(0, nil)
	sink := &recordingSink{}
	fw := NewForwarder(sink, 8, nil)
	fw.Start(bus)

	bus.Emit(events.TableUpdated, 3)
	bus.Emit(events.PaymentAdded, 3, model.Bill{
		ID: "b-1", TableNumber: 3, Amount: 21.5,
		Items:     []model.OrderItem{{ID: 1, Quantity: 2}, {ID: 2, Quantity: 1}},
		Timestamp: time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC),
	})
	bus.Emit(events.PaymentAdded, "malformed")
	fw.Stop()

	if len(sink.got) != 2 || sink.got[0] != events.TableUpdated || sink.got[1] != events.PaymentAdded {
		t.Fatalf("expected table and payment events, got %v", sink.got)
	}
	pay := sink.body[1].(PaymentAddedEvent)
	if pay.BillID != "b-1" || pay.ItemCount != 3 || pay.PaidAt != "2026-02-01T20:00:00Z" {
		t.Fatalf("unexpected payment payload %+v", pay)
	}
	if bus.Count(events.TableUpdated) != 0 {
		t.Fatal("expected forwarder unsubscribed after Stop")
	}
}

func TestForwarderStopWithoutStart(t *testing.T) {
	fw := NewForwarder(&recordingSink{}, 1, nil)
	fw.Stop()
	fw.Stop()
}

func TestHandleMessageAppendsPaymentLine(t *testing.T) {
	dir := t.TempDir()
	body, _ := json.Marshal(PaymentAddedEvent{
		BillID: "b-9", TableNumber: 12, TableName: "Table 12", Section: "Terrasse",
		Amount: 48, PaymentMethod: model.PaymentCash, PaymentType: model.PaymentTypeFull,
		ItemCount: 4, PaidAt: "2026-02-01T20:00:00Z",
	})
	if err := HandleMessage(dir, events.PaymentAdded, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := HandleMessage(dir, events.TableUpdated, []byte(`{"table_id":1}`)); err != nil {
		t.Fatalf("expected other events ignored, got %v", err)
	}
	if err := HandleMessage(dir, events.PaymentAdded, []byte("{")); err == nil {
		t.Fatal("expected malformed payment rejected")
	}

	data, err := os.ReadFile(filepath.Join(dir, PaymentLogFile))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "bill_id=b-9") || !strings.Contains(lines[0], "amount=48.00") {
		t.Fatalf("unexpected log line %q", lines[0])
	}
}
