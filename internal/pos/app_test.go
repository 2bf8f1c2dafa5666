package pos

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/kv/kvtest"
	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/repository"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

func newTestApp(t *testing.T, store *kvtest.CountingStore) *App {
	t.Helper()
	app, err := New(context.Background(), store, Config{
		Storage:    storage.Config{WriteDebounce: time.Hour},
		DefaultPIN: "0000",
		BcryptCost: bcrypt.MinCost,
	}, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func openOrder(t *testing.T, app *App, tableID int, items ...model.OrderItem) {
	t.Helper()
	ctx := context.Background()
	tb, err := app.Tables.GetTable(ctx, tableID)
	if err != nil {
		t.Fatalf("get table: %v", err)
	}
	guests := 2
	order := &model.Order{ID: "o", Items: items, Guests: guests, Status: model.OrderActive, Timestamp: time.Now()}
	order.Total = order.ComputeTotal()
	tb.Status, tb.Guests, tb.Order = model.TableOccupied, &guests, order
	if err := app.Tables.UpdateTable(ctx, tb); err != nil {
		t.Fatalf("update table: %v", err)
	}
}

func TestNewSeedsDefaultTables(t *testing.T) {
	app := newTestApp(t, kvtest.New())
	if n := len(app.Tables.GetTables(context.Background())); n != 16 {
		t.Fatalf("expected 16 seeded tables, got %d", n)
	}
}

func TestTableScenario(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())

	openOrder(t, app, 1,
		model.OrderItem{ID: 1, Name: "Croque", Price: 9, Quantity: 1},
		model.OrderItem{ID: 2, Name: "Bière", Price: 6, Quantity: 1},
	)
	tb, _ := app.Tables.GetTable(ctx, 1)
	if tb.Status != model.TableOccupied || tb.Order.Total != 15.0 {
		t.Fatalf("expected occupied table with 15.00, got %+v", tb)
	}

	if _, err := app.Tables.ResetTable(ctx, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	tb, _ = app.Tables.GetTable(ctx, 1)
	if tb.Status != model.TableAvailable || tb.Order != nil || tb.Guests != nil {
		t.Fatalf("expected purged table, got %+v", tb)
	}
	if tb.Name != "Table 1" || tb.Section != model.SectionSalle {
		t.Fatalf("expected name and section intact, got %+v", tb)
	}
}

func TestBillRetentionScenario(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	app.SetClock(func() time.Time { return start.Add(24 * time.Hour) })

	for i := 0; i < 1005; i++ {
		_, err := app.Bills.AddBill(ctx, model.Bill{
			TableNumber: i%16 + 1,
			Amount:      float64(i),
			Timestamp:   start.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("add bill %d: %v", i, err)
		}
	}

	if n := len(app.Bills.GetBills(ctx)); n != repository.DefaultMaxBills {
		t.Fatalf("expected %d live bills, got %d", repository.DefaultMaxBills, n)
	}
	archive := app.Bills.GetArchivedBills(ctx)
	if len(archive) != 5 {
		t.Fatalf("expected 5 archived bills, got %d", len(archive))
	}
	for _, b := range archive {
		if b.Amount > 4 {
			t.Fatalf("expected only the 5 oldest archived, found amount %v", b.Amount)
		}
	}

	app.SetClock(func() time.Time { return start.AddDate(10, 0, 0) })
	if err := app.PerformMaintenance(ctx); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if n := len(app.Bills.GetArchivedBills(ctx)); n != 0 {
		t.Fatalf("expected archive pruned with a far-future clock, got %d", n)
	}
}

func TestCompletePaymentFull(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	var payments []int
	app.Bus.On(events.PaymentAdded, func(args ...any) { payments = append(payments, args[0].(int)) })

	openOrder(t, app, 9,
		model.OrderItem{ID: 1, Name: "Pizza", Price: 14, Quantity: 2},
		model.OrderItem{ID: 2, Name: "Café", Price: 2, Quantity: 2, Offered: true},
	)
	b, err := app.CompletePayment(ctx, 9, Payment{Method: model.PaymentCard})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if b.Amount != 28 || b.OfferedAmount != 4 || b.Section != model.SectionTerrasse || b.PaymentType != model.PaymentTypeFull {
		t.Fatalf("unexpected bill %+v", b)
	}
	tb, _ := app.Tables.GetTable(ctx, 9)
	if tb.Status != model.TableAvailable || tb.Order != nil {
		t.Fatalf("expected table freed, got %+v", tb)
	}
	if len(payments) != 1 || payments[0] != 9 {
		t.Fatalf("expected one payment.added for table 9, got %v", payments)
	}

	if _, err := app.CompletePayment(ctx, 9, Payment{Method: model.PaymentCash}); !errors.Is(err, ErrNoOrder) {
		t.Fatalf("expected ErrNoOrder, got %v", err)
	}
	if _, err := app.CompletePayment(ctx, 99, Payment{}); !errors.Is(err, repository.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestCompletePaymentByItems(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	openOrder(t, app, 2,
		model.OrderItem{ID: 1, Name: "Menu enfant", Price: 8, Quantity: 2},
		model.OrderItem{ID: 2, Name: "Vin", Price: 5, Quantity: 1},
	)

	b, err := app.CompletePayment(ctx, 2, Payment{
		Method:    model.PaymentCash,
		Type:      model.PaymentTypeItems,
		PaidItems: []model.OrderItem{{ID: 1, Name: "Menu enfant", Price: 8, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pay items: %v", err)
	}
	if b.Amount != 8 {
		t.Fatalf("expected 8.00 paid, got %v", b.Amount)
	}
	tb, _ := app.Tables.GetTable(ctx, 2)
	if tb.Order == nil || tb.Order.Total != 13 || tb.Status != model.TableOccupied {
		t.Fatalf("expected 13.00 left on an occupied table, got %+v", tb)
	}

	_, err = app.CompletePayment(ctx, 2, Payment{
		Method:    model.PaymentCash,
		Type:      model.PaymentTypeItems,
		PaidItems: []model.OrderItem{{ID: 1, Price: 8, Quantity: 1}, {ID: 2, Price: 5, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pay rest: %v", err)
	}
	tb, _ = app.Tables.GetTable(ctx, 2)
	if tb.Status != model.TableAvailable || tb.Order != nil {
		t.Fatalf("expected table freed once everything is paid, got %+v", tb)
	}
	if n := len(app.Bills.GetBillsForTable(ctx, 2)); n != 2 {
		t.Fatalf("expected 2 bills for table 2, got %d", n)
	}
}

func TestItemsPaymentUsesOrderPrices(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	openOrder(t, app, 4,
		model.OrderItem{ID: 7, Name: "Steak", Price: 25, Quantity: 2},
		model.OrderItem{ID: 8, Name: "Eau", Price: 3, Quantity: 1, Offered: true},
	)

	b, err := app.CompletePayment(ctx, 4, Payment{
		Method:    model.PaymentCard,
		Type:      model.PaymentTypeItems,
		PaidItems: []model.OrderItem{{ID: 7, Name: "free", Price: 0, Quantity: 1}, {ID: 8, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("pay items: %v", err)
	}
	if b.Amount != 25 || b.OfferedAmount != 3 {
		t.Fatalf("expected 25.00 paid and 3.00 offered, got %v and %v", b.Amount, b.OfferedAmount)
	}
	if len(b.PaidItems) != 2 || b.PaidItems[0].Name != "Steak" || b.PaidItems[0].Price != 25 || b.PaidItems[1].Quantity != 1 {
		t.Fatalf("expected order lines on the bill, got %+v", b.PaidItems)
	}
	tb, _ := app.Tables.GetTable(ctx, 4)
	if tb.Order == nil || len(tb.Order.Items) != 1 || tb.Order.Items[0].Quantity != 1 || tb.Order.Total != 25 {
		t.Fatalf("expected one steak left, got %+v", tb.Order)
	}
}

func TestItemsPaymentRejectsForeignLines(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	openOrder(t, app, 4, model.OrderItem{ID: 7, Name: "Steak", Price: 25, Quantity: 1})

	cases := [][]model.OrderItem{
		{{ID: 99, Name: "Homard", Price: 40, Quantity: 1}},
		{{ID: 7, Quantity: 0}},
		{{ID: 7, Quantity: -1}},
	}
	for _, paid := range cases {
		_, err := app.CompletePayment(ctx, 4, Payment{Method: model.PaymentCash, Type: model.PaymentTypeItems, PaidItems: paid})
		if !errors.Is(err, ErrItemNotInOrder) {
			t.Fatalf("expected ErrItemNotInOrder for %+v, got %v", paid, err)
		}
	}
	if n := len(app.Bills.GetBillsForTable(ctx, 4)); n != 0 {
		t.Fatalf("expected no bill stored, got %d", n)
	}
	tb, _ := app.Tables.GetTable(ctx, 4)
	if tb.Order == nil || len(tb.Order.Items) != 1 || tb.Order.Items[0].Quantity != 1 {
		t.Fatalf("expected order untouched, got %+v", tb.Order)
	}
}

func TestMaintenanceRepairsOrphanedTables(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	guests := 3
	tb, _ := app.Tables.GetTable(ctx, 4)
	tb.Guests = &guests
	if err := app.Tables.UpdateTable(ctx, tb); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := app.PerformMaintenance(ctx); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	tb, _ = app.Tables.GetTable(ctx, 4)
	if tb.Guests != nil {
		t.Fatalf("expected guests cleared on available table, got %+v", tb)
	}
}

func TestResetApplicationDataKeepsStructure(t *testing.T) {
	ctx := context.Background()
	store := kvtest.New()
	app := newTestApp(t, store)

	_, _ = app.Bills.AddBill(ctx, model.Bill{TableNumber: 1, Amount: 10})
	_, _ = app.Menu.SaveMenuAvailability(ctx, []model.MenuItemAvailability{{ID: 3, Name: "Soupe", Price: 5}})
	custom, _ := app.CustomMenu.AddCustomMenuItem(ctx, model.CustomMenuItem{Name: "Plat", Price: 12})

	if err := app.ResetApplicationData(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n := len(app.Bills.GetBills(ctx)); n != 0 {
		t.Fatalf("expected bills cleared, got %d", n)
	}
	if !app.Menu.IsItemAvailable(ctx, 3) {
		t.Fatal("expected availability overlay cleared")
	}
	if n := len(app.Tables.GetTables(ctx)); n != 16 {
		t.Fatalf("expected tables kept, got %d", n)
	}
	items := app.CustomMenu.GetCustomMenuItems(ctx)
	if len(items) != 1 || items[0].ID != custom.ID {
		t.Fatalf("expected custom items kept, got %+v", items)
	}
}

func TestCloseMakesStateDurable(t *testing.T) {
	ctx := context.Background()
	store := kvtest.New()
	app, err := New(ctx, store, Config{Storage: storage.Config{WriteDebounce: time.Hour}}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, _ = app.CustomMenu.AddCustomMenuItem(ctx, model.CustomMenuItem{Name: "Tarte", Price: 6})
	if err := app.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newTestApp(t, kvtest.Wrap(store.Inner))
	if n := len(reopened.CustomMenu.GetCustomMenuItems(ctx)); n != 1 {
		t.Fatalf("expected item persisted across restart, got %d", n)
	}
	if n := len(reopened.Tables.GetTables(ctx)); n != 16 {
		t.Fatalf("expected tables persisted, got %d", n)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, kvtest.New())
	_, _ = app.Bills.AddBill(ctx, model.Bill{TableNumber: 1, Amount: 1})
	st, err := app.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	billsKey := app.Storage.Key(storage.Bills)
	if len(st.Pending) != 1 || st.Pending[0] != billsKey {
		t.Fatalf("expected pending bills write, got %v", st.Pending)
	}
	if len(st.StoredKeys) == 0 {
		t.Fatal("expected seeded keys in the store")
	}
}
