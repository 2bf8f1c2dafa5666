// Package pos wires the persistence core into one application context.
// An App owns the storage manager, the event bus and the repositories; it
// is created once at startup and closed on shutdown, and tests build a
// fresh one per case.
package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/cache"
	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/kv"
	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/repository"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

var (
	// ErrNoOrder is returned when paying a table that has nothing to pay.
	ErrNoOrder = errors.New("table has no open order")
	// ErrItemNotInOrder is returned when an items payment names a line the
	// order does not hold or a non-positive quantity.
	ErrItemNotInOrder = errors.New("paid item not in order")
)

// Config gathers the tunables of every component.
type Config struct {
	Storage          storage.Config
	Bills            repository.BillConfig
	EventDedupWindow time.Duration
	DefaultPIN       string
	BcryptCost       int
}

// App is the application context.
type App struct {
	Storage    *storage.Manager
	Bus        *events.Bus
	Tables     *repository.TableRepo
	Bills      *repository.BillRepo
	Menu       *repository.MenuRepo
	CustomMenu *repository.CustomMenuRepo
	Settings   *repository.SettingsRepo

	log *zap.SugaredLogger
	now func() time.Time
}

// New builds an App over store and seeds the default tables if needed.
func New(ctx context.Context, store kv.Store, cfg Config, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	st, err := storage.New(store, cfg.Storage, log.Named("storage"))
	if err != nil {
		return nil, err
	}
	bus := events.NewBus(cfg.EventDedupWindow, log.Named("events"))
	a := &App{
		Storage:    st,
		Bus:        bus,
		Tables:     repository.NewTableRepo(st, bus, log.Named("tables")),
		Bills:      repository.NewBillRepo(st, bus, log.Named("bills"), cfg.Bills),
		Menu:       repository.NewMenuRepo(st, log.Named("menu")),
		CustomMenu: repository.NewCustomMenuRepo(st, log.Named("custom_menu")),
		Settings:   repository.NewSettingsRepo(st, log.Named("settings"), cfg.DefaultPIN, cfg.BcryptCost),
		log:        log,
		now:        time.Now,
	}

	st.OnMaintenance(func(ctx context.Context) error {
		_, err := a.Tables.CleanupOrphanedTableData(ctx)
		return err
	})
	st.OnMaintenance(func(ctx context.Context) error {
		_, err := a.Bills.PruneArchive(ctx)
		return err
	})

	if _, err := a.Tables.InitializeTables(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("initialize tables: %w", err)
	}
	return a, nil
}

// SetClock replaces the time source for payments and bill retention.
// Tests only.
func (a *App) SetClock(now func() time.Time) {
	a.now = now
	a.Bills.SetClock(now)
}

// Close flushes pending writes and drops every subscription.
func (a *App) Close(ctx context.Context) error {
	a.Bus.Clear()
	return a.Storage.Close(ctx)
}

// PerformMaintenance flushes, clears caches and repairs cross-collection
// state.
func (a *App) PerformMaintenance(ctx context.Context) error {
	return a.Storage.PerformMaintenance(ctx)
}

// ResetApplicationData deletes the transactional collections.
func (a *App) ResetApplicationData(ctx context.Context) error {
	return a.Storage.ResetApplicationData(ctx)
}

// Payment describes how a table settles its order.
//
// Fields:
//
//	Method    – cash, card or check.
//	Type      – full, split or items.  Empty means full.
//	PaidItems – for an items payment, the ids and quantities being paid.
//	            Names and prices always come from the order.
type Payment struct {
	Method    string            `json:"method"`
	Type      string            `json:"type"`
	PaidItems []model.OrderItem `json:"paidItems,omitempty"`
}

// CompletePayment turns the open order of table tableID into a bill.  A full
// or split payment frees the table; an items payment removes the paid lines
// and frees the table only once nothing is left.
func (a *App) CompletePayment(ctx context.Context, tableID int, p Payment) (model.Bill, error) {
	table, err := a.Tables.GetTable(ctx, tableID)
	if err != nil {
		return model.Bill{}, err
	}
	if table.Order == nil || len(table.Order.Items) == 0 {
		return model.Bill{}, ErrNoOrder
	}
	order := *table.Order
	if p.Type == "" {
		p.Type = model.PaymentTypeFull
	}

	b := model.Bill{
		TableNumber:   table.ID,
		TableName:     table.Name,
		Section:       table.Section,
		Items:         order.Items,
		Status:        model.BillPaid,
		Timestamp:     a.now(),
		PaymentMethod: p.Method,
		PaymentType:   p.Type,
		OfferedAmount: order.OfferedTotal(),
	}
	var remaining []model.OrderItem
	switch p.Type {
	case model.PaymentTypeItems:
		if len(p.PaidItems) == 0 {
			return model.Bill{}, fmt.Errorf("items payment without items: %w", ErrNoOrder)
		}
		paid, err := paidLines(order.Items, p.PaidItems)
		if err != nil {
			return model.Bill{}, err
		}
		b.PaidItems = paid
		b.Items = paid
		b.Amount = model.ItemsTotal(paid)
		b.OfferedAmount = model.Order{Items: paid}.OfferedTotal()
		remaining = subtractItems(order.Items, paid)
	case model.PaymentTypeSplit:
		b.Status = model.BillSplit
		b.Amount = order.ComputeTotal()
	default:
		b.Amount = order.ComputeTotal()
	}

	b, err = a.Bills.AddBill(ctx, b)
	if err != nil {
		return model.Bill{}, err
	}

	if len(remaining) > 0 {
		order.Items = remaining
		order.Total = order.ComputeTotal()
		table.Order = &order
		err = a.Tables.UpdateTable(ctx, table)
	} else {
		_, err = a.Tables.ResetTable(ctx, tableID)
	}
	if err != nil {
		a.log.Errorw("bill stored but table not updated", "table", tableID, "bill", b.ID, "error", err)
		return b, err
	}
	a.log.Infow("payment completed", "table", tableID, "bill", b.ID, "amount", b.Amount, "type", b.PaymentType)
	return b, nil
}

// paidLines resolves the requested ids and quantities against the order
// lines.  Quantities are capped at what the order holds.
func paidLines(items, requested []model.OrderItem) ([]model.OrderItem, error) {
	held := make(map[int]int, len(items))
	for _, it := range items {
		held[it.ID] += it.Quantity
	}
	want := make(map[int]int, len(requested))
	for _, r := range requested {
		if r.Quantity <= 0 {
			return nil, fmt.Errorf("item %d quantity %d: %w", r.ID, r.Quantity, ErrItemNotInOrder)
		}
		if held[r.ID] == 0 {
			return nil, fmt.Errorf("item %d: %w", r.ID, ErrItemNotInOrder)
		}
		want[r.ID] += r.Quantity
	}
	var out []model.OrderItem
	for _, it := range items {
		n := min(want[it.ID], it.Quantity)
		if n <= 0 {
			continue
		}
		want[it.ID] -= n
		it.Quantity = n
		out = append(out, it)
	}
	return out, nil
}

// subtractItems removes paid quantities from items, matching lines by id.
func subtractItems(items, paid []model.OrderItem) []model.OrderItem {
	owed := make(map[int]int, len(paid))
	for _, it := range paid {
		owed[it.ID] += it.Quantity
	}
	var out []model.OrderItem
	for _, it := range items {
		if n := owed[it.ID]; n > 0 {
			take := min(n, it.Quantity)
			owed[it.ID] -= take
			it.Quantity -= take
		}
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}

// Stats is a snapshot of the persistence core for diagnostics.
type Stats struct {
	Keys       map[string]storage.KeyStats `json:"keys"`
	Cache      cache.Stats                 `json:"cache"`
	Pending    []string                    `json:"pendingWrites"`
	StoredKeys []string                    `json:"storedKeys"`
}

// Stats collects storage counters and the keys present in the store.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	keys, err := a.Storage.StoredKeys(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Keys:       a.Storage.Stats(),
		Cache:      a.Storage.CacheStats(),
		Pending:    a.Storage.PendingWrites(),
		StoredKeys: keys,
	}, nil
}
