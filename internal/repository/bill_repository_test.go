package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/kv/kvtest"
	"github.com/iliyamo/restaurant-pos/internal/model"
)

var base = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func newBillRepo(t *testing.T, cfg BillConfig) (*BillRepo, *events.Bus) {
	t.Helper()
	bus := events.NewBus(0, nil)
	repo := NewBillRepo(newTestStorage(t, kvtest.New()), bus, nil, cfg)
	repo.SetClock(func() time.Time { return base.Add(time.Hour) })
	return repo, bus
}

func bill(table int, amount float64, at time.Time) model.Bill {
	return model.Bill{
		TableNumber:   table,
		TableName:     fmt.Sprintf("Table %d", table),
		Section:       model.SectionSalle,
		Amount:        amount,
		Status:        model.BillPaid,
		Timestamp:     at,
		PaymentMethod: model.PaymentCard,
	}
}

func TestAddBillFillsDefaultsAndEmits(t *testing.T) {
	repo, bus := newBillRepo(t, BillConfig{})
	var gotTable int
	var gotBill model.Bill
	bus.On(events.PaymentAdded, func(args ...any) {
		gotTable = args[0].(int)
		gotBill = args[1].(model.Bill)
	})

	b, err := repo.AddBill(context.Background(), model.Bill{TableNumber: 7, Amount: 42})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if b.ID == "" || b.Timestamp.IsZero() || b.Status != model.BillPaid {
		t.Fatalf("expected id, timestamp and status filled, got %+v", b)
	}
	if gotTable != 7 || gotBill.ID != b.ID {
		t.Fatalf("expected payment.added for table 7, got %d %+v", gotTable, gotBill)
	}
}

func TestBillRetentionArchivesOldest(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{MaxBills: 5})

	for i := 0; i < 8; i++ {
		if _, err := repo.AddBill(ctx, bill(1, float64(i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	live := repo.GetBills(ctx)
	if len(live) != 5 {
		t.Fatalf("expected 5 live bills, got %d", len(live))
	}
	for i, b := range live {
		if b.Amount != float64(i+3) {
			t.Fatalf("expected most recent bills kept in order, got amount %v at %d", b.Amount, i)
		}
	}
	archive := repo.GetArchivedBills(ctx)
	if len(archive) != 3 {
		t.Fatalf("expected 3 archived bills, got %d", len(archive))
	}
	for i, want := range []float64{2, 1, 0} {
		if archive[i].Amount != want {
			t.Fatalf("expected archive newest first, got %v at %d", archive[i].Amount, i)
		}
	}
}

func TestArchivePrunedByAge(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{MaxBills: 1, MaxArchiveAgeDays: 30})

	_, _ = repo.AddBill(ctx, bill(1, 1, base.AddDate(0, 0, -40)))
	_, _ = repo.AddBill(ctx, bill(1, 2, base.AddDate(0, 0, -10)))
	_, _ = repo.AddBill(ctx, bill(1, 3, base))

	archive := repo.GetArchivedBills(ctx)
	if len(archive) != 1 || archive[0].Amount != 2 {
		t.Fatalf("expected only the 10-day-old bill archived, got %+v", archive)
	}

	repo.SetClock(func() time.Time { return base.AddDate(1, 0, 0) })
	n, err := repo.PruneArchive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned, got %d, %v", n, err)
	}
	if len(repo.GetArchivedBills(ctx)) != 0 {
		t.Fatal("expected empty archive")
	}
}

func TestPaginatedBills(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{})
	for i := 0; i < 45; i++ {
		_, _ = repo.AddBill(ctx, bill(i%4+1, float64(i), base.Add(time.Duration(i)*time.Minute)))
	}

	p := repo.GetPaginatedBills(ctx, 1, 20, true)
	if p.Total != 45 || p.TotalPages != 3 || !p.HasMore || len(p.Bills) != 20 {
		t.Fatalf("unexpected first page %+v", p)
	}
	if p.Bills[0].Amount != 44 {
		t.Fatalf("expected newest first, got %v", p.Bills[0].Amount)
	}
	last := repo.GetPaginatedBills(ctx, 3, 20, true)
	if len(last.Bills) != 5 || last.HasMore {
		t.Fatalf("unexpected last page %+v", last)
	}
	beyond := repo.GetPaginatedBills(ctx, 9, 20, true)
	if len(beyond.Bills) != 0 || beyond.Total != 45 {
		t.Fatalf("expected empty page past the end, got %+v", beyond)
	}
	unsorted := repo.GetPaginatedBills(ctx, 1, 10, false)
	if unsorted.Bills[0].Amount != 0 {
		t.Fatalf("expected insertion order, got %v", unsorted.Bills[0].Amount)
	}
}

func TestSortIsStableForEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{})
	for i := 0; i < 5; i++ {
		_, _ = repo.AddBill(ctx, bill(1, float64(i), base))
	}
	p := repo.GetPaginatedBills(ctx, 1, 10, true)
	for i, b := range p.Bills {
		if b.Amount != float64(i) {
			t.Fatalf("expected ties in insertion order, got %v at %d", b.Amount, i)
		}
	}
}

func TestFilteredPaginatedBills(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{})
	cash := bill(2, 18.5, base.Add(-2*time.Hour))
	cash.PaymentMethod = model.PaymentCash
	terrace := bill(10, 64, base.Add(-time.Hour))
	terrace.Section = model.SectionTerrasse
	split := bill(3, 30, base)
	split.Status = model.BillSplit
	for _, b := range []model.Bill{cash, terrace, split} {
		if _, err := repo.AddBill(ctx, b); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	from := base.Add(-90 * time.Minute)
	minAmount, maxAmount := 20.0, 50.0
	cases := []struct {
		name   string
		filter BillFilter
		want   []float64
	}{
		{"all", BillFilter{}, []float64{30, 64, 18.5}},
		{"method", BillFilter{PaymentMethod: model.PaymentCash}, []float64{18.5}},
		{"status", BillFilter{Status: model.BillSplit}, []float64{30}},
		{"table", BillFilter{TableNumber: 10}, []float64{64}},
		{"from", BillFilter{From: &from}, []float64{30, 64}},
		{"amount range", BillFilter{MinAmount: &minAmount, MaxAmount: &maxAmount}, []float64{30}},
		{"search section", BillFilter{Search: "terr"}, []float64{64}},
		{"search amount", BillFilter{Search: "18.50"}, []float64{18.5}},
		{"search name", BillFilter{Search: "table 3"}, []float64{30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := repo.GetFilteredPaginatedBills(ctx, tc.filter, 1, 10)
			if p.Total != len(tc.want) {
				t.Fatalf("expected %d matches, got %d", len(tc.want), p.Total)
			}
			for i, b := range p.Bills {
				if b.Amount != tc.want[i] {
					t.Fatalf("expected %v at %d, got %v", tc.want[i], i, b.Amount)
				}
			}
		})
	}
}

func TestBillsByDateAndTable(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{})
	loc := time.FixedZone("CET", 3600)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)

	_, _ = repo.AddBill(ctx, bill(1, 1, day.Add(-time.Minute)))
	_, _ = repo.AddBill(ctx, bill(1, 2, day))
	_, _ = repo.AddBill(ctx, bill(2, 3, day.Add(23*time.Hour+59*time.Minute)))
	_, _ = repo.AddBill(ctx, bill(2, 4, day.Add(24*time.Hour)))

	got := repo.GetBillsByDate(ctx, day.Add(12*time.Hour))
	if len(got) != 2 || got[0].Amount != 2 || got[1].Amount != 3 {
		t.Fatalf("expected bills 2 and 3, got %+v", got)
	}
	if n := len(repo.GetBillsForTable(ctx, 2)); n != 2 {
		t.Fatalf("expected 2 bills for table 2, got %d", n)
	}
	if got := repo.GetBillsForTable(ctx, 9); got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}

func TestDeleteAndClearBills(t *testing.T) {
	ctx := context.Background()
	repo, _ := newBillRepo(t, BillConfig{})
	a, _ := repo.AddBill(ctx, bill(1, 1, base))
	_, _ = repo.AddBill(ctx, bill(1, 2, base))

	if err := repo.DeleteBill(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteBill(ctx, a.ID); !errors.Is(err, ErrBillNotFound) {
		t.Fatalf("expected ErrBillNotFound, got %v", err)
	}
	if n := len(repo.GetBills(ctx)); n != 1 {
		t.Fatalf("expected 1 bill left, got %d", n)
	}
	if err := repo.ClearAllBills(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n := len(repo.GetBills(ctx)); n != 0 {
		t.Fatalf("expected no bills, got %d", n)
	}
}
