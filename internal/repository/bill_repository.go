package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

// Retention defaults.
const (
	DefaultMaxBills          = 1000
	DefaultMaxArchiveAgeDays = 30
)

// Pagination defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// BillConfig bounds the bill history.  Zero fields take their defaults.
type BillConfig struct {
	MaxBills          int
	MaxArchiveAgeDays int
}

// BillFilter narrows a bill query.  Zero fields match everything.
//
// Fields:
//
//	From, To      – inclusive timestamp range.
//	PaymentMethod – exact payment method.
//	Status        – exact settlement status.
//	TableNumber   – exact table id (0 matches all).
//	MinAmount     – lower amount bound.
//	MaxAmount     – upper amount bound.
//	Search        – case-insensitive text matched against table name,
//	                section and the amount formatted with two decimals.
type BillFilter struct {
	From          *time.Time
	To            *time.Time
	PaymentMethod string
	Status        model.BillStatus
	TableNumber   int
	MinAmount     *float64
	MaxAmount     *float64
	Search        string
}

// BillPage is one page of a bill query together with metadata computed
// over the whole filtered set.
type BillPage struct {
	Bills      []model.Bill `json:"bills"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
	HasMore    bool         `json:"hasMore"`
}

// BillRepo manages the payment history.  The live collection holds at most
// MaxBills bills; older ones move to the archive, where anything older
// than MaxArchiveAgeDays is discarded.
type BillRepo struct {
	st  *storage.Manager
	bus *events.Bus
	log *zap.SugaredLogger

	maxBills   int
	archiveAge time.Duration
	now        func() time.Time

	mu sync.Mutex
}

// NewBillRepo constructs a BillRepo.
func NewBillRepo(st *storage.Manager, bus *events.Bus, log *zap.SugaredLogger, cfg BillConfig) *BillRepo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.MaxBills <= 0 {
		cfg.MaxBills = DefaultMaxBills
	}
	if cfg.MaxArchiveAgeDays <= 0 {
		cfg.MaxArchiveAgeDays = DefaultMaxArchiveAgeDays
	}
	return &BillRepo{
		st:         st,
		bus:        bus,
		log:        log,
		maxBills:   cfg.MaxBills,
		archiveAge: time.Duration(cfg.MaxArchiveAgeDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for new bills and archive
// pruning.  Tests only.
func (r *BillRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *BillRepo) billsKey() string   { return r.st.Key(storage.Bills) }
func (r *BillRepo) archiveKey() string { return r.st.Key(storage.BillsArchive) }

// AddBill stores b and applies retention, then emits PaymentAdded with the
// table number and the stored bill.  A missing id, timestamp or status is
// filled in.
func (r *BillRepo) AddBill(ctx context.Context, b model.Bill) (model.Bill, error) {
	r.mu.Lock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Timestamp.IsZero() {
		b.Timestamp = r.now()
	}
	if b.Status == "" {
		b.Status = model.BillPaid
	}

	bills, err := storage.Load(ctx, r.st, r.billsKey(), []model.Bill{})
	if err != nil {
		r.mu.Unlock()
		r.log.Errorw("load bills failed", "error", err)
		return model.Bill{}, fmt.Errorf("load bills: %w", err)
	}
	bills = append(bills, b)
	err = r.retain(ctx, bills)
	r.mu.Unlock()
	if err != nil {
		return model.Bill{}, err
	}

	r.bus.Emit(events.PaymentAdded, b.TableNumber, b)
	return b, nil
}

// retain persists bills, moving the oldest overflow to the archive.
// r.mu must be held.
func (r *BillRepo) retain(ctx context.Context, bills []model.Bill) error {
	if len(bills) <= r.maxBills {
		if err := r.st.Save(ctx, r.billsKey(), bills); err != nil {
			r.log.Errorw("save bills failed", "error", err)
			return fmt.Errorf("save bills: %w", err)
		}
		return nil
	}

	order := make([]int, len(bills))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bills[order[a]].Timestamp.After(bills[order[b]].Timestamp)
	})
	keep := make(map[int]bool, r.maxBills)
	for _, idx := range order[:r.maxBills] {
		keep[idx] = true
	}
	retained := make([]model.Bill, 0, r.maxBills)
	for i, b := range bills {
		if keep[i] {
			retained = append(retained, b)
		}
	}
	overflow := make([]model.Bill, 0, len(bills)-r.maxBills)
	for i := len(order) - 1; i >= r.maxBills; i-- {
		overflow = append(overflow, bills[order[i]])
	}

	archive, err := storage.Load(ctx, r.st, r.archiveKey(), []model.Bill{})
	if err != nil {
		r.log.Errorw("load archive failed", "error", err)
		return fmt.Errorf("load archive: %w", err)
	}
	archive, pruned := r.prune(append(archive, overflow...))

	if err := r.st.BatchSave(ctx, []storage.Op{
		{Key: r.archiveKey(), Value: archive},
		{Key: r.billsKey(), Value: retained},
	}); err != nil {
		r.log.Errorw("archiving bills failed", "error", err)
		return fmt.Errorf("archive bills: %w", err)
	}
	r.log.Infow("bills archived", "moved", len(overflow), "pruned", pruned, "archive", len(archive))
	return nil
}

// prune drops archived bills older than the retention age.
func (r *BillRepo) prune(archive []model.Bill) ([]model.Bill, int) {
	cutoff := r.now().Add(-r.archiveAge)
	kept := archive[:0]
	for _, b := range archive {
		if b.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, b)
	}
	return kept, len(archive) - len(kept)
}

// PruneArchive removes archived bills past the retention age and returns
// how many went.
func (r *BillRepo) PruneArchive(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	archive, err := storage.Load(ctx, r.st, r.archiveKey(), []model.Bill{})
	if err != nil {
		return 0, fmt.Errorf("load archive: %w", err)
	}
	archive, pruned := r.prune(archive)
	if pruned == 0 {
		return 0, nil
	}
	if err := r.st.Save(ctx, r.archiveKey(), archive); err != nil {
		return 0, fmt.Errorf("save archive: %w", err)
	}
	r.log.Infow("archive pruned", "removed", pruned)
	return pruned, nil
}

// GetBills returns the live bills in insertion order.
func (r *BillRepo) GetBills(ctx context.Context) []model.Bill {
	bills, err := storage.Load(ctx, r.st, r.billsKey(), []model.Bill{})
	if err != nil {
		r.log.Errorw("get bills failed", "error", err)
		return []model.Bill{}
	}
	return bills
}

// GetArchivedBills returns the archived bills, newest first.
func (r *BillRepo) GetArchivedBills(ctx context.Context) []model.Bill {
	archive, err := storage.Load(ctx, r.st, r.archiveKey(), []model.Bill{})
	if err != nil {
		r.log.Errorw("get archived bills failed", "error", err)
		return []model.Bill{}
	}
	sortByDateDesc(archive)
	return archive
}

// GetPaginatedBills returns page (1-based) of the live bills, newest first
// when sortByDate is set and in insertion order otherwise.
func (r *BillRepo) GetPaginatedBills(ctx context.Context, page, pageSize int, sortByDate bool) BillPage {
	bills := r.GetBills(ctx)
	if sortByDate {
		sortByDateDesc(bills)
	}
	return paginate(bills, page, pageSize)
}

// GetFilteredPaginatedBills applies f to the live bills, sorts the matches
// newest first and returns page (1-based).
func (r *BillRepo) GetFilteredPaginatedBills(ctx context.Context, f BillFilter, page, pageSize int) BillPage {
	bills := r.GetBills(ctx)
	matched := bills[:0]
	for _, b := range bills {
		if f.Match(b) {
			matched = append(matched, b)
		}
	}
	sortByDateDesc(matched)
	return paginate(matched, page, pageSize)
}

// Match reports whether b passes every set criterion of f.
func (f BillFilter) Match(b model.Bill) bool {
	if f.From != nil && b.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && b.Timestamp.After(*f.To) {
		return false
	}
	if f.PaymentMethod != "" && b.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.TableNumber != 0 && b.TableNumber != f.TableNumber {
		return false
	}
	if f.MinAmount != nil && b.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && b.Amount > *f.MaxAmount {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(b.TableName + "\x00" + b.Section + "\x00" + strconv.FormatFloat(b.Amount, 'f', 2, 64))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// ClearAllBills empties the live collection.  The archive is kept.
func (r *BillRepo) ClearAllBills(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.st.Save(ctx, r.billsKey(), []model.Bill{}); err != nil {
		r.log.Errorw("clear bills failed", "error", err)
		return fmt.Errorf("clear bills: %w", err)
	}
	return nil
}

// DeleteBill removes the live bill with id.
func (r *BillRepo) DeleteBill(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bills, err := storage.Load(ctx, r.st, r.billsKey(), []model.Bill{})
	if err != nil {
		return fmt.Errorf("load bills: %w", err)
	}
	for i, b := range bills {
		if b.ID != id {
			continue
		}
		bills = append(bills[:i], bills[i+1:]...)
		if err := r.st.Save(ctx, r.billsKey(), bills); err != nil {
			r.log.Errorw("delete bill failed", "id", id, "error", err)
			return fmt.Errorf("save bills: %w", err)
		}
		return nil
	}
	return ErrBillNotFound
}

// GetBillsForTable returns the live bills of one table.
func (r *BillRepo) GetBillsForTable(ctx context.Context, tableID int) []model.Bill {
	var out []model.Bill
	for _, b := range r.GetBills(ctx) {
		if b.TableNumber == tableID {
			out = append(out, b)
		}
	}
	if out == nil {
		out = []model.Bill{}
	}
	return out
}

// GetBillsByDate returns the live bills of the calendar day containing day,
// bounded by midnight in day's location.
func (r *BillRepo) GetBillsByDate(ctx context.Context, day time.Time) []model.Bill {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	out := []model.Bill{}
	for _, b := range r.GetBills(ctx) {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			out = append(out, b)
		}
	}
	return out
}

func sortByDateDesc(bills []model.Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].Timestamp.After(bills[j].Timestamp)
	})
}

func paginate(bills []model.Bill, page, pageSize int) BillPage {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	total := len(bills)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]model.Bill, end-start)
	copy(out, bills[start:end])
	return BillPage{
		Bills:      out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasMore:    end < total,
	}
}
