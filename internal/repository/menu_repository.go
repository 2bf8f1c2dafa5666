package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

// MenuRepo manages the availability overlay over the menu catalog.  Only
// exceptions are stored: an item without a record is available.
type MenuRepo struct {
	st  *storage.Manager
	log *zap.SugaredLogger
	mu  sync.Mutex
}

// NewMenuRepo constructs a MenuRepo.
func NewMenuRepo(st *storage.Manager, log *zap.SugaredLogger) *MenuRepo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &MenuRepo{st: st, log: log}
}

func (r *MenuRepo) key() string { return r.st.Key(storage.MenuAvailability) }

// GetMenuAvailability returns the stored availability records.
func (r *MenuRepo) GetMenuAvailability(ctx context.Context) []model.MenuItemAvailability {
	items, err := storage.Load(ctx, r.st, r.key(), []model.MenuItemAvailability{})
	if err != nil {
		r.log.Errorw("get menu availability failed", "error", err)
		return []model.MenuItemAvailability{}
	}
	return items
}

// SaveMenuAvailability replaces the overlay with items.  Invalid records
// are dropped and logged; the rest are saved.  It returns how many records
// were kept.
func (r *MenuRepo) SaveMenuAvailability(ctx context.Context, items []model.MenuItemAvailability) (int, error) {
	valid := make([]model.MenuItemAvailability, 0, len(items))
	for _, it := range items {
		if !it.Valid() {
			r.log.Warnw("dropping invalid availability record", "id", it.ID, "price", it.Price)
			continue
		}
		valid = append(valid, it)
	}
	return len(valid), r.save(ctx, valid)
}

// SaveMenuAvailabilityRaw is SaveMenuAvailability for untyped input: each
// record must have a numeric id and price, a boolean available and a string
// name, or it is dropped.
func (r *MenuRepo) SaveMenuAvailabilityRaw(ctx context.Context, raw []json.RawMessage) (int, error) {
	valid := make([]model.MenuItemAvailability, 0, len(raw))
	for i, rec := range raw {
		it, ok := model.ParseAvailability(rec)
		if !ok {
			r.log.Warnw("dropping malformed availability record", "index", i)
			continue
		}
		valid = append(valid, it)
	}
	return len(valid), r.save(ctx, valid)
}

func (r *MenuRepo) save(ctx context.Context, items []model.MenuItemAvailability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.st.Save(ctx, r.key(), items); err != nil {
		r.log.Errorw("save menu availability failed", "error", err)
		return fmt.Errorf("save menu availability: %w", err)
	}
	return nil
}

// UpdateItemAvailability sets the availability of an item that already has
// a record and reports whether it did.  Records are only created by
// SaveMenuAvailability; an unknown id is logged and left alone.
func (r *MenuRepo) UpdateItemAvailability(ctx context.Context, id int, available bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, err := storage.Load(ctx, r.st, r.key(), []model.MenuItemAvailability{})
	if err != nil {
		return false, fmt.Errorf("load menu availability: %w", err)
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		items[i].Available = available
		if err := r.st.Save(ctx, r.key(), items); err != nil {
			r.log.Errorw("save menu availability failed", "error", err)
			return false, fmt.Errorf("save menu availability: %w", err)
		}
		return true, nil
	}
	r.log.Infow("availability update ignored, item has no record", "id", id)
	return false, nil
}

// IsItemAvailable reports the effective availability of id.
func (r *MenuRepo) IsItemAvailable(ctx context.Context, id int) bool {
	for _, it := range r.GetMenuAvailability(ctx) {
		if it.ID == id {
			return it.Available
		}
	}
	return true
}
