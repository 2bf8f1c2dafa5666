package repository

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

// TableRepo manages the floor plan.  All mutations go through mu so that
// concurrent requests cannot lose each other's updates, and so that two
// first calls to InitializeTables cannot both seed the defaults.
type TableRepo struct {
	st  *storage.Manager
	bus *events.Bus
	log *zap.SugaredLogger

	mu sync.Mutex
}

// NewTableRepo constructs a TableRepo.
func NewTableRepo(st *storage.Manager, bus *events.Bus, log *zap.SugaredLogger) *TableRepo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TableRepo{st: st, bus: bus, log: log}
}

func (r *TableRepo) key() string { return r.st.Key(storage.Tables) }

func (r *TableRepo) load(ctx context.Context) ([]model.Table, error) {
	return storage.Load(ctx, r.st, r.key(), []model.Table{})
}

// InitializeTables returns the stored tables, seeding the default layout
// and marking first launch complete when the collection is empty.  It is
// idempotent.
func (r *TableRepo) InitializeTables(ctx context.Context) ([]model.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables, err := r.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	if len(tables) > 0 {
		return tables, nil
	}
	tables = model.DefaultTables()
	err = r.st.BatchSave(ctx, []storage.Op{
		{Key: r.key(), Value: tables},
		{Key: r.st.Key(storage.FirstLaunch), Value: false},
	})
	if err != nil {
		return nil, fmt.Errorf("seed tables: %w", err)
	}
	r.log.Infow("default tables seeded", "count", len(tables))
	return tables, nil
}

// GetTables returns every table.  Records written before sections existed
// get their section from the default layout, and the fix is persisted.
func (r *TableRepo) GetTables(ctx context.Context) []model.Table {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables, err := r.load(ctx)
	if err != nil {
		r.log.Errorw("get tables failed", "error", err)
		return []model.Table{}
	}
	healed := 0
	for i := range tables {
		if tables[i].Section != "" {
			continue
		}
		if def, ok := model.DefaultTable(tables[i].ID); ok {
			tables[i].Section = def.Section
			healed++
		}
	}
	if healed > 0 {
		if err := r.st.Save(ctx, r.key(), tables); err != nil {
			r.log.Warnw("persisting section backfill failed", "error", err)
		} else {
			r.log.Infow("backfilled missing table sections", "count", healed)
		}
	}
	return tables
}

// GetTable returns the table with id.
func (r *TableRepo) GetTable(ctx context.Context, id int) (model.Table, error) {
	for _, t := range r.GetTables(ctx) {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Table{}, ErrTableNotFound
}

// UpdateTable inserts or replaces t by id and emits TableUpdated.
func (r *TableRepo) UpdateTable(ctx context.Context, t model.Table) error {
	if t.ID <= 0 || !t.Status.Valid() {
		return ErrInvalidTable
	}
	if err := r.mutate(ctx, func(tables []model.Table) ([]model.Table, error) {
		for i := range tables {
			if tables[i].ID == t.ID {
				tables[i] = t
				return tables, nil
			}
		}
		return append(tables, t), nil
	}); err != nil {
		return err
	}
	r.bus.Emit(events.TableUpdated, t.ID)
	return nil
}

// ResetTable forces table id back to available with no guests and no
// order.  Name, section and seats are kept, with defaults filling any that
// are missing.
func (r *TableRepo) ResetTable(ctx context.Context, id int) (model.Table, error) {
	var out model.Table
	err := r.mutate(ctx, func(tables []model.Table) ([]model.Table, error) {
		for i := range tables {
			if tables[i].ID != id {
				continue
			}
			def, _ := model.DefaultTable(id)
			tables[i] = tables[i].Reset(def)
			out = tables[i]
			return tables, nil
		}
		return nil, ErrTableNotFound
	})
	if err != nil {
		return model.Table{}, err
	}
	r.bus.Emit(events.TableUpdated, id)
	return out, nil
}

// CleanupOrphanedTableData repairs tables whose state breaks the floor
// invariants and returns how many it fixed:
//   - an available table keeps no guests and no order;
//   - an order with no items is dropped, and an occupied table left without
//     an order becomes available.
func (r *TableRepo) CleanupOrphanedTableData(ctx context.Context) (int, error) {
	var fixed []int
	err := r.mutate(ctx, func(tables []model.Table) ([]model.Table, error) {
		for i := range tables {
			t := &tables[i]
			if !t.HasOrphanedData() {
				continue
			}
			if t.Order != nil && len(t.Order.Items) == 0 {
				t.Order = nil
				if t.Status == model.TableOccupied {
					t.Status = model.TableAvailable
				}
			}
			if t.Status == model.TableAvailable {
				t.Guests = nil
				t.Order = nil
			}
			fixed = append(fixed, t.ID)
		}
		if len(fixed) == 0 {
			return nil, nil
		}
		return tables, nil
	})
	if err != nil {
		return 0, err
	}
	if len(fixed) > 0 {
		r.log.Infow("orphaned table data cleaned", "tables", fixed)
		for _, id := range fixed {
			r.bus.Emit(events.TableUpdated, id)
		}
	}
	return len(fixed), nil
}

// ResetAllTables resets every table to the default layout, keeping the
// names and sections the restaurant assigned.  Tables outside the default
// layout are kept and reset too.
func (r *TableRepo) ResetAllTables(ctx context.Context) ([]model.Table, error) {
	var out []model.Table
	err := r.mutate(ctx, func(current []model.Table) ([]model.Table, error) {
		byID := make(map[int]model.Table, len(current))
		for _, t := range current {
			byID[t.ID] = t
		}
		out = model.DefaultTables()
		for i := range out {
			if cur, ok := byID[out[i].ID]; ok {
				if cur.Name != "" {
					out[i].Name = cur.Name
				}
				if cur.Section != "" {
					out[i].Section = cur.Section
				}
				delete(byID, out[i].ID)
			}
		}
		for _, t := range current {
			if _, extra := byID[t.ID]; extra {
				out = append(out, t.Reset(model.Table{}))
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range out {
		r.bus.Emit(events.TableUpdated, t.ID)
	}
	return out, nil
}

// mutate loads the tables, applies fn and saves the result.  fn returning
// a nil slice and no error means nothing changed.
func (r *TableRepo) mutate(ctx context.Context, fn func([]model.Table) ([]model.Table, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables, err := r.load(ctx)
	if err != nil {
		r.log.Errorw("load tables failed", "error", err)
		return fmt.Errorf("load tables: %w", err)
	}
	next, err := fn(tables)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := r.st.Save(ctx, r.key(), next); err != nil {
		r.log.Errorw("save tables failed", "error", err)
		return fmt.Errorf("save tables: %w", err)
	}
	return nil
}
