package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

// CustomMenuRepo manages the menu items created on the device.  Every
// change rewrites the whole collection.
type CustomMenuRepo struct {
	st  *storage.Manager
	log *zap.SugaredLogger
	mu  sync.Mutex
}

// NewCustomMenuRepo constructs a CustomMenuRepo.
func NewCustomMenuRepo(st *storage.Manager, log *zap.SugaredLogger) *CustomMenuRepo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CustomMenuRepo{st: st, log: log}
}

func (r *CustomMenuRepo) key() string { return r.st.Key(storage.CustomMenuItems) }

// IsCustomID reports whether id names a custom item rather than a catalog
// item.
func (r *CustomMenuRepo) IsCustomID(id int) bool { return model.IsCustomID(id) }

// GetCustomMenuItems returns all custom items.
func (r *CustomMenuRepo) GetCustomMenuItems(ctx context.Context) []model.CustomMenuItem {
	items, err := storage.Load(ctx, r.st, r.key(), []model.CustomMenuItem{})
	if err != nil {
		r.log.Errorw("get custom menu items failed", "error", err)
		return []model.CustomMenuItem{}
	}
	return items
}

// AddCustomMenuItem stores item under a fresh id above CustomIDBase and
// returns it.
func (r *CustomMenuRepo) AddCustomMenuItem(ctx context.Context, item model.CustomMenuItem) (model.CustomMenuItem, error) {
	if err := validateCustom(&item); err != nil {
		return model.CustomMenuItem{}, err
	}
	var out model.CustomMenuItem
	err := r.mutate(ctx, func(items []model.CustomMenuItem) ([]model.CustomMenuItem, error) {
		next := model.CustomIDBase
		for _, it := range items {
			if it.ID > next {
				next = it.ID
			}
		}
		item.ID = next + 1
		out = item
		return append(items, item), nil
	})
	return out, err
}

// UpdateCustomMenuItem replaces the item with the same id.
func (r *CustomMenuRepo) UpdateCustomMenuItem(ctx context.Context, item model.CustomMenuItem) error {
	if err := validateCustom(&item); err != nil {
		return err
	}
	return r.mutate(ctx, func(items []model.CustomMenuItem) ([]model.CustomMenuItem, error) {
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = item
				return items, nil
			}
		}
		return nil, ErrMenuItemNotFound
	})
}

// DeleteCustomMenuItem removes the item with id.
func (r *CustomMenuRepo) DeleteCustomMenuItem(ctx context.Context, id int) error {
	return r.mutate(ctx, func(items []model.CustomMenuItem) ([]model.CustomMenuItem, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, ErrMenuItemNotFound
	})
}

func (r *CustomMenuRepo) mutate(ctx context.Context, fn func([]model.CustomMenuItem) ([]model.CustomMenuItem, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, err := storage.Load(ctx, r.st, r.key(), []model.CustomMenuItem{})
	if err != nil {
		return fmt.Errorf("load custom menu items: %w", err)
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	if err := r.st.Save(ctx, r.key(), next); err != nil {
		r.log.Errorw("save custom menu items failed", "error", err)
		return fmt.Errorf("save custom menu items: %w", err)
	}
	return nil
}

func validateCustom(item *model.CustomMenuItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" || item.Price < 0 {
		return ErrInvalidMenuItem
	}
	switch item.Type {
	case "":
		item.Type = model.MenuFood
	case model.MenuFood, model.MenuDrink:
	default:
		return ErrInvalidMenuItem
	}
	return nil
}
