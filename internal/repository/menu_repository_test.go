package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/restaurant-pos/internal/kv/kvtest"
	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

func TestAvailabilityOverlayDefaultsToAvailable(t *testing.T) {
	ctx := context.Background()
	repo := NewMenuRepo(newTestStorage(t, kvtest.New()), nil)

	if !repo.IsItemAvailable(ctx, 12) {
		t.Fatal("expected item without record to be available")
	}
	n, err := repo.SaveMenuAvailability(ctx, []model.MenuItemAvailability{
		{ID: 12, Available: false, Name: "Tiramisu", Price: 7.5},
		{ID: 0, Available: false, Name: "broken", Price: 1},
		{ID: 13, Available: true, Name: "nan", Price: math.NaN()},
		{ID: 14, Available: true, Name: "Mousse", Price: 6},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 valid records kept, got %d", n)
	}
	if repo.IsItemAvailable(ctx, 12) {
		t.Fatal("expected item 12 unavailable")
	}
	if !repo.IsItemAvailable(ctx, 99) {
		t.Fatal("expected unknown item available")
	}
}

func TestSaveMenuAvailabilityRawDropsMalformed(t *testing.T) {
	ctx := context.Background()
	repo := NewMenuRepo(newTestStorage(t, kvtest.New()), nil)
	raw := []json.RawMessage{
		json.RawMessage(`{"id":1,"available":false,"name":"Soupe","price":5}`),
		json.RawMessage(`{"id":"2","available":false,"name":"Salade","price":5}`),
		json.RawMessage(`{"id":3,"available":"false","name":"Quiche","price":5}`),
	}
	n, err := repo.SaveMenuAvailabilityRaw(ctx, raw)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 record kept, got %d, %v", n, err)
	}
	items := repo.GetMenuAvailability(ctx)
	if len(items) != 1 || items[0].ID != 1 {
		t.Fatalf("unexpected stored records %+v", items)
	}
}

func TestUpdateItemAvailability(t *testing.T) {
	ctx := context.Background()
	repo := NewMenuRepo(newTestStorage(t, kvtest.New()), nil)
	_, _ = repo.SaveMenuAvailability(ctx, []model.MenuItemAvailability{{ID: 5, Available: true, Name: "Frites", Price: 4}})

	updated, err := repo.UpdateItemAvailability(ctx, 5, false)
	if err != nil || !updated {
		t.Fatalf("expected update, got %v, %v", updated, err)
	}
	if repo.IsItemAvailable(ctx, 5) {
		t.Fatal("expected item 5 unavailable")
	}

	updated, err = repo.UpdateItemAvailability(ctx, 6, false)
	if err != nil || updated {
		t.Fatalf("expected no-op for unknown item, got %v, %v", updated, err)
	}
	if len(repo.GetMenuAvailability(ctx)) != 1 {
		t.Fatal("expected no record created by update")
	}
	if !repo.IsItemAvailable(ctx, 6) {
		t.Fatal("expected item 6 still available")
	}
}

func TestCustomMenuItems(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomMenuRepo(newTestStorage(t, kvtest.New()), nil)

	a, err := repo.AddCustomMenuItem(ctx, model.CustomMenuItem{Name: "Burger du chef", Price: 16, Category: "Plats", Available: true})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	b, _ := repo.AddCustomMenuItem(ctx, model.CustomMenuItem{Name: "Spritz", Price: 8, Category: "Cocktails", Type: model.MenuDrink})
	if a.ID != model.CustomIDBase+1 || b.ID != model.CustomIDBase+2 {
		t.Fatalf("expected sequential custom ids, got %d and %d", a.ID, b.ID)
	}
	if !repo.IsCustomID(a.ID) || a.Type != model.MenuFood {
		t.Fatalf("expected custom food item, got %+v", a)
	}

	a.Price = 17
	if err := repo.UpdateCustomMenuItem(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.DeleteCustomMenuItem(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items := repo.GetCustomMenuItems(ctx)
	if len(items) != 1 || items[0].Price != 17 {
		t.Fatalf("unexpected items %+v", items)
	}

	if err := repo.DeleteCustomMenuItem(ctx, b.ID); !errors.Is(err, ErrMenuItemNotFound) {
		t.Fatalf("expected ErrMenuItemNotFound, got %v", err)
	}
	if err := repo.UpdateCustomMenuItem(ctx, model.CustomMenuItem{ID: 1, Name: "x"}); !errors.Is(err, ErrMenuItemNotFound) {
		t.Fatalf("expected ErrMenuItemNotFound, got %v", err)
	}
	if _, err := repo.AddCustomMenuItem(ctx, model.CustomMenuItem{Name: " ", Price: 1}); !errors.Is(err, ErrInvalidMenuItem) {
		t.Fatalf("expected ErrInvalidMenuItem, got %v", err)
	}
	if _, err := repo.AddCustomMenuItem(ctx, model.CustomMenuItem{Name: "Vin", Type: "cave"}); !errors.Is(err, ErrInvalidMenuItem) {
		t.Fatalf("expected ErrInvalidMenuItem for type, got %v", err)
	}
}

func TestManagerPIN(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepo(newTestStorage(t, kvtest.New()), nil, "0000", bcrypt.MinCost)

	if err := repo.VerifyManagerPIN(ctx, "0000"); err != nil {
		t.Fatalf("expected default pin accepted, got %v", err)
	}
	if err := repo.SetManagerPIN(ctx, "12a4"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected malformed pin rejected, got %v", err)
	}
	if err := repo.SetManagerPIN(ctx, "482913"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if err := repo.VerifyManagerPIN(ctx, "0000"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected default pin rejected once set, got %v", err)
	}
	if err := repo.VerifyManagerPIN(ctx, "482913"); err != nil {
		t.Fatalf("expected new pin accepted, got %v", err)
	}

	s, err := repo.SaveSettings(ctx, model.Settings{RestaurantName: "Chez Nous", Currency: "EUR", TaxRate: 0.2, ManagerPINHash: "forged"})
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if s.ManagerPINHash == "forged" || s.UpdatedAt.IsZero() {
		t.Fatalf("expected stored hash kept and timestamp set, got %+v", s)
	}
	if err := repo.VerifyManagerPIN(ctx, "482913"); err != nil {
		t.Fatalf("expected pin to survive settings save, got %v", err)
	}
	if got := repo.GetSettings(ctx); got.RestaurantName != "Chez Nous" {
		t.Fatalf("expected saved name, got %q", got.RestaurantName)
	}
}

func TestDefaultPINRefusedWhenSettingsUnreadable(t *testing.T) {
	ctx := context.Background()
	store := kvtest.New()
	st := newTestStorage(t, store)
	repo := NewSettingsRepo(st, nil, "0000", bcrypt.MinCost)

	if err := repo.SetManagerPIN(ctx, "4821"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if err := st.PerformMaintenance(ctx); err != nil {
		t.Fatalf("maintenance: %v", err)
	}

	store.FailReads = errors.New("disk busy")
	err := repo.VerifyManagerPIN(ctx, "0000")
	if err == nil || errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected read failure surfaced, got %v", err)
	}
	store.FailReads = nil

	_ = store.Inner.SetItem(ctx, st.Key(storage.Settings), "{not json")
	if err := st.PerformMaintenance(ctx); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if err := repo.VerifyManagerPIN(ctx, "0000"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected default pin refused after settings corruption, got %v", err)
	}

	_ = store.Inner.SetItem(ctx, st.Key(storage.ManagerPINSet), "{not json")
	if err := st.PerformMaintenance(ctx); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if err := repo.VerifyManagerPIN(ctx, "0000"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected default pin refused with both records quarantined, got %v", err)
	}
}
