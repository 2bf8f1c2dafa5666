package repository

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/storage"
	"github.com/iliyamo/restaurant-pos/internal/utils"
)

// PIN length bounds.
const (
	MinPINLength = 4
	MaxPINLength = 8
)

// SettingsRepo manages restaurant settings and the manager PIN.
type SettingsRepo struct {
	st         *storage.Manager
	log        *zap.SugaredLogger
	defaultPIN string
	bcryptCost int
	mu         sync.Mutex
}

// NewSettingsRepo constructs a SettingsRepo.  defaultPIN is accepted until
// a manager PIN has been set; bcryptCost is used when hashing a new one.
func NewSettingsRepo(st *storage.Manager, log *zap.SugaredLogger, defaultPIN string, bcryptCost int) *SettingsRepo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SettingsRepo{st: st, log: log, defaultPIN: defaultPIN, bcryptCost: bcryptCost}
}

func (r *SettingsRepo) key() string       { return r.st.Key(storage.Settings) }
func (r *SettingsRepo) markerKey() string { return r.st.Key(storage.ManagerPINSet) }

// GetSettings returns the stored settings or the defaults.
func (r *SettingsRepo) GetSettings(ctx context.Context) model.Settings {
	s, err := storage.Load(ctx, r.st, r.key(), model.DefaultSettings())
	if err != nil {
		r.log.Errorw("get settings failed", "error", err)
		return model.DefaultSettings()
	}
	return s
}

// SaveSettings stores s.  The manager PIN hash is never taken from s; the
// stored one is kept.
func (r *SettingsRepo) SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := storage.Load(ctx, r.st, r.key(), model.DefaultSettings())
	if err != nil {
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s.ManagerPINHash = cur.ManagerPINHash
	s.UpdatedAt = time.Now().UTC()
	if err := r.st.Save(ctx, r.key(), s); err != nil {
		r.log.Errorw("save settings failed", "error", err)
		return model.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}

// SetManagerPIN replaces the manager PIN.  A PIN is 4 to 8 digits.
func (r *SettingsRepo) SetManagerPIN(ctx context.Context, pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPIN
	}
	hash, err := utils.HashPassword(pin, r.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := storage.Load(ctx, r.st, r.key(), model.DefaultSettings())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cur.ManagerPINHash = hash
	cur.UpdatedAt = time.Now().UTC()
	err = r.st.BatchSave(ctx, []storage.Op{
		{Key: r.key(), Value: cur},
		{Key: r.markerKey(), Value: true},
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	r.log.Infow("manager pin changed")
	return nil
}

// VerifyManagerPIN returns nil when pin matches, ErrInvalidPIN otherwise.
// Store failures are returned as is.  The default PIN is only accepted while
// no PIN has ever been set and neither record was quarantined.
func (r *SettingsRepo) VerifyManagerPIN(ctx context.Context, pin string) error {
	s, err := storage.Load(ctx, r.st, r.key(), model.DefaultSettings())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if s.ManagerPINHash != "" {
		if !utils.VerifyPassword(s.ManagerPINHash, pin) {
			return ErrInvalidPIN
		}
		return nil
	}

	if r.defaultPIN == "" || subtle.ConstantTimeCompare([]byte(pin), []byte(r.defaultPIN)) != 1 {
		return ErrInvalidPIN
	}
	set, err := storage.Load(ctx, r.st, r.markerKey(), false)
	if err != nil {
		return fmt.Errorf("load pin marker: %w", err)
	}
	if set {
		r.log.Warnw("manager pin hash missing, default pin refused")
		return ErrInvalidPIN
	}
	for _, key := range []string{r.key(), r.markerKey()} {
		lost, err := r.st.Quarantined(ctx, key)
		if err != nil {
			return err
		}
		if lost {
			r.log.Warnw("settings quarantined, default pin refused", "key", key)
			return ErrInvalidPIN
		}
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
