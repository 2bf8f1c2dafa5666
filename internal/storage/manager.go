// Package storage implements the persistence core: a write-behind layer over
// a kv.Store that keeps a bounded in-memory cache, skips writes whose content
// did not change, coalesces bursts of saves into one physical write and
// quarantines values it cannot decode.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/cache"
	"github.com/iliyamo/restaurant-pos/internal/codec"
	"github.com/iliyamo/restaurant-pos/internal/kv"
	"github.com/iliyamo/restaurant-pos/internal/loader"
)

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("storage manager closed")

const (
	DefaultWriteDebounce  = 300 * time.Millisecond
	DefaultMaxHashEntries = 100
)

// Config tunes a Manager.  Zero fields take their defaults.
type Config struct {
	Prefix               string
	SchemaVersion        string
	WriteDebounce        time.Duration
	CompressionThreshold int
	Cache                cache.Config
	MaxHashEntries       int
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.SchemaVersion == "" {
		c.SchemaVersion = DefaultSchemaVersion
	}
	if c.WriteDebounce <= 0 {
		c.WriteDebounce = DefaultWriteDebounce
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = codec.DefaultThreshold
	}
	if c.MaxHashEntries <= 0 {
		c.MaxHashEntries = DefaultMaxHashEntries
	}
	return c
}

// KeyStats counts what happened to one key since the manager was created.
type KeyStats struct {
	Reads     int64     `json:"reads"`
	CacheHits int64     `json:"cacheHits"`
	Writes    int64     `json:"writes"`
	Skipped   int64     `json:"skipped"`
	Errors    int64     `json:"errors"`
	Corrupted int64     `json:"corrupted"`
	LastWrite time.Time `json:"lastWrite,omitzero"`
}

// Op is one entry of a BatchSave.
type Op struct {
	Key   string
	Value any
}

type saveOptions struct {
	compress bool
}

// SaveOption adjusts a single Save.
type SaveOption func(*saveOptions)

// WithoutCompression stores the value as plain JSON whatever its size.
func WithoutCompression() SaveOption {
	return func(o *saveOptions) { o.compress = false }
}

type pendingWrite struct {
	key   string
	value string
	seq   uint64
	timer *time.Timer
}

type serialized struct {
	hash     uint64
	compress bool
	encoded  string
}

// Manager is safe for concurrent use.  Create one per process with New and
// release it with Close.
type Manager struct {
	store kv.Store
	cfg   Config
	codec *codec.Codec
	cache *cache.Memory[[]byte]
	loads *loader.Group[[]byte]
	log   *zap.SugaredLogger

	mu      sync.Mutex
	closed  bool
	seq     uint64
	hashes  map[string]uint64
	serial  map[string]serialized
	pending map[string]*pendingWrite
	version map[string]uint64
	stats   map[string]*KeyStats
	hooks   []func(context.Context) error

	// writeMu orders physical writes; written holds the newest sequence
	// number persisted per key so an older write can never land after it.
	writeMu sync.Mutex
	written map[string]uint64

	// resetMu is held exclusively by ResetApplicationData; saves take it
	// shared so none can interleave with a reset.
	resetMu sync.RWMutex
}

// New returns a Manager writing through store.
func New(store kv.Store, cfg Config, log *zap.SugaredLogger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("storage: nil store")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg = cfg.withDefaults()
	c, err := codec.New(cfg.CompressionThreshold)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return &Manager{
		store:   store,
		cfg:     cfg,
		codec:   c,
		cache:   cache.New[[]byte](cfg.Cache, func(b []byte) int { return len(b) * 2 }),
		loads:   loader.New[[]byte](),
		log:     log,
		hashes:  make(map[string]uint64),
		serial:  make(map[string]serialized),
		pending: make(map[string]*pendingWrite),
		version: make(map[string]uint64),
		stats:   make(map[string]*KeyStats),
		written: make(map[string]uint64),
	}, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Close flushes pending writes and releases the codec.  Further saves fail
// with ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	err := m.FlushPendingWrites(ctx)

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.codec.Close()
	return err
}

// Save stores value under key.  The in-memory copy is updated before Save
// returns; the physical write happens after the debounce delay and is
// superseded by any later Save of the same key.  Saving a value equal to the
// current one does nothing.
func (m *Manager) Save(ctx context.Context, key string, value any, opts ...SaveOption) error {
	o := saveOptions{compress: true}
	for _, opt := range opts {
		opt(&o)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", key, err)
	}
	h := xxhash.Sum64(data)

	m.resetMu.RLock()
	defer m.resetMu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	st := m.statsFor(key)
	if prev, ok := m.hashes[key]; ok && prev == h {
		st.Skipped++
		return nil
	}

	if p := m.pending[key]; p != nil {
		p.timer.Stop()
		delete(m.pending, key)
	}

	m.version[key]++
	m.cache.Set(key, data)
	m.rememberHash(key, h)

	encoded, err := m.encodeLocked(key, data, h, o.compress)
	if err != nil {
		st.Errors++
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}

	m.seq++
	p := &pendingWrite{key: key, value: encoded, seq: m.seq}
	p.timer = time.AfterFunc(m.cfg.WriteDebounce, func() { m.fire(p) })
	m.pending[key] = p
	return nil
}

// Load decodes the value stored under key into a T.  A missing key yields
// def.  A value that cannot be decoded is moved to CorruptedKey(key) and def
// is returned without error; store failures return def and the error.
func Load[T any](ctx context.Context, m *Manager, key string, def T) (T, error) {
	data, err := m.loadBytes(ctx, key)
	if err != nil {
		return def, err
	}
	if data == nil {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		m.quarantine(ctx, key, string(data), err)
		return def, nil
	}
	return v, nil
}

// Has reports whether key holds a value, in memory or in the store.
func (m *Manager) Has(ctx context.Context, key string) (bool, error) {
	data, err := m.loadBytes(ctx, key)
	return data != nil, err
}

// Quarantined reports whether a corrupted value of key has been set aside.
func (m *Manager) Quarantined(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.store.GetItem(ctx, CorruptedKey(key))
	if err != nil {
		return false, fmt.Errorf("storage: read %s: %w", CorruptedKey(key), err)
	}
	return ok, nil
}

func (m *Manager) loadBytes(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	st := m.statsFor(key)
	st.Reads++
	if data, ok := m.cache.Get(key); ok {
		st.CacheHits++
		m.mu.Unlock()
		return data, nil
	}
	m.mu.Unlock()

	return m.loads.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		m.mu.Lock()
		if data, ok := m.cache.Get(key); ok {
			m.mu.Unlock()
			return data, nil
		}
		gen := m.version[key]
		var raw string
		var ok bool
		if p := m.pending[key]; p != nil {
			// Evicted from the cache but not yet persisted.
			raw, ok = p.value, true
		}
		m.mu.Unlock()

		if !ok {
			var err error
			raw, ok, err = m.store.GetItem(ctx, key)
			if err != nil {
				m.mu.Lock()
				m.statsFor(key).Errors++
				m.mu.Unlock()
				m.log.Errorw("storage read failed", "key", key, "error", err)
				return nil, fmt.Errorf("storage: read %s: %w", key, err)
			}
			if !ok {
				return nil, nil
			}
		}
		data, err := m.codec.Decode(raw)
		if err != nil {
			m.quarantine(ctx, key, raw, err)
			return nil, nil
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.version[key] != gen {
			// Saved while we were reading: the cached value is newer.
			if cur, ok := m.cache.Get(key); ok {
				return cur, nil
			}
			return nil, nil
		}
		m.cache.Set(key, data)
		m.rememberHash(key, xxhash.Sum64(data))
		return data, nil
	})
}

func (m *Manager) quarantine(ctx context.Context, key, raw string, cause error) {
	m.log.Warnw("corrupted value quarantined", "key", key, "error", cause, "bytes", len(raw))

	m.mu.Lock()
	m.statsFor(key).Corrupted++
	m.cache.Delete(key)
	delete(m.hashes, key)
	delete(m.serial, key)
	m.mu.Unlock()

	if err := m.store.SetItem(ctx, CorruptedKey(key), raw); err != nil {
		m.log.Errorw("quarantine write failed", "key", key, "error", err)
		return
	}
	// Only drop the original when nothing newer replaced it meanwhile.
	m.mu.Lock()
	_, pending := m.pending[key]
	m.mu.Unlock()
	if pending {
		return
	}
	if err := m.store.RemoveItem(ctx, key); err != nil {
		m.log.Errorw("quarantine remove failed", "key", key, "error", err)
	}
}

// FlushPendingWrites cancels every debounce timer and performs the writes
// now, oldest first.
func (m *Manager) FlushPendingWrites(ctx context.Context) error {
	m.mu.Lock()
	list := make([]*pendingWrite, 0, len(m.pending))
	for k, p := range m.pending {
		p.timer.Stop()
		list = append(list, p)
		delete(m.pending, k)
	}
	m.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	var errs []error
	for _, p := range list {
		if err := m.write(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PendingWrites returns the keys with a write waiting on its debounce timer.
func (m *Manager) PendingWrites() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.pending))
	for k := range m.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BatchSave writes all ops in one MultiSet, bypassing the debounce.
func (m *Manager) BatchSave(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	pairs := make([]kv.Pair, 0, len(ops))
	seqs := make(map[string]uint64, len(ops))

	m.resetMu.RLock()
	defer m.resetMu.RUnlock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	for _, op := range ops {
		data, err := json.Marshal(op.Value)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("storage: marshal %s: %w", op.Key, err)
		}
		h := xxhash.Sum64(data)
		encoded, err := m.encodeLocked(op.Key, data, h, true)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("storage: encode %s: %w", op.Key, err)
		}
		if p := m.pending[op.Key]; p != nil {
			p.timer.Stop()
			delete(m.pending, op.Key)
		}
		m.version[op.Key]++
		m.cache.Set(op.Key, data)
		m.rememberHash(op.Key, h)
		m.seq++
		seqs[op.Key] = m.seq
		pairs = append(pairs, kv.Pair{Key: op.Key, Value: encoded})
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	err := m.store.MultiSet(ctx, pairs)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, seq := range seqs {
		st := m.statsFor(key)
		if err != nil {
			st.Errors++
			delete(m.hashes, key)
			continue
		}
		if seq > m.written[key] {
			m.written[key] = seq
		}
		st.Writes++
		st.LastWrite = now
	}
	if err != nil {
		m.log.Errorw("batch save failed", "keys", len(pairs), "error", err)
		return fmt.Errorf("storage: batch save: %w", err)
	}
	return nil
}

// OnMaintenance registers a repair routine run by PerformMaintenance.
func (m *Manager) OnMaintenance(fn func(context.Context) error) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// PerformMaintenance makes pending state durable, drops every in-memory
// cache and the cache-only key, then runs the registered repair routines.
// Writes are flushed before the caches go so no reader can observe the
// store behind a value it already saved.
func (m *Manager) PerformMaintenance(ctx context.Context) error {
	var errs []error
	if err := m.FlushPendingWrites(ctx); err != nil {
		errs = append(errs, err)
	}
	m.clearMemory()
	if err := m.store.RemoveItem(ctx, m.Key(Cache)); err != nil {
		errs = append(errs, fmt.Errorf("storage: remove cache key: %w", err))
	}

	m.mu.Lock()
	hooks := append([]func(context.Context) error(nil), m.hooks...)
	m.mu.Unlock()
	for _, fn := range hooks {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Errorw("maintenance finished with errors", "error", err)
		return err
	}
	m.log.Infow("maintenance complete")
	return nil
}

// ResetApplicationData deletes the transactional collections (bills,
// archive, menu availability, last sync and cache) and keeps tables, custom
// menu items and settings.  Saves issued while a reset runs wait for it and
// land after the removal.
func (m *Manager) ResetApplicationData(ctx context.Context) error {
	removed := make([]string, len(transactional))
	for i, name := range transactional {
		removed[i] = m.Key(name)
	}

	m.resetMu.Lock()
	defer m.resetMu.Unlock()

	m.mu.Lock()
	cut := m.seq
	for _, key := range removed {
		if p := m.pending[key]; p != nil {
			p.timer.Stop()
			delete(m.pending, key)
		}
		m.version[key]++
	}
	m.mu.Unlock()

	var errs []error
	if err := m.FlushPendingWrites(ctx); err != nil {
		errs = append(errs, err)
	}

	m.writeMu.Lock()
	err := m.store.MultiRemove(ctx, removed)
	m.mu.Lock()
	for _, key := range removed {
		// Writes issued before the cut are stale.
		if m.written[key] < cut {
			m.written[key] = cut
		}
	}
	m.mu.Unlock()
	m.writeMu.Unlock()
	if err != nil {
		errs = append(errs, fmt.Errorf("storage: reset: %w", err))
	}

	m.clearMemory()
	for _, key := range removed {
		m.loads.Forget(key)
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Errorw("reset application data failed", "error", err)
		return err
	}
	m.log.Infow("application data reset", "keys", removed)
	return nil
}

// StoredKeys lists the keys in the store that belong to this namespace.
func (m *Manager) StoredKeys(ctx context.Context) ([]string, error) {
	all, err := m.store.GetAllKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: list keys: %w", err)
	}
	keys := all[:0]
	for _, k := range all {
		if strings.HasPrefix(k, m.cfg.Prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Stats returns a copy of the per-key counters.
func (m *Manager) Stats() map[string]KeyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]KeyStats, len(m.stats))
	for k, st := range m.stats {
		out[k] = *st
	}
	return out
}

// CacheStats reports the in-memory cache.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

func (m *Manager) fire(p *pendingWrite) {
	m.mu.Lock()
	if m.pending[p.key] != p {
		m.mu.Unlock()
		return
	}
	delete(m.pending, p.key)
	m.mu.Unlock()

	if err := m.write(context.Background(), p); err != nil {
		m.log.Errorw("deferred write failed", "key", p.key, "error", err)
	}
}

func (m *Manager) write(ctx context.Context, p *pendingWrite) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	stale := m.written[p.key] >= p.seq
	m.mu.Unlock()
	if stale {
		return nil
	}

	err := m.store.SetItem(ctx, p.key, p.value)

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.statsFor(p.key)
	if err != nil {
		st.Errors++
		// Forget the hash so saving the same value again retries.
		delete(m.hashes, p.key)
		return fmt.Errorf("storage: write %s: %w", p.key, err)
	}
	m.written[p.key] = p.seq
	st.Writes++
	st.LastWrite = time.Now()
	return nil
}

// encodeLocked reuses the last encoding of key when the content and
// compression choice are unchanged.  m.mu must be held.
func (m *Manager) encodeLocked(key string, data []byte, h uint64, compress bool) (string, error) {
	if s, ok := m.serial[key]; ok && s.hash == h && s.compress == compress {
		return s.encoded, nil
	}
	encoded, err := m.codec.Encode(data, compress)
	if err != nil {
		return "", err
	}
	m.serial[key] = serialized{hash: h, compress: compress, encoded: encoded}
	return encoded, nil
}

// rememberHash records h for key.  The map is cleared wholesale when full.
func (m *Manager) rememberHash(key string, h uint64) {
	if _, ok := m.hashes[key]; !ok && len(m.hashes) >= m.cfg.MaxHashEntries {
		m.hashes = make(map[string]uint64)
	}
	m.hashes[key] = h
}

func (m *Manager) clearMemory() {
	m.mu.Lock()
	m.cache.Clear()
	m.hashes = make(map[string]uint64)
	m.serial = make(map[string]serialized)
	m.mu.Unlock()
}

func (m *Manager) statsFor(key string) *KeyStats {
	st, ok := m.stats[key]
	if !ok {
		st = &KeyStats{}
		m.stats[key] = st
	}
	return st
}
