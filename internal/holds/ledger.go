package holds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"edengolf/internal/metrics"
	"edengolf/internal/models"

	"github.com/rs/zerolog"
)

// DefaultNamespace prefixes every ledger key.
const DefaultNamespace = "caddy-holds"

// ErrCapacityExceeded is returned when a slot already has as many holds as it needs.
var ErrCapacityExceeded = errors.New("hold quota reached for this tee time")

// Ledger tracks which resource ids the current session has soft-held per slot. It is
// not a lock: the backend remains the authority on what is actually booked.
type Ledger struct {
	store     Store
	namespace string
	logger    *zerolog.Logger

	mu        sync.Mutex
	active    models.SlotKey
	hasActive bool
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, namespace string, logger *zerolog.Logger) *Ledger {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Ledger{store: store, namespace: namespace, logger: logger}
}

// Key returns the storage key for slot.
func (l *Ledger) Key(slot models.SlotKey) string {
	return l.namespace + ":" + slot.String()
}

// Acquire adds holderID to the holds of slot. Acquiring an id that is already held
// succeeds without change. When quota ids are already held the call fails with
// ErrCapacityExceeded and nothing is written.
func (l *Ledger) Acquire(ctx context.Context, slot models.SlotKey, holderID string, quota int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.read(ctx, slot)
	if slices.Contains(ids, holderID) {
		return nil
	}
	if len(ids) >= quota {
		metrics.IncHoldAcquire("rejected")
		return fmt.Errorf("%w (%d of %d)", ErrCapacityExceeded, len(ids), quota)
	}
	if err := l.write(ctx, slot, append(ids, holderID)); err != nil {
		metrics.IncHoldAcquire("error")
		return err
	}
	metrics.IncHoldAcquire("acquired")
	return nil
}

// Release removes holderID from slot. Releasing an id that is not held is a no-op.
func (l *Ledger) Release(ctx context.Context, slot models.SlotKey, holderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.read(ctx, slot)
	idx := slices.Index(ids, holderID)
	if idx < 0 {
		return nil
	}
	return l.write(ctx, slot, slices.Delete(ids, idx, idx+1))
}

// Clear drops every hold of slot.
func (l *Ledger) Clear(ctx context.Context, slot models.SlotKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clear(ctx, slot)
}

// Read returns the held ids of slot. It never fails: a missing, corrupt or
// unreachable entry reads as empty.
func (l *Ledger) Read(ctx context.Context, slot models.SlotKey) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(ctx, slot)
}

// Activate makes slot the session's current slot. Holds of the previously active
// slot are purged when it differs.
func (l *Ledger) Activate(ctx context.Context, slot models.SlotKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasActive && l.active.Equal(slot) {
		return nil
	}
	if l.hasActive {
		if err := l.clear(ctx, l.active); err != nil {
			return err
		}
	}
	l.active, l.hasActive = slot, true
	return nil
}

// Deactivate purges the holds of the active slot, e.g. when the workflow ends.
func (l *Ledger) Deactivate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasActive {
		return nil
	}
	err := l.clear(ctx, l.active)
	l.active, l.hasActive = models.SlotKey{}, false
	return err
}

// Active returns the active slot.
func (l *Ledger) Active() (models.SlotKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.hasActive
}

func (l *Ledger) read(ctx context.Context, slot models.SlotKey) []string {
	key := l.Key(slot)
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("hold store unavailable, treating holds as empty")
		return []string{}
	}
	if !found || raw == "" {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("corrupt hold entry, treating as empty")
		return []string{}
	}
	return ids
}

func (l *Ledger) write(ctx context.Context, slot models.SlotKey, ids []string) error {
	key := l.Key(slot)
	if len(ids) == 0 {
		return l.clearKey(ctx, key)
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode holds: %w", err)
	}
	if err := l.store.Set(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("save holds %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) clear(ctx context.Context, slot models.SlotKey) error {
	return l.clearKey(ctx, l.Key(slot))
}

func (l *Ledger) clearKey(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear holds %s: %w", key, err)
	}
	return nil
}
