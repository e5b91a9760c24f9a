// Package lifecycle provides the manual record operations: freezing,
// sensitivity marking with optional encryption, soft and hard deletion, and
// weight explanation. All operations are synchronous, idempotent and safe
// to run concurrently with scheduler sweeps; version conflicts against the
// store are retried a bounded number of times.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
	"github.com/xingxinonline/landoubao-mem0/pkg/weighting"
)

const mutateRetries = 3

// Manager performs lifecycle operations against a store.
type Manager struct {
	store   store.Store
	weights *weighting.Engine
	cipher  *Cipher
	logger  *logrus.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithCipher enables encryption for records at sensitivity level 3 or
// higher.
func WithCipher(c *Cipher) Option {
	return func(m *Manager) { m.cipher = c }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a lifecycle manager.
func NewManager(st store.Store, weights *weighting.Engine, opts ...Option) (*Manager, error) {
	if st == nil || weights == nil {
		return nil, core.NewEngineError("lifecycle.NewManager",
			fmt.Errorf("%w: store and weighting engine are required", core.ErrInvalidConfig))
	}
	m := &Manager{store: st, weights: weights, logger: logrus.New(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Freeze exempts the record from decay, compression and cleanup.
func (m *Manager) Freeze(ctx context.Context, id string) error {
	return m.mutate(ctx, "Freeze", id, func(rec *memory.Record) (bool, error) {
		if rec.IsFrozen {
			return false, nil
		}
		rec.IsFrozen = true
		return true, nil
	})
}

// Unfreeze returns the record to normal lifecycle handling.
func (m *Manager) Unfreeze(ctx context.Context, id string) error {
	return m.mutate(ctx, "Unfreeze", id, func(rec *memory.Record) (bool, error) {
		if !rec.IsFrozen {
			return false, nil
		}
		rec.IsFrozen = false
		return true, nil
	})
}

// MarkSensitive sets the record's sensitivity level. Levels 1 and 2 limit
// how far compression may demote the record; level 3 and above additionally
// exempts it from automatic deletion and, when encrypt is set, stores the
// text encrypted. Encryption requires a cipher.
func (m *Manager) MarkSensitive(ctx context.Context, id string, level int, encrypt bool) error {
	if level < 0 || level > 3 {
		return core.NewEngineError("MarkSensitive",
			fmt.Errorf("%w: sensitivity level %d outside [0, 3]", core.ErrInvalidInput, level))
	}
	if encrypt && m.cipher == nil {
		return core.NewEngineError("MarkSensitive",
			fmt.Errorf("%w: encryption requested but no cipher configured", core.ErrInvalidConfig))
	}
	return m.mutate(ctx, "MarkSensitive", id, func(rec *memory.Record) (bool, error) {
		if rec.SensitivityLevel == level && rec.IsEncrypted == encrypt {
			return false, nil
		}
		rec.SensitivityLevel = level
		rec.IsSensitive = level > 0
		if encrypt && !rec.IsEncrypted {
			sealed, err := m.cipher.Seal(rec.Content.Text)
			if err != nil {
				return false, err
			}
			rec.Content.Text = sealed
			rec.IsEncrypted = true
		}
		return true, nil
	})
}

// EditContent replaces the record's text with an operator-supplied version.
// The edit refreshes lastActivatedAt and is recorded in the weight-change
// log; the stored weight itself is untouched. Encrypted records must be
// decrypted and re-marked instead of edited in place.
func (m *Manager) EditContent(ctx context.Context, id, text string) error {
	if text == "" {
		return core.NewEngineError("EditContent",
			fmt.Errorf("%w: replacement text is required", core.ErrInvalidInput))
	}
	return m.mutate(ctx, "EditContent", id, func(rec *memory.Record) (bool, error) {
		if rec.IsEncrypted {
			return false, core.NewEngineError("EditContent",
				fmt.Errorf("%w: record %s is encrypted", core.ErrProtected, id))
		}
		if rec.Content.Text == text {
			return false, nil
		}
		now := m.now()
		rec.Content.Text = text
		rec.LastActivatedAt = now
		rec.AppendWeightChange(memory.WeightChange{
			Timestamp: now,
			Trigger:   memory.TriggerManualEdit,
			OldWeight: rec.Weight,
			NewWeight: rec.Weight,
			Reason:    "manual content edit",
			Breakdown: rec.Factors,
		})
		return true, nil
	})
}

// SoftDelete retires the record while keeping it recoverable. Frozen
// records are protected.
func (m *Manager) SoftDelete(ctx context.Context, id string) error {
	return m.mutate(ctx, "SoftDelete", id, func(rec *memory.Record) (bool, error) {
		if rec.IsDeleted {
			return false, nil
		}
		if rec.IsFrozen {
			return false, core.NewEngineError("SoftDelete",
				fmt.Errorf("%w: record %s is frozen", core.ErrProtected, id))
		}
		rec.IsDeleted = true
		rec.DeletedAt = m.now()
		return true, nil
	})
}

// Restore clears the soft-deleted flag.
func (m *Manager) Restore(ctx context.Context, id string) error {
	return m.mutate(ctx, "Restore", id, func(rec *memory.Record) (bool, error) {
		if !rec.IsDeleted {
			return false, nil
		}
		rec.IsDeleted = false
		rec.DeletedAt = time.Time{}
		return true, nil
	})
}

// HardDelete removes the record permanently. Frozen records are protected;
// deleting an already-absent record is a no-op.
func (m *Manager) HardDelete(ctx context.Context, id string) error {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return core.NewEngineError("HardDelete", err)
	}
	if rec.IsFrozen {
		return core.NewEngineError("HardDelete",
			fmt.Errorf("%w: record %s is frozen", core.ErrProtected, id))
	}
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return core.NewEngineError("HardDelete", err)
	}
	return nil
}

// Explanation is the result of an Explain call: the current weight
// breakdown plus the metadata that went into it.
type Explanation struct {
	RecordID     string                 `json:"recordId"`
	Tier         memory.Tier            `json:"tier"`
	Category     memory.Category        `json:"category"`
	Breakdown    memory.WeightBreakdown `json:"breakdown"`
	StoredWeight float64                `json:"storedWeight"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastActive   time.Time              `json:"lastActive"`
	Mentions     int                    `json:"mentions"`
	Reinforces   int                    `json:"reinforces"`
	IsNegated    bool                   `json:"isNegated"`
	IsFrozen     bool                   `json:"isFrozen"`
	ChangeLog    []memory.WeightChange  `json:"changeLog"`
}

// Explain recomputes the weight breakdown for a record as of now and
// returns it with a metadata snapshot. The record is not mutated.
func (m *Manager) Explain(ctx context.Context, id string) (*Explanation, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, core.NewEngineError("Explain", err)
	}
	breakdown := m.weights.Compute(rec, m.now())
	return &Explanation{
		RecordID:     rec.ID,
		Tier:         rec.Tier,
		Category:     rec.Category,
		Breakdown:    breakdown,
		StoredWeight: rec.Weight,
		CreatedAt:    rec.CreatedAt,
		LastActive:   rec.LastActivatedAt,
		Mentions:     rec.MentionCount,
		Reinforces:   rec.ReinforceCount,
		IsNegated:    rec.IsNegated,
		IsFrozen:     rec.IsFrozen,
		ChangeLog:    rec.WeightChangeLog,
	}, nil
}

// Decrypt returns the plaintext of an encrypted record's text.
func (m *Manager) Decrypt(ctx context.Context, id string) (string, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return "", core.NewEngineError("Decrypt", err)
	}
	if !rec.IsEncrypted {
		return rec.Content.Text, nil
	}
	if m.cipher == nil {
		return "", core.NewEngineError("Decrypt",
			fmt.Errorf("%w: record is encrypted but no cipher configured", core.ErrInvalidConfig))
	}
	return m.cipher.Open(rec.Content.Text)
}

// mutate loads the record, applies fn and writes it back, retrying on
// version conflicts. fn reports whether anything changed; unchanged records
// are not written, which keeps the operations idempotent.
func (m *Manager) mutate(ctx context.Context, op, id string, fn func(*memory.Record) (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		rec, err := m.store.Get(ctx, id)
		if err != nil {
			return core.NewEngineError(op, err)
		}
		changed, err := fn(rec)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if _, err := m.store.Update(ctx, rec); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return core.NewEngineError(op, err)
		}
		return nil
	}
	m.logger.WithFields(logrus.Fields{"op": op, "record_id": id}).
		Warn("giving up after repeated version conflicts")
	return core.NewEngineError(op, fmt.Errorf("%w: %v", core.ErrConflict, lastErr))
}
