package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
)

// ExportJSON writes all of a user's records, soft-deleted included, to a
// JSON file. Encrypted records are exported as stored, still sealed.
func (e *Engine) ExportJSON(ctx context.Context, path, userID string) error {
	recs, err := e.store.QueryByUser(ctx, userID, &store.QueryOptions{IncludeDeleted: true})
	if err != nil {
		return core.NewEngineError("ExportJSON", err)
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return core.NewEngineError("ExportJSON", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return core.NewEngineError("ExportJSON", err)
	}
	return nil
}

// ImportJSON loads records from a JSON export. Records whose IDs already
// exist are overwritten when the import carries a newer version, otherwise
// skipped.
func (e *Engine) ImportJSON(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.NewEngineError("ImportJSON", err)
	}
	var recs []*memory.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return core.NewEngineError("ImportJSON", err)
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		createErr := e.store.Create(ctx, rec.Clone())
		if createErr == nil {
			continue
		}
		if !errors.Is(createErr, store.ErrDuplicateID) {
			return core.NewEngineError("ImportJSON", createErr)
		}
		existing, err := e.store.Get(ctx, rec.ID)
		if err != nil {
			return core.NewEngineError("ImportJSON", err)
		}
		if rec.Version <= existing.Version {
			continue
		}
		replacement := rec.Clone()
		replacement.Version = existing.Version
		if _, err := e.store.Update(ctx, replacement); err != nil {
			return core.NewEngineError("ImportJSON", err)
		}
	}
	return nil
}
