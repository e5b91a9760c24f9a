// Package store defines the persistence contract for memory records and an
// in-memory implementation of it.
//
// The engine depends only on this interface; SQLite, PostgreSQL, and MySQL
// implementations live in subpackages. All implementations hand out deep
// copies: a caller never observes another caller's later mutations, and a
// reader concurrent with a sweep sees either the pre- or post-sweep record,
// never a torn one.
package store

import (
	"context"
	"errors"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound indicates the record does not exist (or is hard-deleted).
	ErrNotFound = errors.New("store: record not found")

	// ErrVersionConflict indicates an update carried a stale version; the
	// caller must re-read and retry.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrDuplicateID indicates a create with an already-used ID.
	ErrDuplicateID = errors.New("store: duplicate record id")
)

// QueryOptions filters list queries.
type QueryOptions struct {
	// IncludeDeleted also returns soft-deleted records (debug/cleanup use).
	IncludeDeleted bool

	// Category restricts results to one category when non-empty.
	Category memory.Category

	// Limit bounds the result count; 0 means no bound.
	Limit int
}

// Store is the persistence collaborator for memory records.
//
// Update is optimistic: the passed record's Version must match the stored
// version or the call fails with ErrVersionConflict. On success the stored
// version increments and the returned record reflects it.
type Store interface {
	// Create persists a new record. Fails with ErrDuplicateID if the ID is
	// already in use.
	Create(ctx context.Context, rec *memory.Record) error

	// Get returns a copy of the record by ID, soft-deleted included.
	Get(ctx context.Context, id string) (*memory.Record, error)

	// Update replaces the stored record after a version check.
	Update(ctx context.Context, rec *memory.Record) (*memory.Record, error)

	// Delete removes the record permanently. Soft deletion is a metadata
	// update, not a Delete.
	Delete(ctx context.Context, id string) error

	// QueryByUser lists a user's records.
	QueryByUser(ctx context.Context, userID string, opts *QueryOptions) ([]*memory.Record, error)

	// QueryByCategory lists a user's records in one category.
	QueryByCategory(ctx context.Context, userID string, cat memory.Category, opts *QueryOptions) ([]*memory.Record, error)

	// QueryByGroup lists records shared into a group.
	QueryByGroup(ctx context.Context, groupID string, opts *QueryOptions) ([]*memory.Record, error)

	// Users lists the user IDs that own at least one record; sweeps iterate
	// over this set.
	Users(ctx context.Context) ([]string, error)

	// Close releases the store's resources.
	Close() error
}
