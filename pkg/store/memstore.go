package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
)

// MemStore is an in-memory Store keyed by record ID with secondary indexes
// by user, device, and group. It is safe for concurrent use; every read
// returns a deep copy and every update is version-checked.
type MemStore struct {
	mu          sync.RWMutex
	records     map[string]*memory.Record
	userIndex   map[string]map[string]struct{}
	deviceIndex map[string]map[string]struct{}
	groupIndex  map[string]map[string]struct{}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records:     make(map[string]*memory.Record),
		userIndex:   make(map[string]map[string]struct{}),
		deviceIndex: make(map[string]map[string]struct{}),
		groupIndex:  make(map[string]map[string]struct{}),
	}
}

// Create persists a new record.
func (s *MemStore) Create(ctx context.Context, rec *memory.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	cp := rec.Clone()
	cp.Version = 1
	s.records[rec.ID] = cp
	s.index(cp)
	rec.Version = cp.Version
	return nil
}

// Get returns a copy of the record by ID.
func (s *MemStore) Get(ctx context.Context, id string) (*memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Update replaces the stored record after a version check. The passed
// record's Version must match the stored one; on success both the stored and
// the passed record carry the incremented version.
func (s *MemStore) Update(ctx context.Context, rec *memory.Record) (*memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	if current.Version != rec.Version {
		return nil, fmt.Errorf("%w: %s (have %d, want %d)",
			ErrVersionConflict, rec.ID, rec.Version, current.Version)
	}

	s.unindex(current)
	cp := rec.Clone()
	cp.Version = current.Version + 1
	s.records[rec.ID] = cp
	s.index(cp)
	return cp.Clone(), nil
}

// Delete removes the record permanently.
func (s *MemStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.unindex(rec)
	delete(s.records, id)
	return nil
}

// QueryByUser lists a user's records sorted by ID (creation order for a
// fixed device).
func (s *MemStore) QueryByUser(ctx context.Context, userID string, opts *QueryOptions) ([]*memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.userIndex[userID], opts), nil
}

// QueryByCategory lists a user's records in one category.
func (s *MemStore) QueryByCategory(ctx context.Context, userID string, cat memory.Category, opts *QueryOptions) ([]*memory.Record, error) {
	scoped := QueryOptions{Category: cat}
	if opts != nil {
		scoped = *opts
		scoped.Category = cat
	}
	return s.QueryByUser(ctx, userID, &scoped)
}

// QueryByGroup lists records shared into a group.
func (s *MemStore) QueryByGroup(ctx context.Context, groupID string, opts *QueryOptions) ([]*memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.groupIndex[groupID], opts), nil
}

// Users lists user IDs owning at least one record, sorted.
func (s *MemStore) Users(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.userIndex))
	for u, ids := range s.userIndex {
		if len(ids) > 0 {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}

// ExportJSON writes a user's records (all users when userID is empty) to a
// JSON file.
func (s *MemStore) ExportJSON(path, userID string) error {
	s.mu.RLock()
	var out []*memory.Record
	for _, rec := range s.records {
		if userID == "" || rec.OwnerUser == userID {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("store: export: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ImportJSON loads records from a JSON file previously written by ExportJSON.
// Existing IDs are overwritten.
func (s *MemStore) ImportJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("store: import: %w", err)
	}
	var recs []*memory.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("store: import: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if old, ok := s.records[rec.ID]; ok {
			s.unindex(old)
		}
		cp := rec.Clone()
		if cp.Version == 0 {
			cp.Version = 1
		}
		s.records[cp.ID] = cp
		s.index(cp)
	}
	return nil
}

// collect gathers matching records for an ID set. Caller holds s.mu.
func (s *MemStore) collect(ids map[string]struct{}, opts *QueryOptions) []*memory.Record {
	if opts == nil {
		opts = &QueryOptions{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var out []*memory.Record
	for _, id := range sorted {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if rec.IsDeleted && !opts.IncludeDeleted {
			continue
		}
		if opts.Category != "" && rec.Category != opts.Category {
			continue
		}
		out = append(out, rec.Clone())
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

func (s *MemStore) index(rec *memory.Record) {
	addTo(s.userIndex, rec.OwnerUser, rec.ID)
	addTo(s.deviceIndex, rec.OwnerDevice, rec.ID)
	if rec.IsGroupMemory && rec.GroupID != "" {
		addTo(s.groupIndex, rec.GroupID, rec.ID)
	}
}

func (s *MemStore) unindex(rec *memory.Record) {
	removeFrom(s.userIndex, rec.OwnerUser, rec.ID)
	removeFrom(s.deviceIndex, rec.OwnerDevice, rec.ID)
	if rec.GroupID != "" {
		removeFrom(s.groupIndex, rec.GroupID, rec.ID)
	}
}

func addTo(idx map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(idx map[string]map[string]struct{}, key, id string) {
	if set, ok := idx[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}
