package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
)

func newRecord(id, user string, cat memory.Category) *memory.Record {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return &memory.Record{
		ID:              id,
		OwnerUser:       user,
		Content:         memory.Content{Text: "memory " + id},
		Tier:            memory.TierFull,
		Category:        cat,
		CreatedAt:       now,
		LastActivatedAt: now,
		Weight:          1.0,
	}
}

func TestMemStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()

	rec := newRecord("rec-1", "alice", memory.CategoryFact)
	require.NoError(t, s.Create(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	assert.ErrorIs(t, s.Create(ctx, newRecord("rec-1", "alice", memory.CategoryFact)), store.ErrDuplicateID)

	got, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "memory rec-1", got.Content.Text)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got.Content.Text = "updated"
	updated, err := s.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	require.NoError(t, s.Delete(ctx, "rec-1"))
	assert.ErrorIs(t, s.Delete(ctx, "rec-1"), store.ErrNotFound)
}

func TestMemStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.Create(ctx, newRecord("rec-1", "alice", memory.CategoryFact)))

	first, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	second, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)

	first.MentionCount = 1
	_, err = s.Update(ctx, first)
	require.NoError(t, err)

	second.MentionCount = 2
	_, err = s.Update(ctx, second)
	assert.ErrorIs(t, err, store.ErrVersionConflict, "stale version must be rejected")
}

func TestMemStoreCopyOnRead(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.Create(ctx, newRecord("rec-1", "alice", memory.CategoryFact)))

	got, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	got.Content.Text = "mutated copy"
	got.Tags = append(got.Tags, "local")

	fresh, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "memory rec-1", fresh.Content.Text)
	assert.Empty(t, fresh.Tags)
}

func TestMemStoreQueries(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.Create(ctx, newRecord("b", "alice", memory.CategoryFact)))
	require.NoError(t, s.Create(ctx, newRecord("a", "alice", memory.CategorySkill)))
	require.NoError(t, s.Create(ctx, newRecord("c", "bob", memory.CategoryFact)))

	deleted := newRecord("d", "alice", memory.CategoryFact)
	deleted.IsDeleted = true
	require.NoError(t, s.Create(ctx, deleted))

	recs, err := s.QueryByUser(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID, "results are ID ordered")
	assert.Equal(t, "b", recs[1].ID)

	recs, err = s.QueryByUser(ctx, "alice", &store.QueryOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = s.QueryByCategory(ctx, "alice", memory.CategorySkill, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)

	recs, err = s.QueryByUser(ctx, "alice", &store.QueryOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestMemStoreGroupIndex(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()

	shared := newRecord("g1", "alice", memory.CategoryFact)
	shared.IsGroupMemory = true
	shared.GroupID = "family"
	require.NoError(t, s.Create(ctx, shared))
	require.NoError(t, s.Create(ctx, newRecord("g2", "alice", memory.CategoryFact)))

	recs, err := s.QueryByGroup(ctx, "family", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "g1", recs[0].ID)
}

func TestMemStoreExportImport(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.Create(ctx, newRecord("rec-1", "alice", memory.CategoryFact)))
	require.NoError(t, s.Create(ctx, newRecord("rec-2", "alice", memory.CategoryEvent)))

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, s.ExportJSON(path, "alice"))

	restored := store.NewMemStore()
	require.NoError(t, restored.ImportJSON(path))

	recs, err := restored.QueryByUser(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestMemStoreCancelledContext(t *testing.T) {
	s := store.NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Create(ctx, newRecord("rec-1", "alice", memory.CategoryFact)))
	_, err := s.QueryByUser(ctx, "alice", nil)
	assert.Error(t, err)
}
