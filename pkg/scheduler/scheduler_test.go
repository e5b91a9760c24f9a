package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingxinonline/landoubao-mem0/pkg/decision"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/scheduler"
	"github.com/xingxinonline/landoubao-mem0/pkg/semantic"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
	"github.com/xingxinonline/landoubao-mem0/pkg/weighting"
)

// failingSummarizer wraps the lexical provider but fails every Summarize.
type failingSummarizer struct {
	*semantic.Lexical
}

func (f *failingSummarizer) Summarize(context.Context, []string) (string, error) {
	return "", errors.New("summarizer unavailable")
}

type seqID struct{ n int }

func (s *seqID) Generate(userID string) string {
	s.n++
	return userID + "-gen-" + string(rune('0'+s.n))
}

type fixture struct {
	store *store.MemStore
	sched *scheduler.Scheduler
	now   time.Time
}

func newFixture(t *testing.T, provider semantic.Provider) *fixture {
	t.Helper()
	st := store.NewMemStore()
	weights, err := weighting.NewEngine(weighting.DefaultParams())
	require.NoError(t, err)
	decisions, err := decision.NewEngine(weights, decision.DefaultThresholds())
	require.NoError(t, err)

	f := &fixture{store: st, now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	f.sched, err = scheduler.NewScheduler(scheduler.DefaultConfig(), st, weights, decisions, provider, &seqID{},
		scheduler.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func (f *fixture) seed(t *testing.T, id string, cat memory.Category, text string, age time.Duration) *memory.Record {
	t.Helper()
	created := f.now.Add(-age)
	rec := &memory.Record{
		ID:              id,
		OwnerUser:       "alice",
		Content:         memory.Content{Text: text},
		Tier:            memory.TierFull,
		Category:        cat,
		CreatedAt:       created,
		LastActivatedAt: created,
		Weight:          1.0,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))
	return rec
}

func TestCompressionSweepDemotesOneStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, semantic.NewLexical())
	// Two-year-old temporary content decays far below the FULL floor.
	f.seed(t, "old", memory.CategoryTemporary, "ate a sandwich on a tuesday", 730*24*time.Hour)
	f.seed(t, "fresh", memory.CategoryIdentity, "name is alice", time.Hour)

	report, err := f.sched.CompressionSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Compressed)

	old, err := f.store.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, memory.TierSummary, old.Tier, "one step per sweep, even when the target is deeper")
	require.Len(t, old.CompressionHistory, 1)
	assert.Equal(t, memory.TierFull, old.CompressionHistory[0].OldTier)
	assert.Equal(t, f.now.Add(-730*24*time.Hour), old.LastActivatedAt, "passive decay never refreshes timestamps")

	fresh, err := f.store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, memory.TierFull, fresh.Tier)
}

func TestCompressionSweepSkipsFrozen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, semantic.NewLexical())
	rec := f.seed(t, "frozen", memory.CategoryTemporary, "pinned note", 730*24*time.Hour)
	rec.IsFrozen = true
	_, err := f.store.Update(ctx, rec)
	require.NoError(t, err)

	report, err := f.sched.CompressionSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Compressed)

	got, err := f.store.Get(ctx, "frozen")
	require.NoError(t, err)
	assert.Equal(t, memory.TierFull, got.Tier)
}

func TestCompressionSweepSummarizerFailureKeepsTier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &failingSummarizer{semantic.NewLexical()})
	f.seed(t, "old", memory.CategoryTemporary, "ate a sandwich on a tuesday", 730*24*time.Hour)

	report, err := f.sched.CompressionSweep(ctx)
	require.NoError(t, err, "a record's failure never aborts the sweep")
	assert.Zero(t, report.Compressed)
	assert.Equal(t, 1, report.Failures)

	got, err := f.store.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, memory.TierFull, got.Tier, "tier unchanged until the rewrite succeeds")
	assert.Less(t, got.Weight, 1.0, "weight still decays")
}

func TestMergeSweepConsolidatesNearDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, semantic.NewLexical())
	for i := 0; i < 10; i++ {
		rec := f.seed(t, "dup-"+string(rune('a'+i)), memory.CategoryStablePreference,
			"likes strong black coffee", time.Hour)
		rec.MentionCount = 1
		_, err := f.store.Update(ctx, rec)
		require.NoError(t, err)
	}
	f.seed(t, "other", memory.CategoryStablePreference, "enjoys mountain hiking trips", time.Hour)

	report, err := f.sched.MergeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 10, report.SoftDeleted)

	live, err := f.store.QueryByUser(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, live, 2, "one summary plus the unrelated record")

	var merged *memory.Record
	for _, rec := range live {
		if rec.Tier == memory.TierSummary {
			merged = rec
		}
	}
	require.NotNil(t, merged)
	assert.Len(t, merged.Provenance.MergedFrom, 10)
	assert.Equal(t, 10, merged.MentionCount, "mention counts are summed")

	for _, id := range merged.Provenance.MergedFrom {
		orig, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, orig.IsDeleted, "originals are soft-deleted, not purged")
		assert.Contains(t, orig.Provenance.ChildrenIDs, merged.ID)
	}
}

func TestMergeSweepSkipsSensitiveRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, semantic.NewLexical())
	for i, level := range []int{3, 3, 2} {
		rec := f.seed(t, "sens-"+string(rune('a'+i)), memory.CategoryFact,
			"carries a rare blood type", time.Hour)
		rec.SensitivityLevel = level
		rec.IsSensitive = true
		_, err := f.store.Update(ctx, rec)
		require.NoError(t, err)
	}

	report, err := f.sched.MergeSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Merged)
	assert.Zero(t, report.SoftDeleted)

	live, err := f.store.QueryByUser(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, live, 3)
	for _, rec := range live {
		assert.False(t, rec.IsDeleted)
		assert.Equal(t, memory.TierFull, rec.Tier)
	}
}

func TestMergeSweepIgnoresSmallClusters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, semantic.NewLexical())
	f.seed(t, "a", memory.CategoryFact, "likes strong black coffee", time.Hour)
	f.seed(t, "b", memory.CategoryFact, "likes strong black coffee", time.Hour)

	report, err := f.sched.MergeSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Merged, "two records are below the batch minimum")
}

func TestCleanupSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, semantic.NewLexical())

	// Ancient throwaway content: weight under the floor, age past retention.
	f.seed(t, "ancient", memory.CategoryTemporary, "weather was cloudy", 10*365*24*time.Hour)
	// Old but protected by sensitivity.
	protected := f.seed(t, "protected", memory.CategoryTemporary, "medical detail", 10*365*24*time.Hour)
	protected.SensitivityLevel = 2
	_, err := f.store.Update(ctx, protected)
	require.NoError(t, err)
	// Soft-deleted long past the grace period.
	expired := f.seed(t, "expired", memory.CategoryFact, "gone", 10*365*24*time.Hour)
	expired.IsDeleted = true
	expired.DeletedAt = f.now.Add(-60 * 24 * time.Hour)
	_, err = f.store.Update(ctx, expired)
	require.NoError(t, err)

	report, err := f.sched.CleanupSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SoftDeleted)
	assert.Equal(t, 1, report.HardDeleted)

	ancient, err := f.store.Get(ctx, "ancient")
	require.NoError(t, err)
	assert.True(t, ancient.IsDeleted)

	got, err := f.store.Get(ctx, "protected")
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)

	_, err = f.store.Get(ctx, "expired")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepHonorsCancellation(t *testing.T) {
	f := newFixture(t, semantic.NewLexical())
	f.seed(t, "a", memory.CategoryFact, "some memory", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.sched.CompressionSweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.MergeInterval = 0
	assert.Error(t, cfg.Validate())
}
