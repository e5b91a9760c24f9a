package decision_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingxinonline/landoubao-mem0/pkg/decision"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/weighting"
)

func newEngines(t *testing.T) (*weighting.Engine, *decision.Engine) {
	t.Helper()
	w, err := weighting.NewEngine(weighting.DefaultParams())
	require.NoError(t, err)
	d, err := decision.NewEngine(w, decision.DefaultThresholds())
	require.NoError(t, err)
	return w, d
}

func record(id string, cat memory.Category, createdAt time.Time, w *weighting.Engine) *memory.Record {
	return &memory.Record{
		ID:              id,
		OwnerUser:       "alice",
		Content:         memory.Content{Text: "likes black coffee"},
		Tier:            memory.TierFull,
		Category:        cat,
		CreatedAt:       createdAt,
		LastActivatedAt: createdAt,
		Weight:          w.InitialWeight(cat),
	}
}

func TestDecideColdStart(t *testing.T) {
	_, d := newEngines(t)
	got := d.Decide(memory.TriggerUserMention, nil, 0, time.Now())
	assert.Equal(t, decision.ActionCreate, got.Action)
}

func TestDecideMentionBands(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	old := record("rec-1", memory.CategoryFact, now.Add(-24*time.Hour), w)

	cases := []struct {
		similarity float64
		want       decision.Action
	}{
		{0.95, decision.ActionMerge},
		{0.85, decision.ActionMerge},
		{0.84, decision.ActionKeepBoth},
		{0.60, decision.ActionKeepBoth},
		{0.59, decision.ActionCreate},
		{0.0, decision.ActionCreate},
	}
	for _, tc := range cases {
		got := d.Decide(memory.TriggerUserMention, old, tc.similarity, now)
		assert.Equal(t, tc.want, got.Action, "similarity %.2f", tc.similarity)
	}
}

func TestDecideOutOfRangeSimilarityCreates(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	old := record("rec-1", memory.CategoryFact, now.Add(-time.Hour), w)

	for _, s := range []float64{-0.5, 1.5} {
		got := d.Decide(memory.TriggerUserMention, old, s, now)
		assert.Equal(t, decision.ActionCreate, got.Action)
	}
}

func TestDecideFrequentReinforce(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	old := record("rec-1", memory.CategoryFact, now.Add(-48*time.Hour), w)
	old.RecentMentions = []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Hour)}

	got := d.Decide(memory.TriggerUserMention, old, 0.9, now)
	assert.Equal(t, decision.ActionReinforce, got.Action)

	// Mentions outside the 24h window do not count.
	old.RecentMentions = []time.Time{now.Add(-30 * time.Hour), now.Add(-28 * time.Hour)}
	got = d.Decide(memory.TriggerUserMention, old, 0.9, now)
	assert.Equal(t, decision.ActionMerge, got.Action)
}

func TestDecideNegation(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	old := record("rec-1", memory.CategoryShortPreference, now.Add(-time.Hour), w)

	got := d.Decide(memory.TriggerUserNegation, old, 0.8, now)
	assert.Equal(t, decision.ActionNegate, got.Action)

	got = d.Decide(memory.TriggerUserNegation, old, 0.5, now)
	assert.Equal(t, decision.ActionCreate, got.Action)
}

func TestApplyMergePromotesAndBoosts(t *testing.T) {
	w, d := newEngines(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := record("rec-1", memory.CategoryFact, created, w)
	rec.Tier = memory.TierTag
	rec.Weight = 0.45

	now := created.Add(10 * 24 * time.Hour)
	d.ApplyMerge(rec, memory.Content{Text: "drinks coffee every morning"}, 0.92, now)

	assert.Equal(t, memory.TierSummary, rec.Tier, "promotes exactly one step")
	assert.Equal(t, now, rec.LastActivatedAt)
	assert.Equal(t, now, rec.LastMentionedAt)
	assert.Equal(t, 1, rec.MentionCount)
	assert.InDelta(t, 0.45+0.6*(1-0.45), rec.Weight, 1e-9)
	assert.Contains(t, rec.Content.Text, "drinks coffee every morning")
	require.Len(t, rec.WeightChangeLog, 1)
	assert.InDelta(t, 0.45, rec.WeightChangeLog[0].OldWeight, 1e-9)
}

func TestApplyMergeNeverPromotesAboveFull(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	rec := record("rec-1", memory.CategoryFact, now.Add(-time.Hour), w)

	d.ApplyMerge(rec, memory.Content{Text: "still true"}, 0.9, now)
	assert.Equal(t, memory.TierFull, rec.Tier)
}

func TestApplyReinforceStaysUnderMomentumCap(t *testing.T) {
	w, d := newEngines(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := record("rec-1", memory.CategoryFact, now.Add(-time.Hour), w)

	for i := 0; i < 20; i++ {
		at := now.Add(time.Duration(i) * time.Minute)
		d.ApplyReinforce(rec, memory.Content{}, 0.95, at)
	}

	// Repeated short-interval mentions cannot inflate the weight past the
	// momentum-capped formula value.
	cap := w.Compute(rec, now.Add(20*time.Minute)).Total
	assert.InDelta(t, cap, rec.Weight, 0.01)
	assert.LessOrEqual(t, rec.Weight, 1.1*1.3*1.5+0.01)
	assert.Equal(t, 20, rec.MentionCount)
	assert.Equal(t, 20, rec.ReinforceCount)
}

func TestApplyNegation(t *testing.T) {
	w, d := newEngines(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := record("rec-1", memory.CategoryShortPreference, created, w)
	before := rec.Weight

	now := created.Add(5 * 24 * time.Hour)
	d.ApplyNegation(rec, "does not like coffee anymore", "rec-2", 0.88, now)

	assert.True(t, rec.IsNegated)
	assert.Equal(t, now, rec.NegatedAt)
	assert.InDelta(t, 0.3*before, rec.Weight, 1e-9)
	assert.Equal(t, created, rec.LastActivatedAt, "negation never refreshes the old record")
	require.Len(t, rec.CorrectionHistory, 1)
	assert.Equal(t, "rec-2", rec.CorrectionHistory[0].NewRecordID)
	assert.Contains(t, rec.Provenance.ChildrenIDs, "rec-2")
}

func TestNewCorrectionRecord(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	old := record("rec-1", memory.CategoryShortPreference, now.Add(-time.Hour), w)

	rec := d.NewCorrectionRecord("rec-2", old, memory.Content{Text: "prefers tea now"}, now)
	assert.Equal(t, memory.TierFull, rec.Tier)
	assert.Equal(t, "rec-1", rec.Provenance.ParentID)
	assert.InDelta(t, w.InitialWeight(memory.CategoryShortPreference), rec.Weight, 1e-9)
}

func TestBuildBatchSummary(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	var cluster []*memory.Record
	for i := 0; i < 3; i++ {
		rec := record(string(rune('a'+i)), memory.CategoryStablePreference, now.Add(-time.Hour), w)
		rec.MentionCount = i + 1
		cluster = append(cluster, rec)
	}

	merged := d.BuildBatchSummary("merged-1", "likes coffee", cluster, now)
	assert.Equal(t, memory.TierSummary, merged.Tier)
	assert.Equal(t, []string{"a", "b", "c"}, merged.Provenance.MergedFrom)
	assert.Equal(t, 6, merged.MentionCount)
	assert.InDelta(t, w.InitialWeight(memory.CategoryStablePreference), merged.Weight, 1e-9)
}

func TestDecidePassive(t *testing.T) {
	w, d := newEngines(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("compress one step when weight calls for a lower tier", func(t *testing.T) {
		rec := record("rec-1", memory.CategoryTemporary, created, w)
		// Temporary content after two years sits far below the FULL floor.
		got := d.DecidePassive(rec, created.Add(2*365*24*time.Hour))
		assert.Equal(t, decision.ActionCompress, got.Action)
		assert.Equal(t, memory.TierSummary, got.TargetTier)
	})

	t.Run("fresh record stays put", func(t *testing.T) {
		rec := record("rec-2", memory.CategoryIdentity, created, w)
		got := d.DecidePassive(rec, created.Add(time.Hour))
		assert.Equal(t, decision.ActionNone, got.Action)
	})

	t.Run("frozen records are never touched", func(t *testing.T) {
		rec := record("rec-3", memory.CategoryTemporary, created, w)
		rec.IsFrozen = true
		got := d.DecidePassive(rec, created.Add(10*365*24*time.Hour))
		assert.Equal(t, decision.ActionNone, got.Action)
	})

	t.Run("sensitivity 2 never drops below summary", func(t *testing.T) {
		rec := record("rec-4", memory.CategoryTemporary, created, w)
		rec.Tier = memory.TierSummary
		rec.SensitivityLevel = 2
		got := d.DecidePassive(rec, created.Add(10*365*24*time.Hour))
		assert.Equal(t, decision.ActionNone, got.Action)
	})
}

func TestTargetTier(t *testing.T) {
	_, d := newEngines(t)
	cases := []struct {
		weight float64
		want   memory.Tier
	}{
		{1.2, memory.TierFull},
		{0.71, memory.TierFull},
		{0.5, memory.TierSummary},
		{0.2, memory.TierTag},
		{0.07, memory.TierTrace},
		{0.05, memory.TierArchive},
		{0.01, memory.TierArchive},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, d.TargetTier(tc.weight), "weight %.2f", tc.weight)
	}
}

func TestClusters(t *testing.T) {
	w, d := newEngines(t)
	now := time.Now()
	recs := []*memory.Record{
		record("c", memory.CategoryFact, now, w),
		record("a", memory.CategoryFact, now, w),
		record("b", memory.CategoryFact, now, w),
		record("d", memory.CategoryFact, now, w),
	}
	recs[3].Content.Text = "something completely different"

	sim := func(a, b *memory.Record) (float64, error) {
		if a.Content.Text == b.Content.Text {
			return 1.0, nil
		}
		return 0.1, nil
	}

	clusters := d.Clusters(recs, sim)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0], 3)
	assert.Equal(t, "a", clusters[0][0].ID, "clusters are formed in ID order")
}

func TestThresholdsValidate(t *testing.T) {
	th := decision.DefaultThresholds()
	assert.NoError(t, th.Validate())

	th.Related = 0.9
	assert.Error(t, th.Validate())

	th = decision.DefaultThresholds()
	th.TierTagFloor = 0.5
	assert.Error(t, th.Validate())
}
