package memory_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
)

func TestTierOrdering(t *testing.T) {
	ladder := []memory.Tier{
		memory.TierFull, memory.TierSummary, memory.TierTag,
		memory.TierTrace, memory.TierArchive,
	}
	for i, tier := range ladder {
		assert.Equal(t, i, tier.Rank())
		if i > 0 {
			assert.True(t, tier.MoreCompressedThan(ladder[i-1]))
			assert.Equal(t, tier, ladder[i-1].NextDown())
			assert.Equal(t, ladder[i-1], tier.NextUp())
		}
	}
	assert.Equal(t, memory.TierArchive, memory.TierArchive.NextDown(), "archive is the floor")
	assert.Equal(t, memory.TierFull, memory.TierFull.NextUp(), "full is the ceiling")
	assert.Equal(t, memory.TierArchive.Rank(), memory.Tier("bogus").Rank(), "unknown tiers rank as archive")
}

func TestContentModalities(t *testing.T) {
	c := memory.Content{Text: "hello", ImageURL: "img://1"}
	assert.ElementsMatch(t, []memory.Modality{memory.ModalityText, memory.ModalityImage}, c.Modalities())
	empty := memory.Content{}
	assert.Empty(t, empty.Modalities())
}

func TestMentionsWithinAndPrune(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &memory.Record{RecentMentions: []time.Time{
		now.Add(-80 * time.Hour),
		now.Add(-40 * time.Hour),
		now.Add(-1 * time.Hour),
		now,
	}}
	cutoff := now.Add(-72 * time.Hour)

	assert.Equal(t, 3, rec.MentionsWithin(cutoff))
	rec.PruneMentions(cutoff)
	assert.Len(t, rec.RecentMentions, 3)
	assert.Equal(t, now.Add(-40*time.Hour), rec.RecentMentions[0])
}

func TestAuditLogsAreBounded(t *testing.T) {
	rec := &memory.Record{}
	for i := 0; i < 60; i++ {
		rec.AppendWeightChange(memory.WeightChange{Reason: fmt.Sprintf("change %d", i)})
		rec.AppendCompression(memory.CompressionEvent{Reason: fmt.Sprintf("compress %d", i)})
	}
	assert.Len(t, rec.WeightChangeLog, 50)
	assert.Len(t, rec.CompressionHistory, 50)
	assert.Equal(t, "change 59", rec.WeightChangeLog[49].Reason, "newest entries are kept")
	assert.Equal(t, "change 10", rec.WeightChangeLog[0].Reason, "oldest entries fall off")
}

func TestCloneIsDeep(t *testing.T) {
	rec := &memory.Record{
		ID:   "r1",
		Tags: []string{"coffee"},
		Content: memory.Content{
			Text:       "likes coffee",
			Embeddings: map[string][]float64{"text": {0.1, 0.2}},
		},
		RecentMentions: []time.Time{time.Now()},
		Provenance:     memory.Provenance{SourceIDs: []string{"a"}},
		Extensions:     map[string]interface{}{"k": "v"},
	}

	cp := rec.Clone()
	cp.Tags[0] = "tea"
	cp.Content.Embeddings["text"][0] = 9.9
	cp.Provenance.SourceIDs[0] = "b"
	cp.Extensions["k"] = "w"

	assert.Equal(t, "coffee", rec.Tags[0])
	assert.Equal(t, 0.1, rec.Content.Embeddings["text"][0])
	assert.Equal(t, "a", rec.Provenance.SourceIDs[0])
	assert.Equal(t, "v", rec.Extensions["k"])
}
