package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
)

// NewRecord builds a fresh FULL-tier record with its importance-scaled
// initial weight. Time, semantic, conflict and momentum factors all start
// neutral.
func (e *Engine) NewRecord(id, userID, deviceID string, content memory.Content, cat memory.Category, now time.Time) *memory.Record {
	rec := &memory.Record{
		ID:              id,
		OwnerUser:       userID,
		OwnerDevice:     deviceID,
		Content:         content,
		Tier:            memory.TierFull,
		Category:        cat,
		CreatedAt:       now,
		LastActivatedAt: now,
		Weight:          e.weights.InitialWeight(cat),
	}
	rec.Factors = e.weights.Compute(rec, now)
	rec.AppendWeightChange(memory.WeightChange{
		Timestamp: now,
		Trigger:   memory.TriggerUserMention,
		Reason:    "created",
		NewWeight: rec.Weight,
		Breakdown: rec.Factors,
	})
	return rec
}

// ApplyMerge folds new content into the existing record: the content is
// combined, both activity timestamps move to now, the tier may climb one
// step, and the weight receives the mention boost w' = w + boost*(1-w).
func (e *Engine) ApplyMerge(rec *memory.Record, content memory.Content, similarity float64, now time.Time) {
	before := rec.Weight

	mergeContent(&rec.Content, content)
	rec.LastActivatedAt = now
	rec.LastMentionedAt = now
	rec.MentionCount++
	rec.RecentMentions = append(rec.RecentMentions, now)
	rec.PruneMentions(now.Add(-e.weights.Params().MomentumWindow))

	if rec.Tier != memory.TierFull {
		rec.Tier = rec.Tier.NextUp()
	}

	rec.Weight = e.weights.Reinforce(rec.Weight, e.th.MergeBoost)
	breakdown := e.weights.Compute(rec, now)
	breakdown.Total = rec.Weight
	rec.Factors = breakdown

	rec.AppendWeightChange(memory.WeightChange{
		Timestamp: now,
		Trigger:   memory.TriggerUserMention,
		Reason:    fmt.Sprintf("merged at similarity %.2f", similarity),
		OldWeight: before,
		NewWeight: rec.Weight,
		Breakdown: rec.Factors,
	})
}

// ApplyReinforce handles a mention arriving inside the frequent-repetition
// window. Counters and timestamps refresh as for a merge, but the weight is
// recomputed through the momentum-capped formula instead of receiving the
// full mention boost, so rapid repeats cannot inflate it without bound.
func (e *Engine) ApplyReinforce(rec *memory.Record, content memory.Content, similarity float64, now time.Time) {
	before := rec.Weight

	mergeContent(&rec.Content, content)
	rec.LastActivatedAt = now
	rec.LastMentionedAt = now
	rec.MentionCount++
	rec.ReinforceCount++
	rec.RecentMentions = append(rec.RecentMentions, now)
	rec.PruneMentions(now.Add(-e.weights.Params().MomentumWindow))

	rec.Factors = e.weights.Compute(rec, now)
	rec.Weight = rec.Factors.Total

	rec.AppendWeightChange(memory.WeightChange{
		Timestamp: now,
		Trigger:   memory.TriggerUserMention,
		Reason:    fmt.Sprintf("frequent reinforcement at similarity %.2f", similarity),
		OldWeight: before,
		NewWeight: rec.Weight,
		Breakdown: rec.Factors,
	})
}

// ApplyNegation marks the existing record as contradicted. Its weight drops
// by the conflict floor immediately, a correction entry points at the
// replacement record, and its activity timestamps are left untouched so the
// negated memory keeps decaying from its old position.
func (e *Engine) ApplyNegation(rec *memory.Record, statement, newRecordID string, similarity float64, now time.Time) {
	before := rec.Weight

	rec.IsNegated = true
	rec.NegatedAt = now
	rec.CorrectionHistory = append(rec.CorrectionHistory, memory.Correction{
		Timestamp:   now,
		NewRecordID: newRecordID,
		Statement:   statement,
		Similarity:  similarity,
	})
	rec.Provenance.ChildrenIDs = append(rec.Provenance.ChildrenIDs, newRecordID)

	rec.Weight = e.weights.Params().CMin * rec.Weight
	if min := e.weights.Params().WeightMin; rec.Weight < min {
		rec.Weight = min
	}
	breakdown := e.weights.Compute(rec, now)
	breakdown.Total = rec.Weight
	rec.Factors = breakdown

	rec.AppendWeightChange(memory.WeightChange{
		Timestamp: now,
		Trigger:   memory.TriggerUserNegation,
		Reason:    fmt.Sprintf("negated at similarity %.2f", similarity),
		OldWeight: before,
		NewWeight: rec.Weight,
		Breakdown: rec.Factors,
	})
}

// NewCorrectionRecord builds the FULL-tier replacement created alongside a
// negation, linked back to the record it supersedes.
func (e *Engine) NewCorrectionRecord(id string, negated *memory.Record, content memory.Content, now time.Time) *memory.Record {
	rec := e.NewRecord(id, negated.OwnerUser, negated.OwnerDevice, content, negated.Category, now)
	rec.Provenance.ParentID = negated.ID
	return rec
}

// BuildBatchSummary constructs the SUMMARY record replacing a merged
// cluster. Mention counts are summed, provenance references every original,
// and the weight is the average of the members' importance-scaled initial
// weights.
func (e *Engine) BuildBatchSummary(id, summary string, cluster []*memory.Record, now time.Time) *memory.Record {
	first := cluster[0]
	rec := &memory.Record{
		ID:              id,
		OwnerUser:       first.OwnerUser,
		OwnerDevice:     first.OwnerDevice,
		Content:         memory.Content{Text: summary},
		Tier:            memory.TierSummary,
		Category:        first.Category,
		CreatedAt:       now,
		LastActivatedAt: now,
	}

	var weightSum float64
	for _, m := range cluster {
		rec.Provenance.MergedFrom = append(rec.Provenance.MergedFrom, m.ID)
		rec.MentionCount += m.MentionCount
		rec.ReinforceCount += m.ReinforceCount
		weightSum += e.weights.InitialWeight(m.Category)
	}
	rec.Weight = weightSum / float64(len(cluster))
	rec.Factors = e.weights.Compute(rec, now)
	rec.Factors.Total = rec.Weight

	rec.AppendWeightChange(memory.WeightChange{
		Timestamp: now,
		Trigger:   memory.TriggerPassiveDecay,
		Reason:    fmt.Sprintf("batch merge of %d records", len(cluster)),
		NewWeight: rec.Weight,
		Breakdown: rec.Factors,
	})
	return rec
}

// mergeContent folds the incoming payload into the existing one. Text is
// appended when it adds anything new; modality references fill empty slots
// but never overwrite existing ones.
func mergeContent(dst *memory.Content, src memory.Content) {
	if src.Text != "" && !strings.Contains(dst.Text, src.Text) {
		if dst.Text == "" {
			dst.Text = src.Text
		} else {
			dst.Text = dst.Text + "; " + src.Text
		}
	}
	if dst.ImageURL == "" {
		dst.ImageURL = src.ImageURL
	}
	if dst.AudioURL == "" {
		dst.AudioURL = src.AudioURL
	}
	if dst.VideoURL == "" {
		dst.VideoURL = src.VideoURL
	}
	for modality, emb := range src.Embeddings {
		if dst.Embeddings == nil {
			dst.Embeddings = make(map[string][]float64)
		}
		if _, ok := dst.Embeddings[modality]; !ok {
			dst.Embeddings[modality] = emb
		}
	}
}
