// Package decision implements the update decision engine.
//
// Given a trigger (passive tick, user mention, negation, cross-modal
// update), the best-matching existing record and an externally supplied
// similarity score, it selects exactly one action and provides the
// metadata mutations that follow from it. The weighting rules live in
// pkg/weighting; this package only decides and applies.
package decision

import (
	"fmt"
	"sort"
	"time"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/weighting"
)

// Action identifies the single outcome of a decision.
type Action string

const (
	// ActionCreate creates a new FULL record; any existing record is untouched.
	ActionCreate Action = "create"

	// ActionKeepBoth creates a new FULL record alongside a moderately
	// similar existing one, linking them for review.
	ActionKeepBoth Action = "keep_both"

	// ActionMerge folds the new content into the existing record,
	// refreshing its timestamps and boosting its weight.
	ActionMerge Action = "merge"

	// ActionReinforce is a merge under frequent repetition. The boost is
	// bounded by the momentum cap instead of the full mention boost.
	ActionReinforce Action = "reinforce"

	// ActionNegate flags the existing record as contradicted and calls
	// for a replacement FULL record carrying the corrected statement.
	ActionNegate Action = "negate"

	// ActionCompress demotes the record one tier toward higher compression.
	ActionCompress Action = "compress"

	// ActionSoftDelete retires a record whose weight fell under the
	// cleanup floor.
	ActionSoftDelete Action = "soft_delete"

	// ActionNone leaves the record as it is.
	ActionNone Action = "none"
)

// Thresholds holds the tunable boundaries of the decision table.
type Thresholds struct {
	// Merge is the similarity at or above which new content is folded
	// into the existing record.
	Merge float64 `json:"merge"`

	// Related is the similarity at or above which (and below Merge) both
	// records are kept.
	Related float64 `json:"related"`

	// Negation is the similarity a contradicting statement must reach to
	// negate an existing record.
	Negation float64 `json:"negation"`

	// MergeBoost is the factor applied on merge: w' = w + boost*(1-w).
	MergeBoost float64 `json:"mergeBoost"`

	// FrequentMentions is how many mentions within FrequentWindow switch
	// a merge into a capped reinforce.
	FrequentMentions int           `json:"frequentMentions"`
	FrequentWindow   time.Duration `json:"frequentWindow"`

	// BatchMin is the smallest cluster size eligible for a batch merge.
	BatchMin int `json:"batchMin"`

	// CleanupFloor is the weight below which an unprotected record is
	// soft-deleted by the passive path.
	CleanupFloor float64 `json:"cleanupFloor"`

	// Tier floors: a record's target tier is the least compressed tier
	// whose floor its weight still clears.
	TierFullFloor    float64 `json:"tierFullFloor"`
	TierSummaryFloor float64 `json:"tierSummaryFloor"`
	TierTagFloor     float64 `json:"tierTagFloor"`
	TierTraceFloor   float64 `json:"tierTraceFloor"`
}

// DefaultThresholds returns the standard decision table boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Merge:            0.85,
		Related:          0.60,
		Negation:         0.70,
		MergeBoost:       0.6,
		FrequentMentions: 3,
		FrequentWindow:   24 * time.Hour,
		BatchMin:         3,
		CleanupFloor:     0.05,
		TierFullFloor:    0.7,
		TierSummaryFloor: 0.3,
		TierTagFloor:     0.1,
		TierTraceFloor:   0.05,
	}
}

// Validate checks the thresholds for internal consistency.
func (t *Thresholds) Validate() error {
	if t.Merge <= t.Related {
		return core.NewEngineError("Thresholds.Validate",
			fmt.Errorf("%w: merge threshold %.2f must exceed related threshold %.2f",
				core.ErrInvalidConfig, t.Merge, t.Related))
	}
	for name, v := range map[string]float64{
		"merge": t.Merge, "related": t.Related, "negation": t.Negation,
	} {
		if v <= 0 || v > 1 {
			return core.NewEngineError("Thresholds.Validate",
				fmt.Errorf("%w: %s threshold %.2f outside (0, 1]", core.ErrInvalidConfig, name, v))
		}
	}
	if t.MergeBoost < 0 || t.MergeBoost > 1 {
		return core.NewEngineError("Thresholds.Validate",
			fmt.Errorf("%w: merge boost %.2f outside [0, 1]", core.ErrInvalidConfig, t.MergeBoost))
	}
	if t.FrequentMentions < 2 {
		return core.NewEngineError("Thresholds.Validate",
			fmt.Errorf("%w: frequent mention count %d below 2", core.ErrInvalidConfig, t.FrequentMentions))
	}
	if t.BatchMin < 2 {
		return core.NewEngineError("Thresholds.Validate",
			fmt.Errorf("%w: batch minimum %d below 2", core.ErrInvalidConfig, t.BatchMin))
	}
	if !(t.TierFullFloor > t.TierSummaryFloor &&
		t.TierSummaryFloor > t.TierTagFloor &&
		t.TierTagFloor > t.TierTraceFloor && t.TierTraceFloor > 0) {
		return core.NewEngineError("Thresholds.Validate",
			fmt.Errorf("%w: tier floors must strictly decrease", core.ErrInvalidConfig))
	}
	return nil
}

// Decision is the outcome of one call into the decision table.
type Decision struct {
	Action     Action
	Similarity float64

	// TargetTier is set for ActionCompress only.
	TargetTier memory.Tier

	// Reason summarizes which branch fired; it is copied into the weight
	// change log of any record the action mutates.
	Reason string
}

// Engine evaluates triggers against the decision table.
type Engine struct {
	weights *weighting.Engine
	th      Thresholds
}

// NewEngine builds a decision engine on top of a weighting engine.
func NewEngine(weights *weighting.Engine, th Thresholds) (*Engine, error) {
	if weights == nil {
		return nil, core.NewEngineError("decision.NewEngine",
			fmt.Errorf("%w: nil weighting engine", core.ErrInvalidConfig))
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: weights, th: th}, nil
}

// Thresholds returns a copy of the configured boundaries.
func (e *Engine) Thresholds() Thresholds { return e.th }

// Decide runs the active part of the decision table for a new piece of
// content against the best-matching existing record. old may be nil on a
// cold start. Exactly one branch fires.
func (e *Engine) Decide(trigger memory.Trigger, old *memory.Record, similarity float64, now time.Time) Decision {
	if similarity < 0 || similarity > 1 {
		// Out-of-range scores are treated as no match.
		similarity = 0
	}
	if old == nil {
		return Decision{Action: ActionCreate, Similarity: similarity, Reason: "cold start"}
	}

	switch trigger {
	case memory.TriggerUserNegation:
		if similarity >= e.th.Negation {
			return Decision{Action: ActionNegate, Similarity: similarity, Reason: "contradicting statement"}
		}
		return Decision{Action: ActionCreate, Similarity: similarity, Reason: "negation without a matching memory"}

	case memory.TriggerUserMention, memory.TriggerCrossModalUpdate:
		if similarity >= e.th.Merge {
			cutoff := now.Add(-e.th.FrequentWindow)
			// The incoming mention counts toward the window.
			if old.MentionsWithin(cutoff)+1 >= e.th.FrequentMentions {
				return Decision{Action: ActionReinforce, Similarity: similarity, Reason: "frequent reinforcement"}
			}
			return Decision{Action: ActionMerge, Similarity: similarity, Reason: "high similarity merge"}
		}
		if similarity >= e.th.Related {
			return Decision{Action: ActionKeepBoth, Similarity: similarity, Reason: "related but distinct"}
		}
		return Decision{Action: ActionCreate, Similarity: similarity, Reason: "unrelated content"}
	}

	return Decision{Action: ActionNone, Similarity: similarity, Reason: "no rule for trigger " + string(trigger)}
}

// DecidePassive runs the passive-decay rows of the table for one record:
// soft-delete under the cleanup floor, otherwise compress one step toward
// the tier its current weight calls for. Protected records are left alone.
func (e *Engine) DecidePassive(rec *memory.Record, now time.Time) Decision {
	if rec.IsDeleted || rec.IsFrozen || rec.SensitivityLevel >= 3 {
		return Decision{Action: ActionNone, Reason: "protected"}
	}

	weight := e.weights.Compute(rec, now).Total
	if weight < e.th.CleanupFloor && rec.SensitivityLevel < 2 {
		return Decision{Action: ActionSoftDelete, Reason: fmt.Sprintf("weight %.4f under cleanup floor", weight)}
	}

	target := e.TargetTier(weight)
	if floor := sensitivityFloor(rec.SensitivityLevel); target.MoreCompressedThan(floor) {
		target = floor
	}
	if target.MoreCompressedThan(rec.Tier) {
		// One step per sweep; the next tick takes the next step.
		return Decision{
			Action:     ActionCompress,
			TargetTier: rec.Tier.NextDown(),
			Reason:     fmt.Sprintf("weight %.4f calls for tier %s", weight, target),
		}
	}
	return Decision{Action: ActionNone, Reason: "tier current"}
}

// TargetTier maps a weight to the tier it belongs in.
func (e *Engine) TargetTier(weight float64) memory.Tier {
	switch {
	case weight > e.th.TierFullFloor:
		return memory.TierFull
	case weight > e.th.TierSummaryFloor:
		return memory.TierSummary
	case weight > e.th.TierTagFloor:
		return memory.TierTag
	case weight > e.th.TierTraceFloor:
		return memory.TierTrace
	default:
		return memory.TierArchive
	}
}

// sensitivityFloor is the most compressed tier a record of the given
// sensitivity level may be demoted to.
func sensitivityFloor(level int) memory.Tier {
	switch {
	case level >= 2:
		return memory.TierSummary
	case level == 1:
		return memory.TierTag
	default:
		return memory.TierArchive
	}
}

// Clusters partitions records into groups whose members are pairwise
// similar at or above the merge threshold. Records are visited in ID order
// so repeated sweeps form the same clusters. Only groups of at least
// BatchMin records are returned; sim errors exclude the pair.
func (e *Engine) Clusters(recs []*memory.Record, sim func(a, b *memory.Record) (float64, error)) [][]*memory.Record {
	sorted := make([]*memory.Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	used := make(map[string]bool, len(sorted))
	var clusters [][]*memory.Record
	for i, seed := range sorted {
		if used[seed.ID] {
			continue
		}
		cluster := []*memory.Record{seed}
		for _, cand := range sorted[i+1:] {
			if used[cand.ID] {
				continue
			}
			ok := true
			for _, member := range cluster {
				score, err := sim(member, cand)
				if err != nil || score < e.th.Merge {
					ok = false
					break
				}
			}
			if ok {
				cluster = append(cluster, cand)
			}
		}
		if len(cluster) >= e.th.BatchMin {
			for _, m := range cluster {
				used[m.ID] = true
			}
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}
