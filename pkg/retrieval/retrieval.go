// Package retrieval implements the three-stage recall pipeline: a tier
// filter driven by the query mode, a coarse semantic filter bounding the
// candidate set, and a rerank combining semantic and recency signals with
// behavioral boosts.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/semantic"
)

// Params holds the tunables of the recall pipeline.
type Params struct {
	// Rerank mix: relevance = Alpha*semantic + Beta*recency + Gamma*weight.
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	// LambdaRecency controls recency decay per day since last activation.
	LambdaRecency float64 `json:"lambdaRecency"`

	// NormalWeightFloor hides low-weight records from conversational
	// answers. Applies to NORMAL mode only.
	NormalWeightFloor float64 `json:"normalWeightFloor"`

	// Coarse similarity floors per mode.
	NormalSimFloor float64 `json:"normalSimFloor"`
	ReviewSimFloor float64 `json:"reviewSimFloor"`
	DebugSimFloor  float64 `json:"debugSimFloor"`

	// Behavioral boosts.
	MentionBoostAbove   int     `json:"mentionBoostAbove"`
	ReinforceBoostAbove int     `json:"reinforceBoostAbove"`
	BehaviorBoost       float64 `json:"behaviorBoost"`
	CategoryBoost       float64 `json:"categoryBoost"`
}

// DefaultParams returns the standard pipeline tuning.
func DefaultParams() Params {
	return Params{
		Alpha:               0.7,
		Beta:                0.3,
		Gamma:               0.0,
		LambdaRecency:       0.01,
		NormalWeightFloor:   0.1,
		NormalSimFloor:      0.6,
		ReviewSimFloor:      0.3,
		DebugSimFloor:       0.0,
		MentionBoostAbove:   5,
		ReinforceBoostAbove: 3,
		BehaviorBoost:       0.1,
		CategoryBoost:       1.2,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Alpha < 0 || p.Beta < 0 || p.Gamma < 0 {
		return core.NewEngineError("retrieval.Params.Validate",
			fmt.Errorf("%w: rerank mix must be non-negative", core.ErrInvalidConfig))
	}
	if p.LambdaRecency < 0 {
		return core.NewEngineError("retrieval.Params.Validate",
			fmt.Errorf("%w: recency lambda must be non-negative", core.ErrInvalidConfig))
	}
	return nil
}

// Result is one ranked record with its scoring breakdown.
type Result struct {
	Record   *memory.Record
	Semantic float64
	Recency  float64
	Score    float64
}

// Retriever executes recall queries over candidate record sets.
type Retriever struct {
	params   Params
	provider semantic.SimilarityProvider
	logger   *logrus.Logger
}

// NewRetriever builds a retriever. provider must not be nil.
func NewRetriever(params Params, provider semantic.SimilarityProvider, logger *logrus.Logger) (*Retriever, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, core.NewEngineError("NewRetriever",
			fmt.Errorf("%w: nil similarity provider", core.ErrInvalidConfig))
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Retriever{params: params, provider: provider, logger: logger}, nil
}

// Retrieve ranks candidates against the query and returns the top k. The
// mode governs which tiers are visible: NORMAL sees FULL and SUMMARY only
// and never surfaces sub-floor weights; REVIEW sees every live tier; DEBUG
// additionally sees soft-deleted records.
func (r *Retriever) Retrieve(ctx context.Context, query string, candidates []*memory.Record, mode memory.QueryMode, k int, now time.Time) ([]Result, error) {
	if k <= 0 {
		return nil, core.NewEngineError("Retrieve",
			fmt.Errorf("%w: k must be positive, got %d", core.ErrInvalidInput, k))
	}

	visible := r.tierFilter(candidates, mode)

	scored, err := r.coarseFilter(ctx, query, visible, mode, k)
	if err != nil {
		return nil, err
	}

	r.rerank(scored, now)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (r *Retriever) tierFilter(candidates []*memory.Record, mode memory.QueryMode) []*memory.Record {
	out := make([]*memory.Record, 0, len(candidates))
	for _, rec := range candidates {
		switch mode {
		case memory.ModeNormal:
			if rec.IsDeleted {
				continue
			}
			if rec.Tier != memory.TierFull && rec.Tier != memory.TierSummary {
				continue
			}
			if rec.Weight < r.params.NormalWeightFloor {
				continue
			}
		case memory.ModeReview:
			if rec.IsDeleted {
				continue
			}
		case memory.ModeDebug:
			// everything
		default:
			continue
		}
		out = append(out, rec)
	}
	return out
}

// coarseFilter scores every visible candidate against the query, drops
// those under the mode's similarity floor and keeps the best 2k. A failing
// similarity call scores the candidate 0 and is logged, never surfaced.
func (r *Retriever) coarseFilter(ctx context.Context, query string, candidates []*memory.Record, mode memory.QueryMode, k int) ([]Result, error) {
	floor := r.simFloor(mode)
	out := make([]Result, 0, len(candidates))
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := r.provider.Similarity(ctx, query, rec.Content.Text)
		if err != nil {
			r.logger.WithError(err).WithField("record_id", rec.ID).
				Warn("similarity scoring failed, treating as 0")
			score = 0
		}
		if score < 0 || score > 1 {
			r.logger.WithFields(logrus.Fields{"record_id": rec.ID, "score": score}).
				Warn("similarity score out of range, treating as 0")
			score = 0
		}
		if score < floor {
			continue
		}
		out = append(out, Result{Record: rec, Semantic: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Semantic != out[j].Semantic {
			return out[i].Semantic > out[j].Semantic
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if limit := 2 * k; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Retriever) rerank(results []Result, now time.Time) {
	for i := range results {
		rec := results[i].Record
		days := now.Sub(rec.LastActivatedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		recency := math.Exp(-r.params.LambdaRecency * days)

		score := r.params.Alpha*results[i].Semantic +
			r.params.Beta*recency +
			r.params.Gamma*rec.Weight

		if rec.MentionCount > r.params.MentionBoostAbove {
			score += r.params.BehaviorBoost
		}
		if rec.ReinforceCount > r.params.ReinforceBoostAbove {
			score += r.params.BehaviorBoost
		}
		if rec.Category == memory.CategoryIdentity || rec.Category == memory.CategoryStablePreference {
			score *= r.params.CategoryBoost
		}

		results[i].Recency = recency
		results[i].Score = score
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

func (r *Retriever) simFloor(mode memory.QueryMode) float64 {
	switch mode {
	case memory.ModeReview:
		return r.params.ReviewSimFloor
	case memory.ModeDebug:
		return r.params.DebugSimFloor
	default:
		return r.params.NormalSimFloor
	}
}
