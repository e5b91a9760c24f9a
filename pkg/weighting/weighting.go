// Package weighting implements the multi-factor memory weight computation
//
//	W(t) = wTime(t) × S(t) × C(t) × I × U × M(t)
//
// clamped to a fixed range. The engine is stateless: given a record and a
// point in time it returns the factor breakdown, and optionally records the
// recomputation in the record's audit log.
package weighting

import (
	"fmt"
	"math"
	"time"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
)

// Params contains the tunable constants of the weighting formula.
type Params struct {
	// AlphaBase is the base decay coefficient of wTime(t).
	AlphaBase float64 `json:"alpha_base"`

	// UserFactor is the per-user forgetting-speed scalar U in [0.7, 1.5];
	// below 1 forgets slowly, above 1 forgets fast.
	UserFactor float64 `json:"user_factor"`

	// SMax and LambdaS shape the semantic boost
	// S(t) = 1 + SMax × exp(-LambdaS × daysSinceMention).
	SMax    float64 `json:"s_max"`
	LambdaS float64 `json:"lambda_s"`

	// CMin and LambdaC shape the conflict penalty
	// C(t) = CMin + (1-CMin) × exp(-LambdaC × daysSinceNegation).
	CMin    float64 `json:"c_min"`
	LambdaC float64 `json:"lambda_c"`

	// MomentumCoef and LambdaM shape the momentum dampener
	// M(t) = 1 + MomentumCoef × (1 - exp(-LambdaM × n)); the factor
	// saturates at 1+MomentumCoef regardless of mention count.
	MomentumCoef float64 `json:"momentum_coef"`
	LambdaM      float64 `json:"lambda_m"`

	// MomentumWindow is the trailing window over which mentions count
	// toward M(t).
	MomentumWindow time.Duration `json:"momentum_window"`

	// Importance maps each category to its constant I. The same constant
	// scales the decay coefficient, so important categories both weigh more
	// and are the ones whose raw time factor erodes fastest relative to
	// that higher ceiling.
	Importance map[memory.Category]float64 `json:"importance"`

	// WeightMin and WeightMax clamp the total.
	WeightMin float64 `json:"weight_min"`
	WeightMax float64 `json:"weight_max"`
}

// DefaultParams returns the engine defaults.
func DefaultParams() Params {
	return Params{
		AlphaBase:      0.01,
		UserFactor:     1.0,
		SMax:           0.5,
		LambdaS:        0.05,
		CMin:           0.3,
		LambdaC:        0.01,
		MomentumCoef:   0.3,
		LambdaM:        0.5,
		MomentumWindow: 72 * time.Hour,
		Importance: map[memory.Category]float64{
			memory.CategoryIdentity:         1.5,
			memory.CategoryStablePreference: 1.3,
			memory.CategorySkill:            1.2,
			memory.CategoryFact:             1.1,
			memory.CategoryShortPreference:  1.0,
			memory.CategoryEvent:            0.9,
			memory.CategoryTemporary:        0.8,
		},
		WeightMin: 0.01,
		WeightMax: 2.0,
	}
}

// Validate checks the parameter set. Missing importance constants and
// degenerate bounds are configuration errors, fatal at startup.
func (p Params) Validate() error {
	if p.WeightMin <= 0 || p.WeightMax <= p.WeightMin {
		return fmt.Errorf("weighting: invalid clamp range [%v, %v]", p.WeightMin, p.WeightMax)
	}
	if p.AlphaBase <= 0 {
		return fmt.Errorf("weighting: alpha_base must be positive, got %v", p.AlphaBase)
	}
	if p.UserFactor < 0.7 || p.UserFactor > 1.5 {
		return fmt.Errorf("weighting: user_factor %v outside [0.7, 1.5]", p.UserFactor)
	}
	for _, cat := range memory.Categories() {
		if _, ok := p.Importance[cat]; !ok {
			return fmt.Errorf("weighting: missing importance constant for category %q", cat)
		}
	}
	return nil
}

// Engine computes memory weights. It is a pure function of its inputs and
// safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine creates a weighting engine with the given parameters.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params}, nil
}

// Params returns the engine's parameter set.
func (e *Engine) Params() Params {
	return e.params
}

// Importance returns the importance constant I for the category.
func (e *Engine) Importance(cat memory.Category) float64 {
	return e.params.Importance[cat]
}

// InitialWeight is the weight of a freshly created record: I × U with no
// time, semantic, conflict, or momentum discount yet.
func (e *Engine) InitialWeight(cat memory.Category) float64 {
	return e.clamp(e.Importance(cat) * e.params.UserFactor)
}

// TimeFactor computes wTime(t) = 1 / (1 + αEffective × Δt) where Δt is days
// since last activation and αEffective = αBase × U × I(category).
func (e *Engine) TimeFactor(rec *memory.Record, now time.Time) float64 {
	days := daysSince(rec.LastActivatedAt, now)
	alphaEffective := e.params.AlphaBase * e.params.UserFactor * e.Importance(rec.Category)
	return 1.0 / (1.0 + alphaEffective*days)
}

// SemanticBoost computes S(t). Records never actively mentioned get 1.
func (e *Engine) SemanticBoost(rec *memory.Record, now time.Time) float64 {
	if rec.LastMentionedAt.IsZero() {
		return 1.0
	}
	days := daysSince(rec.LastMentionedAt, now)
	return 1.0 + e.params.SMax*math.Exp(-e.params.LambdaS*days)
}

// ConflictFactor computes C(t). Records never negated get 1; negated records
// start at CMin and recover toward 1 over roughly 1/λc days.
func (e *Engine) ConflictFactor(rec *memory.Record, now time.Time) float64 {
	if !rec.IsNegated {
		return 1.0
	}
	if rec.NegatedAt.IsZero() {
		return e.params.CMin
	}
	days := daysSince(rec.NegatedAt, now)
	return 1.0 - (1.0-e.params.CMin)*math.Exp(-e.params.LambdaC*days)
}

// MomentumFactor computes M(t) from the count of mentions inside the
// trailing momentum window. Saturation prevents runaway weight inflation
// from repeated short-interval mentions.
func (e *Engine) MomentumFactor(rec *memory.Record, now time.Time) float64 {
	n := rec.MentionsWithin(now.Add(-e.params.MomentumWindow))
	return 1.0 + e.params.MomentumCoef*(1.0-math.Exp(-e.params.LambdaM*float64(n)))
}

// Compute evaluates the full formula and returns the factor breakdown.
// The record is not mutated.
func (e *Engine) Compute(rec *memory.Record, now time.Time) memory.WeightBreakdown {
	b := memory.WeightBreakdown{
		TimeFactor:     e.TimeFactor(rec, now),
		SemanticBoost:  e.SemanticBoost(rec, now),
		ConflictFactor: e.ConflictFactor(rec, now),
		Importance:     e.Importance(rec.Category),
		UserFactor:     e.params.UserFactor,
		MomentumFactor: e.MomentumFactor(rec, now),
	}
	b.Total = e.clamp(b.TimeFactor * b.SemanticBoost * b.ConflictFactor *
		b.Importance * b.UserFactor * b.MomentumFactor)
	return b
}

// Recompute evaluates the formula, stores the result on the record, and
// appends an audit entry with the triggering reason. Every recomputation
// goes through here so the weight-change log stays complete.
func (e *Engine) Recompute(rec *memory.Record, trigger memory.Trigger, reason string, now time.Time) memory.WeightBreakdown {
	old := rec.Weight
	b := e.Compute(rec, now)
	rec.Weight = b.Total
	rec.Factors = b
	rec.AppendWeightChange(memory.WeightChange{
		Timestamp: now,
		Trigger:   trigger,
		OldWeight: old,
		NewWeight: b.Total,
		Reason:    reason,
		Breakdown: b,
	})
	return b
}

// Reinforce pulls a weight toward the maximum on a high-similarity merge:
// w' = w + factor × (1 - w), clamped. Weights already above 1 keep their value.
func (e *Engine) Reinforce(weight, factor float64) float64 {
	if weight >= 1.0 {
		return e.clamp(weight)
	}
	return e.clamp(weight + factor*(1.0-weight))
}

func (e *Engine) clamp(w float64) float64 {
	return math.Max(e.params.WeightMin, math.Min(e.params.WeightMax, w))
}

func daysSince(t, now time.Time) float64 {
	d := now.Sub(t).Hours() / 24.0
	if d < 0 {
		return 0
	}
	return d
}
