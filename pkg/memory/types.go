// Package memory defines the data model shared by the weighting, decision,
// retrieval, and scheduling components: the MemoryRecord entity, its
// compression tiers and categories, update triggers, and query modes.
package memory

// Tier represents the compression level of a memory's stored representation.
//
// Passive decay only ever moves a record toward higher compression
// (FULL → SUMMARY → TAG → TRACE → ARCHIVE). Promotion back toward FULL
// happens only through an active-mention merge, one step per merge event.
type Tier string

const (
	// TierFull keeps the complete original content.
	TierFull Tier = "full"

	// TierSummary keeps a compressed summary of the content.
	TierSummary Tier = "summary"

	// TierTag keeps only a set of tags derived from the content.
	TierTag Tier = "tag"

	// TierTrace keeps a one-line trace that the memory once existed.
	TierTrace Tier = "trace"

	// TierArchive is the most compressed level; content is retained but
	// surfaced only in review or debug queries.
	TierArchive Tier = "archive"
)

// tierRank orders tiers from least to most compressed.
var tierRank = map[Tier]int{
	TierFull:    0,
	TierSummary: 1,
	TierTag:     2,
	TierTrace:   3,
	TierArchive: 4,
}

// Rank returns the compression rank of the tier (0 = FULL, 4 = ARCHIVE).
// Unknown tiers rank as ARCHIVE.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return tierRank[TierArchive]
}

// MoreCompressedThan reports whether t is at a higher compression rank than other.
func (t Tier) MoreCompressedThan(other Tier) bool {
	return t.Rank() > other.Rank()
}

// NextDown returns the tier one compression step below t.
// ARCHIVE stays at ARCHIVE.
func (t Tier) NextDown() Tier {
	switch t {
	case TierFull:
		return TierSummary
	case TierSummary:
		return TierTag
	case TierTag:
		return TierTrace
	default:
		return TierArchive
	}
}

// NextUp returns the tier one compression step above t.
// FULL stays at FULL.
func (t Tier) NextUp() Tier {
	switch t {
	case TierArchive:
		return TierTrace
	case TierTrace:
		return TierTag
	case TierTag:
		return TierSummary
	default:
		return TierFull
	}
}

// Category classifies a memory and determines both its importance constant
// and how quickly it decays. Set at creation, immutable afterwards.
type Category string

const (
	// CategoryIdentity covers who the user is (name, roles, relations).
	CategoryIdentity Category = "identity"

	// CategoryStablePreference covers long-lived tastes and habits.
	CategoryStablePreference Category = "stable_preference"

	// CategorySkill covers abilities the user has or is acquiring.
	CategorySkill Category = "skill"

	// CategoryFact covers standalone factual statements.
	CategoryFact Category = "fact"

	// CategoryShortPreference covers tastes expected to shift.
	CategoryShortPreference Category = "short_preference"

	// CategoryEvent covers things that happened at a point in time.
	CategoryEvent Category = "event"

	// CategoryTemporary covers throwaway context with the fastest decay.
	CategoryTemporary Category = "temporary"
)

// Categories lists every known category. Configuration validation requires
// an importance constant for each entry.
func Categories() []Category {
	return []Category{
		CategoryIdentity,
		CategoryStablePreference,
		CategorySkill,
		CategoryFact,
		CategoryShortPreference,
		CategoryEvent,
		CategoryTemporary,
	}
}

// Trigger identifies what caused a decision-engine invocation.
type Trigger string

const (
	// TriggerPassiveDecay is the scheduler's periodic tick; it never
	// refreshes activation timestamps.
	TriggerPassiveDecay Trigger = "passive_decay"

	// TriggerUserMention is an active user mention of related content.
	TriggerUserMention Trigger = "user_mention"

	// TriggerUserNegation is user input contradicting an existing memory.
	TriggerUserNegation Trigger = "user_negation"

	// TriggerCrossModalUpdate attaches a new modality (image/audio) to an
	// existing memory; treated like a high-similarity mention merge.
	TriggerCrossModalUpdate Trigger = "cross_modal_update"

	// TriggerManualEdit is an operator-initiated content edit.
	TriggerManualEdit Trigger = "manual_edit"
)

// QueryMode selects which tiers a retrieval may surface.
type QueryMode string

const (
	// ModeNormal surfaces only FULL and SUMMARY records above the
	// normal-mode weight floor. This is the conversational default.
	ModeNormal QueryMode = "normal"

	// ModeReview surfaces all tiers including TRACE and ARCHIVE; used when
	// the caller detects explicit recall intent ("before", "history").
	ModeReview QueryMode = "review"

	// ModeDebug surfaces everything, soft-deleted records included.
	ModeDebug QueryMode = "debug"
)

// Modality names a content channel carried by a record.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)
