package memory

import "time"

// Content is the multi-modal payload of a memory. At minimum Text is set;
// media references and their embedding vectors are opaque to the engine and
// carried through merges unchanged.
type Content struct {
	// Text is the textual content. Rewritten only by merge and compression.
	Text string `json:"text"`

	// ImageURL references an image attached to the memory, if any.
	ImageURL string `json:"image_url,omitempty"`

	// AudioURL references an audio clip attached to the memory, if any.
	AudioURL string `json:"audio_url,omitempty"`

	// VideoURL references a video attached to the memory, if any.
	VideoURL string `json:"video_url,omitempty"`

	// Embeddings holds per-modality embedding vectors supplied by the
	// caller. The engine never inspects them.
	Embeddings map[string][]float64 `json:"embeddings,omitempty"`
}

// Modalities returns the modalities present in the content.
func (c *Content) Modalities() []Modality {
	var out []Modality
	if c.Text != "" {
		out = append(out, ModalityText)
	}
	if c.ImageURL != "" {
		out = append(out, ModalityImage)
	}
	if c.AudioURL != "" {
		out = append(out, ModalityAudio)
	}
	if c.VideoURL != "" {
		out = append(out, ModalityVideo)
	}
	return out
}

// WeightBreakdown is the factor-by-factor result of a weight computation.
//
// Total = TimeFactor × SemanticBoost × ConflictFactor × Importance ×
// UserFactor × MomentumFactor, clamped to the configured weight bounds.
type WeightBreakdown struct {
	// Total is the clamped combined weight W(t).
	Total float64 `json:"total"`

	// TimeFactor is wTime(t), the only factor driven by elapsed time alone.
	TimeFactor float64 `json:"time_factor"`

	// SemanticBoost is S(t), the post-mention reinforcement boost.
	SemanticBoost float64 `json:"semantic_boost"`

	// ConflictFactor is C(t), the negation penalty recovering toward 1.
	ConflictFactor float64 `json:"conflict_factor"`

	// Importance is the per-category constant I.
	Importance float64 `json:"importance"`

	// UserFactor is the per-user forgetting-speed scalar U.
	UserFactor float64 `json:"user_factor"`

	// MomentumFactor is M(t), the capped frequency dampener.
	MomentumFactor float64 `json:"momentum_factor"`
}

// WeightChange is one append-only audit entry recording a weight
// recomputation with its factor breakdown and triggering reason.
type WeightChange struct {
	Timestamp time.Time       `json:"timestamp"`
	Trigger   Trigger         `json:"trigger"`
	OldWeight float64         `json:"old_weight"`
	NewWeight float64         `json:"new_weight"`
	Reason    string          `json:"reason"`
	Breakdown WeightBreakdown `json:"breakdown"`
}

// CompressionEvent is one append-only audit entry recording a tier transition.
type CompressionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	OldTier   Tier      `json:"old_tier"`
	NewTier   Tier      `json:"new_tier"`
	OldWeight float64   `json:"old_weight"`
	NewWeight float64   `json:"new_weight"`
	Reason    string    `json:"reason"`
}

// Correction is one entry in a record's negation/correction history.
type Correction struct {
	Timestamp time.Time `json:"timestamp"`

	// NewRecordID is the FULL-tier record created to carry the corrected
	// content. Negation never mutates or deletes the old record.
	NewRecordID string `json:"new_record_id"`

	// Statement is the contradicting input that triggered the correction.
	Statement string `json:"statement"`

	Similarity float64 `json:"similarity"`
}

// Provenance tracks how a record was derived from other records. It forms a
// DAG, not a strict tree: a record can be both a merge target and a
// compression source.
type Provenance struct {
	// SourceIDs lists the conversational inputs or records this memory was
	// originally derived from.
	SourceIDs []string `json:"source_ids,omitempty"`

	// MergedFrom lists records consolidated into this one by a batch merge.
	MergedFrom []string `json:"merged_from,omitempty"`

	// CompressedFrom is the record this one was compressed from, if any.
	CompressedFrom string `json:"compressed_from,omitempty"`

	// ParentID links a correction record back to the record it negates.
	ParentID string `json:"parent_id,omitempty"`

	// ChildrenIDs links a record forward to records derived from it.
	ChildrenIDs []string `json:"children_ids,omitempty"`
}

// Record is the central entity: one logical memory with its content,
// weighting metadata, provenance, and audit trail.
type Record struct {
	// ID is globally unique and sortable, encoding
	// {device}_{user}_{timestamp}_{sequence}. Immutable after creation.
	ID string `json:"id"`

	// OwnerDevice identifies the originating device. Immutable.
	OwnerDevice string `json:"owner_device"`

	// OwnerUser identifies the originating user. Immutable.
	OwnerUser string `json:"owner_user"`

	// Content is the multi-modal payload; mutated only by merge and
	// compression operations.
	Content Content `json:"content"`

	// Tier is the current compression level.
	Tier Tier `json:"tier"`

	// Category is set at creation and immutable; it fixes the importance
	// constant and the decay speed.
	Category Category `json:"category"`

	// Tags carries the tag set produced by SUMMARY→TAG compression, and
	// any caller-supplied tags.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is set once at creation and never modified; it preserves
	// age since first mention.
	CreatedAt time.Time `json:"created_at"`

	// LastActivatedAt is refreshed only when an active user mention results
	// in a merge, negate, or cross-modal-update action. Drives decay.
	LastActivatedAt time.Time `json:"last_activated_at"`

	// LastMentionedAt is when the record was last actively mentioned
	// (zero if never); drives the semantic boost S(t).
	LastMentionedAt time.Time `json:"last_mentioned_at,omitempty"`

	// MentionCount counts active mentions over the record's lifetime.
	MentionCount int `json:"mention_count"`

	// ReinforceCount counts frequent-reinforce merge events.
	ReinforceCount int `json:"reinforce_count"`

	// RecentMentions holds timestamps of recent active mentions, pruned to
	// the momentum window; feeds M(t).
	RecentMentions []time.Time `json:"recent_mentions,omitempty"`

	// IsNegated marks the record as contradicted by later input. Negated
	// records keep their content until hard-deleted.
	IsNegated bool `json:"is_negated"`

	// NegatedAt is when the record was negated (zero if never); drives C(t).
	NegatedAt time.Time `json:"negated_at,omitempty"`

	// CorrectionHistory records each negation/correction applied.
	CorrectionHistory []Correction `json:"correction_history,omitempty"`

	// Provenance tracks derivation for explainability and review recall.
	Provenance Provenance `json:"provenance"`

	// Weight is the most recently computed total weight, cached for
	// retrieval and cleanup decisions.
	Weight float64 `json:"weight"`

	// Factors is the breakdown behind Weight.
	Factors WeightBreakdown `json:"factors"`

	// IsSensitive and SensitivityLevel (0-3) protect the record from
	// automatic compression and cleanup. Level >= 3 content must be
	// stored encrypted.
	IsSensitive      bool `json:"is_sensitive"`
	SensitivityLevel int  `json:"sensitivity_level"`
	IsEncrypted      bool `json:"is_encrypted"`

	// IsFrozen exempts the record from all automatic tier transitions and
	// cleanup.
	IsFrozen bool `json:"is_frozen"`

	// IsDeleted marks a soft delete; hard delete happens only after the
	// retention grace period.
	IsDeleted bool      `json:"is_deleted"`
	DeletedAt time.Time `json:"deleted_at,omitempty"`

	// Group memory fields: a record may belong to a group and be shared
	// with other users.
	IsGroupMemory bool     `json:"is_group_memory,omitempty"`
	GroupID       string   `json:"group_id,omitempty"`
	SharedWith    []string `json:"shared_with,omitempty"`

	// WeightChangeLog and CompressionHistory are append-only audit trails,
	// capped to the most recent maxAuditEntries entries.
	WeightChangeLog    []WeightChange     `json:"weight_change_log,omitempty"`
	CompressionHistory []CompressionEvent `json:"compression_history,omitempty"`

	// Extensions carries caller-supplied fields that are not part of the
	// versioned schema. Unknown fields are routed here, never merged into
	// the schema ad hoc.
	Extensions map[string]interface{} `json:"extensions,omitempty"`

	// Version increments on every store update; stale-version writes are
	// rejected with a conflict error.
	Version int64 `json:"version"`
}

// maxAuditEntries bounds the weight-change and compression logs.
const maxAuditEntries = 50

// AppendWeightChange appends an audit entry, keeping the log bounded.
func (r *Record) AppendWeightChange(entry WeightChange) {
	r.WeightChangeLog = append(r.WeightChangeLog, entry)
	if n := len(r.WeightChangeLog); n > maxAuditEntries {
		r.WeightChangeLog = r.WeightChangeLog[n-maxAuditEntries:]
	}
}

// AppendCompression appends a tier-transition audit entry, keeping the log bounded.
func (r *Record) AppendCompression(entry CompressionEvent) {
	r.CompressionHistory = append(r.CompressionHistory, entry)
	if n := len(r.CompressionHistory); n > maxAuditEntries {
		r.CompressionHistory = r.CompressionHistory[n-maxAuditEntries:]
	}
}

// MentionsWithin counts recent mentions at or after the cutoff.
func (r *Record) MentionsWithin(cutoff time.Time) int {
	n := 0
	for _, ts := range r.RecentMentions {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// PruneMentions drops recent-mention timestamps older than the cutoff.
func (r *Record) PruneMentions(cutoff time.Time) {
	kept := r.RecentMentions[:0]
	for _, ts := range r.RecentMentions {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.RecentMentions = kept
}

// Clone returns a deep copy of the record. Stores hand out clones so readers
// never observe a torn or later-mutated record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Tags = append([]string(nil), r.Tags...)
	cp.RecentMentions = append([]time.Time(nil), r.RecentMentions...)
	cp.CorrectionHistory = append([]Correction(nil), r.CorrectionHistory...)
	cp.SharedWith = append([]string(nil), r.SharedWith...)
	cp.WeightChangeLog = append([]WeightChange(nil), r.WeightChangeLog...)
	cp.CompressionHistory = append([]CompressionEvent(nil), r.CompressionHistory...)
	cp.Provenance.SourceIDs = append([]string(nil), r.Provenance.SourceIDs...)
	cp.Provenance.MergedFrom = append([]string(nil), r.Provenance.MergedFrom...)
	cp.Provenance.ChildrenIDs = append([]string(nil), r.Provenance.ChildrenIDs...)
	if r.Content.Embeddings != nil {
		cp.Content.Embeddings = make(map[string][]float64, len(r.Content.Embeddings))
		for k, v := range r.Content.Embeddings {
			cp.Content.Embeddings[k] = append([]float64(nil), v...)
		}
	}
	if r.Extensions != nil {
		cp.Extensions = make(map[string]interface{}, len(r.Extensions))
		for k, v := range r.Extensions {
			cp.Extensions[k] = v
		}
	}
	return &cp
}
