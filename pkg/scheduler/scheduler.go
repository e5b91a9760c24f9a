// Package scheduler drives the periodic maintenance sweeps: compression
// (passive decay and tier demotion), batch merge of near-duplicate records,
// and cleanup (soft-delete under the floor, hard-delete after the grace
// period). Sweeps are idempotent, walk users independently so one failing
// user never aborts the rest, and honor context cancellation between
// records.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
	"github.com/xingxinonline/landoubao-mem0/pkg/decision"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/semantic"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
	"github.com/xingxinonline/landoubao-mem0/pkg/weighting"
)

// IDGenerator mints record IDs for merge summaries.
type IDGenerator interface {
	Generate(userID string) string
}

// Config holds sweep periods and retention windows.
type Config struct {
	CompressionInterval time.Duration `json:"compressionInterval"`
	MergeInterval       time.Duration `json:"mergeInterval"`
	CleanupInterval     time.Duration `json:"cleanupInterval"`

	// RetentionAge is the minimum age before a sub-floor record may be
	// soft-deleted by the cleanup sweep.
	RetentionAge time.Duration `json:"retentionAge"`

	// HardDeleteGrace is how long a soft-deleted record is kept before
	// being purged.
	HardDeleteGrace time.Duration `json:"hardDeleteGrace"`
}

// DefaultConfig returns the standard sweep cadence.
func DefaultConfig() Config {
	return Config{
		CompressionInterval: time.Hour,
		MergeInterval:       2 * time.Hour,
		CleanupInterval:     24 * time.Hour,
		RetentionAge:        365 * 24 * time.Hour,
		HardDeleteGrace:     30 * 24 * time.Hour,
	}
}

// Validate checks the sweep configuration.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"compression interval": c.CompressionInterval,
		"merge interval":       c.MergeInterval,
		"cleanup interval":     c.CleanupInterval,
		"hard delete grace":    c.HardDeleteGrace,
	} {
		if d <= 0 {
			return core.NewEngineError("scheduler.Config.Validate",
				fmt.Errorf("%w: %s must be positive", core.ErrInvalidConfig, name))
		}
	}
	if c.RetentionAge < 0 {
		return core.NewEngineError("scheduler.Config.Validate",
			fmt.Errorf("%w: retention age must be non-negative", core.ErrInvalidConfig))
	}
	return nil
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Sweep       string        `json:"sweep"`
	Users       int           `json:"users"`
	Records     int           `json:"records"`
	Compressed  int           `json:"compressed"`
	Merged      int           `json:"merged"`
	SoftDeleted int           `json:"softDeleted"`
	HardDeleted int           `json:"hardDeleted"`
	Failures    int           `json:"failures"`
	Duration    time.Duration `json:"duration"`
}

// Scheduler owns the sweep loops. Sweeps can also be invoked directly,
// which is how tests and manual maintenance use them.
type Scheduler struct {
	cfg       Config
	store     store.Store
	weights   *weighting.Engine
	decisions *decision.Engine
	provider  semantic.Provider
	idgen     IDGenerator
	metrics   *Metrics
	logger    *logrus.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler wires a scheduler over the store and engines.
func NewScheduler(cfg Config, st store.Store, weights *weighting.Engine, decisions *decision.Engine, provider semantic.Provider, idgen IDGenerator, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil || weights == nil || decisions == nil || provider == nil || idgen == nil {
		return nil, core.NewEngineError("NewScheduler",
			fmt.Errorf("%w: store, engines, provider and id generator are required", core.ErrInvalidConfig))
	}
	s := &Scheduler{
		cfg:       cfg,
		store:     st,
		weights:   weights,
		decisions: decisions,
		provider:  provider,
		idgen:     idgen,
		logger:    logrus.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s, nil
}

// Start launches the cron loops. Stop must be called to release them.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	for _, entry := range []struct {
		interval time.Duration
		run      func(context.Context) (*SweepReport, error)
	}{
		{s.cfg.CompressionInterval, s.CompressionSweep},
		{s.cfg.MergeInterval, s.MergeSweep},
		{s.cfg.CleanupInterval, s.CleanupSweep},
	} {
		run := entry.run
		spec := fmt.Sprintf("@every %s", entry.interval)
		if _, err := c.AddFunc(spec, func() {
			if _, err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithError(err).Error("sweep failed")
			}
		}); err != nil {
			return core.NewEngineError("Scheduler.Start", err)
		}
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the cron loops and waits for running sweeps to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// CompressionSweep recomputes every live record's weight under passive
// decay and demotes tiers one step where the weight calls for it. Content
// is rewritten through the summarizer or tagger when a record drops out of
// FULL or SUMMARY; if that rewrite fails the record keeps its tier and the
// next sweep retries. Activity timestamps are never touched.
func (s *Scheduler) CompressionSweep(ctx context.Context) (*SweepReport, error) {
	return s.runSweep(ctx, "compression", func(ctx context.Context, userID string, report *SweepReport) error {
		recs, err := s.store.QueryByUser(ctx, userID, nil)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Records++
			if err := s.compressOne(ctx, rec, report); err != nil {
				s.logger.WithError(err).WithField("record_id", rec.ID).Warn("compression skipped")
				report.Failures++
			}
		}
		return nil
	})
}

func (s *Scheduler) compressOne(ctx context.Context, rec *memory.Record, report *SweepReport) error {
	s.metrics.RecordWeight.Observe(rec.Weight)
	if rec.IsFrozen {
		return nil
	}
	now := s.now()
	d := s.decisions.DecidePassive(rec, now)

	switch d.Action {
	case decision.ActionSoftDelete:
		s.weights.Recompute(rec, memory.TriggerPassiveDecay, d.Reason, now)
		rec.IsDeleted = true
		rec.DeletedAt = now
		if _, err := s.store.Update(ctx, rec); err != nil {
			return err
		}
		report.SoftDeleted++
		s.metrics.SoftDeletes.Inc()
		return nil

	case decision.ActionCompress:
		oldTier, oldWeight := rec.Tier, rec.Weight
		if err := s.rewriteContent(ctx, rec, d.TargetTier); err != nil {
			// Keep the current tier; the weight still decays.
			s.weights.Recompute(rec, memory.TriggerPassiveDecay, "decay (compression deferred)", now)
			if _, uerr := s.store.Update(ctx, rec); uerr != nil {
				return uerr
			}
			return err
		}
		rec.Tier = d.TargetTier
		s.weights.Recompute(rec, memory.TriggerPassiveDecay, d.Reason, now)
		rec.AppendCompression(memory.CompressionEvent{
			Timestamp: now,
			OldTier:   oldTier,
			NewTier:   rec.Tier,
			OldWeight: oldWeight,
			NewWeight: rec.Weight,
			Reason:    d.Reason,
		})
		if _, err := s.store.Update(ctx, rec); err != nil {
			return err
		}
		report.Compressed++
		s.metrics.Compressions.Inc()
		return nil

	default:
		breakdown := s.weights.Compute(rec, now)
		if breakdown.Total == rec.Weight {
			return nil
		}
		s.weights.Recompute(rec, memory.TriggerPassiveDecay, "passive decay", now)
		_, err := s.store.Update(ctx, rec)
		return err
	}
}

// rewriteContent regenerates a record's content for its new tier. Demotion
// to SUMMARY condenses the text; demotion to TAG reduces it to keywords.
// Deeper tiers keep whatever the previous compression left.
func (s *Scheduler) rewriteContent(ctx context.Context, rec *memory.Record, target memory.Tier) error {
	switch target {
	case memory.TierSummary:
		summary, err := s.provider.Summarize(ctx, []string{rec.Content.Text})
		if err != nil {
			return err
		}
		rec.Content.Text = summary
	case memory.TierTag:
		tags, err := s.provider.Tagify(ctx, rec.Content.Text)
		if err != nil {
			return err
		}
		rec.Tags = tags
		rec.Content.Text = strings.Join(tags, ", ")
	}
	return nil
}

// MergeSweep finds clusters of near-duplicate records per user and
// category and replaces each with one SUMMARY record. Originals are
// soft-deleted in ID order and linked to their replacement.
func (s *Scheduler) MergeSweep(ctx context.Context) (*SweepReport, error) {
	return s.runSweep(ctx, "merge", func(ctx context.Context, userID string, report *SweepReport) error {
		byCategory := make(map[memory.Category][]*memory.Record)
		recs, err := s.store.QueryByUser(ctx, userID, nil)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			report.Records++
			// Batch merge compresses and soft-deletes; sensitivity level 2
			// forbids the former and level 3 the latter, so both stay out.
			if rec.IsFrozen || rec.IsNegated || rec.IsEncrypted || rec.SensitivityLevel >= 2 {
				continue
			}
			byCategory[rec.Category] = append(byCategory[rec.Category], rec)
		}

		sim := func(a, b *memory.Record) (float64, error) {
			return s.provider.Similarity(ctx, a.Content.Text, b.Content.Text)
		}
		for _, group := range byCategory {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, cluster := range s.decisions.Clusters(group, sim) {
				if err := s.mergeCluster(ctx, userID, cluster, report); err != nil {
					s.logger.WithError(err).WithField("user_id", userID).Warn("batch merge skipped")
					report.Failures++
				}
			}
		}
		return nil
	})
}

func (s *Scheduler) mergeCluster(ctx context.Context, userID string, cluster []*memory.Record, report *SweepReport) error {
	texts := make([]string, len(cluster))
	for i, rec := range cluster {
		texts[i] = rec.Content.Text
	}
	summary, err := s.provider.Summarize(ctx, texts)
	if err != nil {
		// Leave the cluster for the next sweep.
		return err
	}

	now := s.now()
	merged := s.decisions.BuildBatchSummary(s.idgen.Generate(userID), summary, cluster, now)
	if err := s.store.Create(ctx, merged); err != nil {
		return err
	}

	// Clusters arrive ID-sorted, so concurrent sweeps retire originals in
	// the same order.
	for _, rec := range cluster {
		rec.Provenance.ChildrenIDs = append(rec.Provenance.ChildrenIDs, merged.ID)
		rec.IsDeleted = true
		rec.DeletedAt = now
		if _, err := s.store.Update(ctx, rec); err != nil {
			return err
		}
		report.SoftDeleted++
		s.metrics.SoftDeletes.Inc()
	}
	report.Merged++
	s.metrics.BatchMerges.Inc()
	return nil
}

// CleanupSweep soft-deletes aged records whose weight sits under the
// cleanup floor and purges soft-deleted records past the grace period.
// Frozen records and sensitivity level 2+ are never touched.
func (s *Scheduler) CleanupSweep(ctx context.Context) (*SweepReport, error) {
	floor := s.decisions.Thresholds().CleanupFloor
	return s.runSweep(ctx, "cleanup", func(ctx context.Context, userID string, report *SweepReport) error {
		recs, err := s.store.QueryByUser(ctx, userID, &store.QueryOptions{IncludeDeleted: true})
		if err != nil {
			return err
		}
		now := s.now()
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Records++

			if rec.IsDeleted {
				if !rec.DeletedAt.IsZero() && now.Sub(rec.DeletedAt) > s.cfg.HardDeleteGrace {
					if err := s.store.Delete(ctx, rec.ID); err != nil {
						report.Failures++
						continue
					}
					report.HardDeleted++
					s.metrics.HardDeletes.Inc()
				}
				continue
			}
			if rec.IsFrozen || rec.SensitivityLevel >= 2 {
				continue
			}

			weight := s.weights.Compute(rec, now).Total
			if weight >= floor || now.Sub(rec.CreatedAt) <= s.cfg.RetentionAge {
				continue
			}
			s.weights.Recompute(rec, memory.TriggerPassiveDecay, "cleanup: weight under floor", now)
			rec.IsDeleted = true
			rec.DeletedAt = now
			if _, err := s.store.Update(ctx, rec); err != nil {
				report.Failures++
				continue
			}
			report.SoftDeleted++
			s.metrics.SoftDeletes.Inc()
		}
		return nil
	})
}

// runSweep walks all users, isolating per-user failures, and assembles the
// report and metrics.
func (s *Scheduler) runSweep(ctx context.Context, name string, perUser func(context.Context, string, *SweepReport) error) (*SweepReport, error) {
	start := s.now()
	report := &SweepReport{Sweep: name}

	users, err := s.store.Users(ctx)
	if err != nil {
		s.metrics.SweepFailures.WithLabelValues(name).Inc()
		return report, core.NewEngineError("runSweep", err)
	}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Users++
		if err := perUser(ctx, userID, report); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			s.logger.WithError(err).WithFields(logrus.Fields{"sweep": name, "user_id": userID}).
				Error("sweep failed for user, continuing")
			report.Failures++
			s.metrics.SweepFailures.WithLabelValues(name).Inc()
		}
	}

	report.Duration = s.now().Sub(start)
	s.metrics.SweepRuns.WithLabelValues(name).Inc()
	s.metrics.SweepDuration.WithLabelValues(name).Observe(report.Duration.Seconds())
	s.logger.WithFields(logrus.Fields{
		"sweep":        name,
		"users":        report.Users,
		"records":      report.Records,
		"compressed":   report.Compressed,
		"merged":       report.Merged,
		"soft_deleted": report.SoftDeleted,
		"hard_deleted": report.HardDeleted,
		"failures":     report.Failures,
		"duration":     report.Duration,
	}).Info("sweep complete")
	return report, nil
}
