// Package engine assembles the full memory engine: store backend, semantic
// provider, weighting, decision, retrieval, lifecycle and scheduler, behind
// one client facade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
	"github.com/xingxinonline/landoubao-mem0/pkg/decision"
	"github.com/xingxinonline/landoubao-mem0/pkg/identity"
	"github.com/xingxinonline/landoubao-mem0/pkg/lifecycle"
	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/retrieval"
	"github.com/xingxinonline/landoubao-mem0/pkg/scheduler"
	"github.com/xingxinonline/landoubao-mem0/pkg/semantic"
	"github.com/xingxinonline/landoubao-mem0/pkg/semantic/openai"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
	"github.com/xingxinonline/landoubao-mem0/pkg/store/mysql"
	"github.com/xingxinonline/landoubao-mem0/pkg/store/postgres"
	"github.com/xingxinonline/landoubao-mem0/pkg/store/sqlite"
	"github.com/xingxinonline/landoubao-mem0/pkg/weighting"
)

const conflictRetries = 3

// Engine is the client facade over the memory subsystem.
type Engine struct {
	cfg       *core.Config
	store     store.Store
	provider  semantic.Provider
	weights   *weighting.Engine
	decisions *decision.Engine
	retriever *retrieval.Retriever
	lifecycle *lifecycle.Manager
	sched     *scheduler.Scheduler
	idgen     *identity.Generator
	logger    *logrus.Logger
	now       func() time.Time
}

// New builds an engine from configuration.
func New(cfg *core.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, logger: logrus.New(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		st, err := buildStore(cfg)
		if err != nil {
			return nil, err
		}
		e.store = st
	}
	if e.provider == nil {
		p, err := buildProvider(cfg)
		if err != nil {
			return nil, err
		}
		e.provider = p
	}

	params := weighting.DefaultParams()
	params.UserFactor = cfg.UserFactor
	weights, err := weighting.NewEngine(params)
	if err != nil {
		return nil, err
	}
	e.weights = weights

	decisions, err := decision.NewEngine(weights, decision.DefaultThresholds())
	if err != nil {
		return nil, err
	}
	e.decisions = decisions

	retriever, err := retrieval.NewRetriever(retrieval.DefaultParams(), e.provider, e.logger)
	if err != nil {
		return nil, err
	}
	e.retriever = retriever

	device := identity.NewDevice()
	if cfg.DeviceUUID != "" {
		device = identity.NewDeviceWithUUID(cfg.DeviceUUID)
	}
	e.idgen, err = identity.NewGenerator(device, cfg.NodeID)
	if err != nil {
		return nil, err
	}

	lcOpts := []lifecycle.Option{lifecycle.WithLogger(e.logger), lifecycle.WithClock(e.now)}
	if cfg.EncryptionKey != "" {
		cipher, err := lifecycle.NewCipher([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, err
		}
		lcOpts = append(lcOpts, lifecycle.WithCipher(cipher))
	}
	e.lifecycle, err = lifecycle.NewManager(e.store, weights, lcOpts...)
	if err != nil {
		return nil, err
	}

	schedCfg := scheduler.Config{
		CompressionInterval: cfg.Sweeps.CompressionInterval,
		MergeInterval:       cfg.Sweeps.MergeInterval,
		CleanupInterval:     cfg.Sweeps.CleanupInterval,
		RetentionAge:        cfg.Sweeps.RetentionAge,
		HardDeleteGrace:     cfg.Sweeps.HardDeleteGrace,
	}
	e.sched, err = scheduler.NewScheduler(schedCfg, e.store, weights, decisions, e.provider, e.idgen,
		scheduler.WithLogger(e.logger), scheduler.WithClock(e.now))
	if err != nil {
		return nil, err
	}
	return e, nil
}

func buildStore(cfg *core.Config) (store.Store, error) {
	switch cfg.Store.Provider {
	case "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		return sqlite.NewClient(&sqlite.Config{
			DBPath:    cfg.Store.StringOption("db_path", "./landoubao.db"),
			TableName: cfg.Store.StringOption("table_name", "memories"),
		})
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:      cfg.Store.StringOption("host", "localhost"),
			Port:      cfg.Store.IntOption("port", 5432),
			User:      cfg.Store.StringOption("user", "postgres"),
			Password:  cfg.Store.StringOption("password", ""),
			Database:  cfg.Store.StringOption("database", "landoubao"),
			SSLMode:   cfg.Store.StringOption("ssl_mode", "disable"),
			TableName: cfg.Store.StringOption("table_name", "memories"),
		})
	case "mysql":
		return mysql.NewClient(&mysql.Config{
			Host:      cfg.Store.StringOption("host", "127.0.0.1"),
			Port:      cfg.Store.IntOption("port", 3306),
			User:      cfg.Store.StringOption("user", "root"),
			Password:  cfg.Store.StringOption("password", ""),
			Database:  cfg.Store.StringOption("database", "landoubao"),
			TableName: cfg.Store.StringOption("table_name", "memories"),
		})
	default:
		return nil, core.NewEngineError("buildStore",
			fmt.Errorf("%w: unknown store provider %q", core.ErrInvalidConfig, cfg.Store.Provider))
	}
}

func buildProvider(cfg *core.Config) (semantic.Provider, error) {
	switch cfg.Semantic.Provider {
	case "lexical":
		return semantic.NewLexical(), nil
	case "openai":
		return openai.NewProvider(&openai.Config{
			APIKey:         cfg.Semantic.APIKey,
			EmbeddingModel: cfg.Semantic.EmbeddingModel,
			ChatModel:      cfg.Semantic.ChatModel,
			BaseURL:        cfg.Semantic.BaseURL,
		})
	default:
		return nil, core.NewEngineError("buildProvider",
			fmt.Errorf("%w: unknown semantic provider %q", core.ErrInvalidConfig, cfg.Semantic.Provider))
	}
}

// IngestRequest is one new piece of conversational content.
type IngestRequest struct {
	UserID   string
	Content  memory.Content
	Category memory.Category

	// Trigger defaults to TriggerUserMention. Use TriggerUserNegation for
	// contradicting statements and TriggerCrossModalUpdate when attaching
	// a new modality.
	Trigger memory.Trigger
}

// IngestResult reports what the decision engine did with the content.
type IngestResult struct {
	Action     decision.Action
	Similarity float64

	// Record is the record the content ended up in: the merge target, or
	// the newly created record.
	Record *memory.Record

	// Negated is set when the action negated an existing record.
	Negated *memory.Record
}

// Ingest runs one piece of content through the decision table and applies
// the outcome. Similarity scoring failures force a create, never an error.
func (e *Engine) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if req == nil || req.UserID == "" || req.Content.Text == "" {
		return nil, core.NewEngineError("Ingest",
			fmt.Errorf("%w: user id and content text are required", core.ErrInvalidInput))
	}
	cat := req.Category
	if cat == "" {
		cat = memory.CategoryFact
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = memory.TriggerUserMention
	}
	now := e.now()

	best, bestScore := e.bestMatch(ctx, req.UserID, req.Content.Text)
	d := e.decisions.Decide(trigger, best, bestScore, now)

	switch d.Action {
	case decision.ActionCreate, decision.ActionKeepBoth:
		rec := e.decisions.NewRecord(e.idgen.Generate(req.UserID), req.UserID, e.idgen.Device().UUID, req.Content, cat, now)
		if d.Action == decision.ActionKeepBoth && best != nil {
			rec.Provenance.SourceIDs = append(rec.Provenance.SourceIDs, best.ID)
		}
		if err := e.store.Create(ctx, rec); err != nil {
			return nil, core.NewEngineError("Ingest", err)
		}
		return &IngestResult{Action: d.Action, Similarity: d.Similarity, Record: rec}, nil

	case decision.ActionMerge, decision.ActionReinforce:
		merged, err := e.updateWithRetry(ctx, best.ID, func(rec *memory.Record) {
			if d.Action == decision.ActionMerge {
				e.decisions.ApplyMerge(rec, req.Content, d.Similarity, now)
			} else {
				e.decisions.ApplyReinforce(rec, req.Content, d.Similarity, now)
			}
		})
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: d.Action, Similarity: d.Similarity, Record: merged}, nil

	case decision.ActionNegate:
		correction := e.decisions.NewCorrectionRecord(e.idgen.Generate(req.UserID), best, req.Content, now)
		if err := e.store.Create(ctx, correction); err != nil {
			return nil, core.NewEngineError("Ingest", err)
		}
		negated, err := e.updateWithRetry(ctx, best.ID, func(rec *memory.Record) {
			e.decisions.ApplyNegation(rec, req.Content.Text, correction.ID, d.Similarity, now)
		})
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: d.Action, Similarity: d.Similarity, Record: correction, Negated: negated}, nil
	}

	return &IngestResult{Action: d.Action, Similarity: d.Similarity}, nil
}

// bestMatch scans the user's live records for the most similar one. A
// failing similarity provider scores 0, which downstream forces create-new.
func (e *Engine) bestMatch(ctx context.Context, userID, text string) (*memory.Record, float64) {
	recs, err := e.store.QueryByUser(ctx, userID, nil)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("candidate scan failed")
		return nil, 0
	}

	var best *memory.Record
	bestScore := -1.0
	for _, rec := range recs {
		if rec.IsNegated || rec.IsEncrypted {
			continue
		}
		score, err := e.provider.Similarity(ctx, text, rec.Content.Text)
		if err != nil {
			e.logger.WithError(err).WithField("record_id", rec.ID).
				Warn("similarity failed, treating as 0")
			score = 0
		}
		if score < 0 || score > 1 {
			e.logger.WithFields(logrus.Fields{"record_id": rec.ID, "score": score}).
				Warn("similarity out of range, treating as 0")
			score = 0
		}
		if score > bestScore || (score == bestScore && best != nil && rec.ID < best.ID) {
			best, bestScore = rec, score
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestScore
}

// updateWithRetry re-reads and re-applies a mutation on version conflicts.
func (e *Engine) updateWithRetry(ctx context.Context, id string, apply func(*memory.Record)) (*memory.Record, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		rec, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, core.NewEngineError("updateWithRetry", err)
		}
		apply(rec)
		updated, err := e.store.Update(ctx, rec)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, core.NewEngineError("updateWithRetry", err)
		}
		lastErr = err
	}
	return nil, core.NewEngineError("updateWithRetry",
		fmt.Errorf("%w: %v", core.ErrConflict, lastErr))
}

// Query retrieves the user's most relevant memories for a query string.
func (e *Engine) Query(ctx context.Context, userID, query string, mode memory.QueryMode, k int) ([]retrieval.Result, error) {
	if mode == "" {
		mode = memory.ModeNormal
	}
	opts := &store.QueryOptions{IncludeDeleted: mode == memory.ModeDebug}
	recs, err := e.store.QueryByUser(ctx, userID, opts)
	if err != nil {
		return nil, core.NewEngineError("Query", err)
	}
	return e.retriever.Retrieve(ctx, query, recs, mode, k, e.now())
}

// QueryGroup retrieves from a shared group's memories.
func (e *Engine) QueryGroup(ctx context.Context, groupID, query string, mode memory.QueryMode, k int) ([]retrieval.Result, error) {
	if mode == "" {
		mode = memory.ModeNormal
	}
	opts := &store.QueryOptions{IncludeDeleted: mode == memory.ModeDebug}
	recs, err := e.store.QueryByGroup(ctx, groupID, opts)
	if err != nil {
		return nil, core.NewEngineError("QueryGroup", err)
	}
	return e.retriever.Retrieve(ctx, query, recs, mode, k, e.now())
}

// ShareToGroup marks a record as shared with a group of users.
func (e *Engine) ShareToGroup(ctx context.Context, id, groupID string, members []string) error {
	if groupID == "" {
		return core.NewEngineError("ShareToGroup",
			fmt.Errorf("%w: group id is required", core.ErrInvalidInput))
	}
	_, err := e.updateWithRetry(ctx, id, func(rec *memory.Record) {
		rec.IsGroupMemory = true
		rec.GroupID = groupID
		rec.SharedWith = appendMissing(rec.SharedWith, members)
	})
	return err
}

// Get returns a record by ID.
func (e *Engine) Get(ctx context.Context, id string) (*memory.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, core.NewEngineError("Get", err)
	}
	return rec, nil
}

// Tick runs all three maintenance sweeps once, in compression, merge,
// cleanup order, and returns their reports.
func (e *Engine) Tick(ctx context.Context) ([]*scheduler.SweepReport, error) {
	var reports []*scheduler.SweepReport
	for _, sweep := range []func(context.Context) (*scheduler.SweepReport, error){
		e.sched.CompressionSweep, e.sched.MergeSweep, e.sched.CleanupSweep,
	} {
		report, err := sweep(ctx)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// StartScheduler launches the periodic sweeps.
func (e *Engine) StartScheduler(ctx context.Context) error { return e.sched.Start(ctx) }

// StopScheduler halts the periodic sweeps.
func (e *Engine) StopScheduler() { e.sched.Stop() }

// Freeze exempts a record from decay and deletion.
func (e *Engine) Freeze(ctx context.Context, id string) error { return e.lifecycle.Freeze(ctx, id) }

// Unfreeze returns a record to normal lifecycle handling.
func (e *Engine) Unfreeze(ctx context.Context, id string) error { return e.lifecycle.Unfreeze(ctx, id) }

// MarkSensitive sets a record's sensitivity level, optionally encrypting it.
func (e *Engine) MarkSensitive(ctx context.Context, id string, level int, encrypt bool) error {
	return e.lifecycle.MarkSensitive(ctx, id, level, encrypt)
}

// EditContent replaces a record's text with an operator-supplied version.
func (e *Engine) EditContent(ctx context.Context, id, text string) error {
	return e.lifecycle.EditContent(ctx, id, text)
}

// SoftDelete retires a record recoverably.
func (e *Engine) SoftDelete(ctx context.Context, id string) error {
	return e.lifecycle.SoftDelete(ctx, id)
}

// Restore clears a record's soft-deleted flag.
func (e *Engine) Restore(ctx context.Context, id string) error { return e.lifecycle.Restore(ctx, id) }

// HardDelete removes a record permanently.
func (e *Engine) HardDelete(ctx context.Context, id string) error {
	return e.lifecycle.HardDelete(ctx, id)
}

// Explain returns the current weight breakdown and metadata for a record.
func (e *Engine) Explain(ctx context.Context, id string) (*lifecycle.Explanation, error) {
	return e.lifecycle.Explain(ctx, id)
}

// Decrypt returns the plaintext of an encrypted record.
func (e *Engine) Decrypt(ctx context.Context, id string) (string, error) {
	return e.lifecycle.Decrypt(ctx, id)
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func appendMissing(dst []string, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}
