package importer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// Defaults fill in options a request leaves unset.
type Defaults struct {
	BatchSize int
	MatchMode MatchMode
	DayFirst  bool
	// Timeout bounds the transactional part of a run. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Engine runs imports against a Store. It holds no per-run state and is
// safe for concurrent use.
type Engine struct {
	store     Store
	logger    *zap.Logger
	limiter   *Limiter
	now       func() time.Time
	defaults  Defaults
	validator *Validator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for run events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLimiter bounds the number of concurrent Import calls.
func WithLimiter(l *Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithClock overrides the time source of audit stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDefaults sets the fallbacks for unset request options.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// NewEngine returns an engine writing through store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
		defaults:  Defaults{BatchSize: DefaultBatchSize, MatchMode: MatchContains},
		validator: NewValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runSettings are the request options after defaults were applied.
type runSettings struct {
	batchSize int
	matchMode MatchMode
	dayFirst  bool
}

func (e *Engine) settings(o Options) (runSettings, error) {
	s := runSettings{
		batchSize: o.BatchSize,
		matchMode: o.MatchMode,
		dayFirst:  o.DayFirst || e.defaults.DayFirst,
	}
	if s.batchSize <= 0 {
		s.batchSize = e.defaults.BatchSize
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.matchMode == "" {
		s.matchMode = e.defaults.MatchMode
	}

	mode, err := ParseMatchMode(string(s.matchMode))
	if err != nil {
		return s, err
	}
	s.matchMode = mode
	return s, nil
}

// prepared is a file that went through parse, map, decode and validate.
type prepared struct {
	def        *EntityDefinition
	settings   runSettings
	rows       []ImportRow
	validation ValidationResult
}

func (e *Engine) prepare(req Request) (*prepared, error) {
	def, err := Definition(req.Entity)
	if err != nil {
		return nil, err
	}

	settings, err := e.settings(req.Options)
	if err != nil {
		return nil, err
	}

	file, err := Parse(req.Data, req.Format, ParseOptions{
		HasHeaderRow: req.Options.HeaderRow(),
		Delimiter:    req.Options.Delimiter,
	})
	if err != nil {
		return nil, err
	}

	records := MapRecords(file, req.Options.ColumnMapping, def, settings.dayFirst)
	rows := def.DecodeRecords(records)

	return &prepared{
		def:        def,
		settings:   settings,
		rows:       rows,
		validation: e.validator.Validate(rows),
	}, nil
}

// Validate parses, maps and validates req without opening a transaction.
func (e *Engine) Validate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return Validated(p.validation), nil
}

// Import runs the full pipeline for req.
//
// Validation failures are reported in the Result with a nil error and no
// transaction is opened. Failures after the transaction opened roll back
// every write of the run and are returned as errors.
func (e *Engine) Import(ctx context.Context, req Request) (*Result, error) {
	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer e.limiter.Release()
	}

	start := time.Now()
	entity := string(req.Entity)
	logger := logging.Enrich(ctx, e.logger).With(
		zap.String("import_id", uuid.NewString()),
		zap.String("entity", entity),
		zap.Int64("operator_id", req.OperatorID),
	)

	result, err := e.run(ctx, req, logger)
	importDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		importRuns.WithLabelValues(entity, outcomeFailed).Inc()
		logger.Error("import failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	case !result.Valid:
		importRuns.WithLabelValues(entity, outcomeRejected).Inc()
		logger.Info("import rejected by validation",
			zap.Int("errors", len(result.Errors)),
			zap.Int("warnings", len(result.Warnings)),
		)
	default:
		importRuns.WithLabelValues(entity, outcomeSuccess).Inc()
		importRows.WithLabelValues(entity, "created").Add(float64(result.RowsCreated))
		importRows.WithLabelValues(entity, "updated").Add(float64(result.RowsUpdated))
		logger.Info("import finished",
			zap.Int("processed", result.TotalProcessed),
			zap.Int("created", result.RowsCreated),
			zap.Int("updated", result.RowsUpdated),
			zap.Int("warnings", len(result.Warnings)),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, req Request, logger *zap.Logger) (*Result, error) {
	p, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	logger.Info("import started",
		zap.Int("records", len(p.rows)),
		zap.Int("batch_size", p.settings.batchSize),
		zap.Bool("update_existing", req.Options.UpdateExisting),
		zap.String("match_mode", string(p.settings.matchMode)),
	)

	if !p.validation.Valid {
		return Rejected(p.validation), nil
	}

	agg := NewAggregator(p.validation)
	if len(p.rows) == 0 {
		return agg.Success(), nil
	}

	if e.defaults.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.defaults.Timeout)
		defer cancel()
	}

	created, err := e.apply(ctx, req, p, agg, logger)
	if err != nil {
		return nil, err
	}

	for table, n := range created {
		referencesCreated.WithLabelValues(table).Add(float64(n))
	}
	return agg.Success(), nil
}

// apply runs every batch inside one transaction and commits. It returns the
// number of reference rows created per table.
func (e *Engine) apply(ctx context.Context, req Request, p *prepared, agg *Aggregator, logger *zap.Logger) (map[string]int, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	resolver := NewResolver(NewReferenceCache(), p.def.Type, logger)
	reconciler := NewReconciler(p.def)
	opts := ReconcileOptions{UpdateExisting: req.Options.UpdateExisting, MatchMode: p.settings.matchMode}
	stamp := Stamp{OperatorID: req.OperatorID, At: e.now().UTC()}

	for start := 0; start < len(p.rows); start += p.settings.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "import interrupted")
		}

		end := min(start+p.settings.batchSize, len(p.rows))
		batch := p.rows[start:end]

		if err := resolver.Resolve(ctx, tx, batch, p.def.References); err != nil {
			return nil, err
		}

		counts, err := reconciler.Reconcile(ctx, tx, batch, resolver.Cache(), opts, stamp)
		if err != nil {
			return nil, err
		}
		agg.AddBatch(len(batch), counts)

		logger.Debug("batch applied",
			zap.Int("first_row", batch[0].Row()),
			zap.Int("rows", len(batch)),
			zap.Int("created", counts.Created),
			zap.Int("updated", counts.Updated),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit transaction")
	}
	return resolver.Created(), nil
}
