package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codegraph/internal/config"
	"codegraph/internal/crawler"
	"codegraph/internal/graph"
	"codegraph/internal/resolver"
	"codegraph/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Summary is the outcome of one indexing run.
type Summary struct {
	graph.Summary
	Files      int                  `json:"files"`
	Failed     int                  `json:"failed"`
	Skipped    int                  `json:"skipped"`
	Backend    string               `json:"backend"`
	Workers    int                  `json:"workers"`
	Collisions int                  `json:"module_collisions"`
	Resolution resolver.ResolveStats `json:"resolution"`
	Duration   time.Duration        `json:"duration"`
}

// Result is everything a run produced. Errors joins the per-file failures;
// a run with failed files still succeeds.
type Result struct {
	RunID      string
	Graph      *graph.Graph
	Summary    Summary
	Stages     []resolver.StageResult
	Collisions map[string][]string
	Failed     []*FileError
	Errors     error
}

// Indexer runs walk, routing, both passes and the summary.
type Indexer struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

type IndexerOption func(*Indexer)

func WithLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) IndexerOption {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithWorkerCommand overrides how worker processes are started.
func WithWorkerCommand(argv []string, env ...string) IndexerOption {
	return func(ix *Indexer) {
		ix.opts.WorkerCommand = argv
		ix.opts.WorkerEnv = env
	}
}

func NewIndexer(cfg *config.Config, opts ...IndexerOption) *Indexer {
	if cfg == nil {
		cfg = config.Default()
	}
	ix := &Indexer{
		cfg:    cfg,
		opts:   OptionsFromConfig(cfg),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Coordinator returns the pass-1 coordinator this indexer uses.
func (ix *Indexer) Coordinator() *Coordinator {
	return NewCoordinator(ix.opts, ix.logger, ix.metrics)
}

func (ix *Indexer) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()

	ctx, span := telemetry.Tracer().Start(ctx, "codegraph.run")
	defer span.End()
	span.SetAttributes(attribute.String("root", root), attribute.String("run_id", runID))

	files, err := ix.collectStage(root)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	routed, skipped, err := ix.routeStage(files)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	p1, err := ix.Coordinator().Run(ctx, routed)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	collisions := ix.collisionStage(p1)
	stages, stats := ix.resolveStage(ctx, p1)

	res := &Result{
		RunID:      runID,
		Graph:      p1.Graph,
		Stages:     stages,
		Collisions: collisions,
		Failed:     p1.Failed,
	}
	errs := make([]error, 0, len(p1.Failed))
	for _, fe := range p1.Failed {
		errs = append(errs, fe)
	}
	res.Errors = errors.Join(errs...)

	res.Summary = Summary{
		Summary:    p1.Graph.Summary(),
		Files:      p1.Files,
		Failed:     len(p1.Failed),
		Skipped:    skipped,
		Backend:    p1.Backend,
		Workers:    p1.Workers,
		Collisions: len(collisions),
		Resolution: stats,
		Duration:   time.Since(start),
	}
	ix.metrics.SetGraph(res.Summary.Summary)

	span.SetAttributes(
		attribute.Int("entities", res.Summary.Entities),
		attribute.Int("relations", res.Summary.Relations),
		attribute.Int("failed", res.Summary.Failed),
	)
	ix.logger.Info("indexing finished",
		slog.String("run_id", runID),
		slog.Int("files", res.Summary.Files),
		slog.Int("failed", res.Summary.Failed),
		slog.Int("entities", res.Summary.Entities),
		slog.Int("relations", res.Summary.Relations),
		slog.Duration("elapsed", res.Summary.Duration))
	return res, nil
}

func (ix *Indexer) collectStage(root string) ([]string, error) {
	cr, err := crawler.NewCrawler(ix.cfg.Project.Exclude, ix.logger)
	if err != nil {
		return nil, err
	}
	files, err := cr.Collect(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

func (ix *Indexer) routeStage(files []string) ([]crawler.Routed, int, error) {
	router, err := crawler.NewRouter(ix.cfg.Indexing.Languages, ix.logger, ix.opts.adapterOptions()...)
	if err != nil {
		return nil, 0, err
	}
	routed, skipped := router.Partition(files)
	ix.logger.Debug("routed files",
		slog.Int("routed", len(routed)),
		slog.Int("skipped", skipped),
		slog.Any("languages", router.Languages()))
	return routed, skipped, nil
}

// collisionStage reports module names claimed by more than one file.
func (ix *Indexer) collisionStage(p1 *Pass1) map[string][]string {
	collisions := p1.Index.Collisions()
	for module, fileIDs := range collisions {
		owner, _ := p1.Index.FileFor(module)
		ix.logger.Warn("module name claimed by several files",
			slog.String("module", module),
			slog.Any("files", fileIDs),
			slog.String("owner", owner))
	}
	return collisions
}

// resolveStage is pass 2. It starts only after pass 1 has been fully
// reduced.
func (ix *Indexer) resolveStage(ctx context.Context, p1 *Pass1) ([]resolver.StageResult, resolver.ResolveStats) {
	_, span := telemetry.Tracer().Start(ctx, "codegraph.pass2")
	defer span.End()
	span.SetAttributes(attribute.Int("pending", len(p1.Pending)))

	pending := resolver.NewPending(p1.Index, p1.Pending, ix.logger)
	stages := resolver.NewDefaultChain(pending).Run(p1.Graph)

	var stats resolver.ResolveStats
	for _, st := range stages {
		if st.Resolver == pending.Name() {
			stats = st.Stats
		}
		if st.Err != nil {
			ix.logger.Warn("resolver stage failed", slog.String("stage", st.Resolver), slog.Any("error", st.Err))
		}
		ix.logger.Debug("resolver stage",
			slog.String("stage", st.Resolver),
			slog.Int("attempted", st.Stats.Attempted),
			slog.Int("resolved", st.Stats.Resolved),
			slog.Int("skipped", st.Stats.Skipped),
			slog.Int("dangling", st.DanglingAfter))
	}
	for kind, ks := range stats.ByKind {
		ix.metrics.ObservePending(kind, ks.Resolved, ks.Dropped)
	}
	span.SetAttributes(
		attribute.Int("resolved", stats.Resolved),
		attribute.Int("dropped", stats.Skipped),
	)
	return stages, stats
}
