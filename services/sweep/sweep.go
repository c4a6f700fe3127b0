package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"procheck-sweep/lib/retrier"
	"procheck-sweep/lib/scrapers/procheck"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/sweep")

// Session is one sequential conversation with the portal. The concrete
// implementation is procheck.Client; tests substitute a fake so the
// orchestrator's control flow can be exercised without the portal.
type Session interface {
	Initialize(ctx context.Context) error
	Search(ctx context.Context, prefix string) ([]procheck.Agent, error)
	Drillthrough(ctx context.Context, drillID string) (procheck.ContactInfo, error)
}

type Options struct {
	Session    Session
	Checkpoint *CheckpointStore
	Sink       Sink
	Retry      retrier.Policy

	// ordered query space, usually Prefixes(letters)
	Prefixes []string
	// run the drillthrough phase after the surface sweep
	Deep bool

	// surface prefixes between dedupe+flush cycles, default 26
	FlushEvery int
	// deep records between flushes, default 50
	DeepFlushEvery int
	// a two-letter query returning at least this many rows is suspected
	// of still being truncated by the server cap, default 300
	CapWarnThreshold int
}

// Report summarizes a finished run. Per-unit failures are absorbed into
// the checkpoint, they never abort the run.
type Report struct {
	UniqueAgents    int
	SkippedPrefixes int
	FailedPrefixes  []string
	DeepEnriched    int
	DeepFailed      int
}

type Orchestrator struct {
	opts Options

	// records accumulated by the surface phase of this run; the sink is
	// the durable superset, this is only a flush buffer
	accumulated []procheck.Agent
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 26
	}
	if opts.DeepFlushEvery <= 0 {
		opts.DeepFlushEvery = 50
	}
	if opts.CapWarnThreshold <= 0 {
		opts.CapWarnThreshold = 300
	}
	return &Orchestrator{opts: opts}
}

// Run executes the surface phase and, when configured, the deep phase.
// Both phases resume from the checkpoint: completed units are skipped
// without issuing any request. A checkpoint or sink persistence failure
// is fatal to the whole run, continuing without durable progress would
// risk silent duplicate work after the next crash.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:Run")
	defer span.End()

	var report Report

	err := o.opts.Retry.Do(ctx, "initialize", o.opts.Session.Initialize, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session initialization failed")
		return report, err
	}

	err = o.runSurface(ctx, &report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "surface phase failed")
		return report, err
	}

	if o.opts.Deep {
		err = o.runDeep(ctx, &report)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "deep phase failed")
			return report, err
		}
	}

	span.SetAttributes(
		attribute.Int("unique_agents", report.UniqueAgents),
		attribute.Int("failed_prefixes", len(report.FailedPrefixes)),
	)
	return report, nil
}

// flush deduplicates this run's buffer and overwrites the sink snapshot,
// then persists the checkpoint so sink and checkpoint never drift apart
// by more than one flush interval.
func (o *Orchestrator) flush(ctx context.Context) error {
	o.accumulated = Deduplicate(o.accumulated)
	err := o.opts.Sink.SaveSnapshot(ctx, o.accumulated)
	if err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	err = o.opts.Checkpoint.Save()
	if err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}

func (o *Orchestrator) runSurface(ctx context.Context, report *Report) error {
	ctx, span := tracer.Start(ctx, "orchestrator:runSurface")
	defer span.End()

	cp := o.opts.Checkpoint
	total := len(o.opts.Prefixes)
	sinceFlush := 0

	for i, prefix := range o.opts.Prefixes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cp.IsQueryDone(prefix) {
			report.SkippedPrefixes++
			continue
		}

		slog.InfoContext(
			ctx, "searching prefix",
			"prefix", prefix, "n", i+1, "total", total,
		)

		var results []procheck.Agent
		err := o.opts.Retry.Do(
			ctx,
			fmt.Sprintf("search %q", prefix),
			func(ctx context.Context) error {
				r, err := o.opts.Session.Search(ctx, prefix)
				if err != nil {
					return err
				}
				results = r
				return nil
			},
			o.opts.Session.Initialize,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "prefix failed, skipping", "prefix", prefix, "err", err)
			if ferr := cp.MarkQueryFailed(prefix); ferr != nil {
				return fmt.Errorf("persist checkpoint: %w", ferr)
			}
			report.FailedPrefixes = append(report.FailedPrefixes, prefix)
			continue
		}

		if len(prefix) >= 2 && len(results) >= o.opts.CapWarnThreshold {
			// the enumeration strategy assumes two letters is always
			// narrow enough to stay under the server's result cap;
			// surface it when that assumption looks wrong
			slog.WarnContext(
				ctx, "two-letter prefix may still be capped by the server",
				"prefix", prefix, "rows", len(results),
			)
		}

		for j := range results {
			results[j].City = NormalizeCity(results[j].City)
			results[j].QualityScore = QualityScore(results[j])
		}
		o.accumulated = append(o.accumulated, results...)

		if err := cp.MarkQueryDone(prefix, len(results)); err != nil {
			return fmt.Errorf("persist checkpoint: %w", err)
		}
		if len(results) > 0 {
			slog.InfoContext(
				ctx, "prefix done",
				"prefix", prefix, "rows", len(results),
				"accumulated", len(o.accumulated),
			)
		}

		sinceFlush++
		if sinceFlush >= o.opts.FlushEvery {
			if err := o.flush(ctx); err != nil {
				return err
			}
			sinceFlush = 0
		}
	}

	if err := o.flush(ctx); err != nil {
		return err
	}

	report.UniqueAgents = len(o.accumulated)
	if report.SkippedPrefixes > 0 {
		slog.InfoContext(
			ctx, "skipped already-completed prefixes",
			"skipped", report.SkippedPrefixes,
		)
	}
	return nil
}

func (o *Orchestrator) runDeep(ctx context.Context, report *Report) error {
	ctx, span := tracer.Start(ctx, "orchestrator:runDeep")
	defer span.End()

	cp := o.opts.Checkpoint
	if err := cp.SetPhase(PhaseDeep); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}

	// the sink is the durable superset across runs, the in-memory buffer
	// only holds what this run saw
	agents, err := o.opts.Sink.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents for deep phase: %w", err)
	}

	var batch []procheck.Agent
	total := len(agents)

	for i, agent := range agents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if agent.DrillID == "" {
			continue
		}
		if cp.IsDeepDone(agent.DrillID) {
			continue
		}

		slog.InfoContext(
			ctx, "drilling into record",
			"name", agent.FullName, "n", i+1, "total", total,
		)

		var info procheck.ContactInfo
		err := o.opts.Retry.Do(
			ctx,
			fmt.Sprintf("drillthrough %q", agent.FullName),
			func(ctx context.Context) error {
				ci, err := o.opts.Session.Drillthrough(ctx, agent.DrillID)
				if err != nil {
					return err
				}
				info = ci
				return nil
			},
			o.opts.Session.Initialize,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// record absent contact info and move on, one permanently
			// broken record must not wedge the phase
			slog.WarnContext(ctx, "drillthrough failed", "name", agent.FullName, "err", err)
			report.DeepFailed++
			info = procheck.ContactInfo{}
		}

		if ValidEmail(info.Email) {
			agent.Email = info.Email
		}
		agent.Phone = info.Phone
		agent.QualityScore = QualityScore(agent)
		if agent.Email != "" {
			report.DeepEnriched++
		}
		batch = append(batch, agent)

		if err := cp.MarkDeepDone(agent.DrillID); err != nil {
			return fmt.Errorf("persist checkpoint: %w", err)
		}

		if len(batch) >= o.opts.DeepFlushEvery {
			if err := o.opts.Sink.SaveSnapshot(ctx, batch); err != nil {
				return fmt.Errorf("flush deep batch: %w", err)
			}
			if err := cp.Save(); err != nil {
				return fmt.Errorf("persist checkpoint: %w", err)
			}
			batch = nil
		}
	}

	if len(batch) > 0 {
		if err := o.opts.Sink.SaveSnapshot(ctx, batch); err != nil {
			return fmt.Errorf("flush deep batch: %w", err)
		}
	}
	if err := cp.Save(); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}

	slog.InfoContext(
		ctx, "deep phase complete",
		"enriched", report.DeepEnriched,
		"failed", report.DeepFailed,
	)
	return nil
}
