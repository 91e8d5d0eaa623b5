package aggregate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/faultline/faultline/internal/metrics"
	"github.com/faultline/faultline/pkg/eventbus"
	"github.com/faultline/faultline/pkg/fingerprint"
	"github.com/faultline/faultline/pkg/logger"
	"github.com/faultline/faultline/pkg/notify"
)

// Store is the incident store surface the aggregator mutates through. Both
// operations are atomic on the store side; the aggregator holds no locks of
// its own across them.
type Store interface {
	RecordOccurrence(ctx context.Context, fp fingerprint.Fingerprint, diagnostic, candidateRef string) (ref string, count int64, created bool, err error)
	IncrementKnown(ctx context.Context, fp fingerprint.Fingerprint) (ref string, count int64, ok bool, err error)
}

// Aggregator coordinates fingerprinting, the store protocol and the
// notification sink for fault reports.
type Aggregator struct {
	store   Store
	sink    notify.Sink
	bus     *eventbus.Bus
	metrics *metrics.Reporter
	log     *logger.Logger
}

// AggregatorConfig wires an aggregator's collaborators. Bus may be nil when
// no live feed is wanted.
type AggregatorConfig struct {
	Store   Store
	Sink    notify.Sink
	Bus     *eventbus.Bus
	Metrics *metrics.Reporter
	Logger  *logger.Logger
}

// NewAggregator creates an aggregation coordinator
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().WithComponent("aggregate")
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewReporter()
	}

	return &Aggregator{
		store:   cfg.Store,
		sink:    cfg.Sink,
		bus:     cfg.Bus,
		metrics: m,
		log:     log,
	}
}

// Report records one fault occurrence: it resolves the diagnostic to an
// incident, creating it and publishing a notification on first sight, or
// incrementing it and rewriting the existing notification's footer on
// recurrence. Failures come back as *ReportError.
func (a *Aggregator) Report(ctx context.Context, rep Report) (Outcome, error) {
	start := time.Now()

	out, err := a.report(ctx, rep)

	outcome := "failed"
	if err == nil {
		if out.Created {
			outcome = "created"
		} else {
			outcome = "recurred"
		}
	}
	a.metrics.RecordReport(outcome, time.Since(start))

	return out, err
}

func (a *Aggregator) report(ctx context.Context, rep Report) (Outcome, error) {
	fp := fingerprint.SumString(rep.Diagnostic)
	log := a.log.WithReportID(uuid.NewString()).With("fingerprint", fp.Hex()[:12])

	// Fast path: the incident already exists, so the upfront UPDATE both
	// answers the existence question and records the occurrence in one
	// indivisible step.
	ref, count, known, err := a.store.IncrementKnown(ctx, fp)
	if err != nil {
		a.metrics.RecordStoreError()
		return Outcome{}, &ReportError{Stage: StageStore, Err: err}
	}

	if known {
		return a.recur(ctx, log, ref, count)
	}

	return a.create(ctx, log, fp, rep)
}

// recur rewrites only the footer of the incident's existing notification so
// it shows the live occurrence count.
func (a *Aggregator) recur(ctx context.Context, log *logger.Logger, ref string, count int64) (Outcome, error) {
	content, err := a.sink.Fetch(ctx, ref)
	if err != nil {
		return Outcome{}, &ReportError{Recorded: true, Stage: StageSinkFetch, Err: err}
	}

	content.FooterText = notify.OccurrenceFooter(count)
	if err := a.sink.Edit(ctx, ref, content); err != nil {
		return Outcome{}, &ReportError{Recorded: true, Stage: StageSinkEdit, Err: err}
	}

	log.Debug("incident recurred", "ref", ref, "count", count)
	a.publish(eventbus.Event{Type: eventbus.TypeIncidentRecurred, Ref: ref, Title: content.Title, Count: count})

	return Outcome{Ref: ref, Count: count}, nil
}

// create publishes a notification speculatively, then lets the store's
// atomic upsert decide whether this caller actually created the incident.
// Losing the race costs one wasted publish plus a delete; it never costs a
// lock held across I/O.
func (a *Aggregator) create(ctx context.Context, log *logger.Logger, fp fingerprint.Fingerprint, rep Report) (Outcome, error) {
	content := notify.Render(rep.Summary, rep.Fields, rep.Author)

	candidate, err := a.sink.Create(ctx, content)
	if err != nil {
		return Outcome{}, &ReportError{Stage: StageSinkCreate, Err: err}
	}

	ref, count, created, err := a.store.RecordOccurrence(ctx, fp, rep.Diagnostic, candidate)
	if err != nil {
		a.metrics.RecordStoreError()
		// The speculative notification is now dangling; discard it so a
		// retried report does not leave duplicates behind.
		if delErr := a.sink.Delete(ctx, candidate); delErr != nil {
			log.Warn("failed to discard notification after store failure", "ref", candidate, "error", delErr)
		}
		return Outcome{}, &ReportError{Stage: StageStore, Err: err}
	}

	if created {
		log.Info("incident created", "ref", ref)
		a.publish(eventbus.Event{Type: eventbus.TypeIncidentCreated, Ref: ref, Title: content.Title, Count: count})
		return Outcome{Ref: ref, Count: count, Created: true}, nil
	}

	// A concurrent reporter won the race: the store already counted this
	// occurrence against the winner's incident, so the only cleanup is the
	// orphaned notification. A failed delete is logged, never fatal; the
	// occurrence is durable either way.
	out := Outcome{Ref: ref, Count: count}
	if err := a.sink.Delete(ctx, candidate); err != nil {
		a.metrics.RecordOrphanDeleteFailed()
		log.Warn("failed to delete orphaned notification", "ref", candidate, "error", err)
	} else {
		a.metrics.RecordOrphanDeleted()
		out.OrphanDeleted = true
	}
	log.Debug("lost create race", "winner", ref, "orphan", candidate, "count", count)

	return out, nil
}

func (a *Aggregator) publish(evt eventbus.Event) {
	if a.bus != nil {
		a.bus.Publish(evt)
	}
}
