package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/faultline/faultline/internal/metrics"
	"github.com/faultline/faultline/pkg/eventbus"
	"github.com/faultline/faultline/pkg/incident"
	"github.com/faultline/faultline/pkg/logger"
	"github.com/faultline/faultline/pkg/notify"
)

// ArtifactFilename is the name diagnostic artifacts are delivered under.
const ArtifactFilename = "traceback.txt"

// Artifact is a retrievable diagnostic packaged as a named file.
type Artifact struct {
	Filename string
	Data     []byte
}

// DiagnosticSource is the read-only store surface the retriever uses.
type DiagnosticSource interface {
	LookupDiagnostic(ctx context.Context, ref string) (string, error)
}

// Retriever serves full diagnostic detail on demand, keyed by notification
// ref. It is read-only and needs no coordination with concurrent reports.
type Retriever struct {
	source  DiagnosticSource
	sink    notify.Sink
	bus     *eventbus.Bus
	metrics *metrics.Reporter
	log     *logger.Logger
}

// RetrieverConfig wires a retriever's collaborators. Bus may be nil.
type RetrieverConfig struct {
	Source  DiagnosticSource
	Sink    notify.Sink
	Bus     *eventbus.Bus
	Metrics *metrics.Reporter
	Logger  *logger.Logger
}

// NewRetriever creates a detail retriever
func NewRetriever(cfg RetrieverConfig) *Retriever {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().WithComponent("retrieve")
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewReporter()
	}

	return &Retriever{
		source:  cfg.Source,
		sink:    cfg.Sink,
		bus:     cfg.Bus,
		metrics: m,
		log:     log,
	}
}

// Retrieve looks up the stored diagnostic for a notification ref. A nil
// artifact with nil error is the absent sentinel: no incident owns the ref,
// and the caller renders its own "not found" response.
func (r *Retriever) Retrieve(ctx context.Context, ref string) (*Artifact, error) {
	diagnostic, err := r.source.LookupDiagnostic(ctx, ref)
	if errors.Is(err, incident.ErrNotFound) {
		r.metrics.RecordRetrieval("absent")
		return nil, nil
	}
	if err != nil {
		r.metrics.RecordStoreError()
		return nil, fmt.Errorf("retrieve diagnostic: %w", err)
	}

	r.metrics.RecordRetrieval("served")
	return &Artifact{
		Filename: ArtifactFilename,
		Data:     []byte(diagnostic),
	}, nil
}

// Serve retrieves the diagnostic for ref and delivers it to the reply
// target through the sink. found is false when no incident owns the ref; no
// sink call is made in that case.
func (r *Retriever) Serve(ctx context.Context, target, ref string) (found bool, err error) {
	artifact, err := r.Retrieve(ctx, ref)
	if err != nil {
		return false, err
	}
	if artifact == nil {
		return false, nil
	}

	if err := r.sink.SendArtifact(ctx, target, artifact.Data, artifact.Filename); err != nil {
		return true, fmt.Errorf("serve diagnostic: %w", err)
	}

	r.log.Debug("diagnostic served", "ref", ref, "bytes", len(artifact.Data))
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeDetailServed, Ref: ref})
	}

	return true, nil
}
