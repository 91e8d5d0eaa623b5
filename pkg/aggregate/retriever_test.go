package aggregate

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/faultline/faultline/pkg/incident"
)

func newTestRetriever(t *testing.T) (*Retriever, *Aggregator, *fakeSink) {
	t.Helper()
	store := newTestStore(t)
	sink := newFakeSink()
	agg := NewAggregator(AggregatorConfig{Store: store, Sink: sink})
	ret := NewRetriever(RetrieverConfig{Source: store, Sink: sink})
	return ret, agg, sink
}

func TestRetrieve_AfterReport(t *testing.T) {
	ret, agg, _ := newTestRetriever(t)
	ctx := context.Background()

	trace := "goroutine 3 [running]:\nmain.apply(0x0)\n\t/app/apply.go:17 +0x2f"
	out, err := agg.Report(ctx, Report{Diagnostic: trace, Summary: "boom"})
	if err != nil {
		t.Fatal(err)
	}

	artifact, err := ret.Retrieve(ctx, out.Ref)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if artifact == nil {
		t.Fatal("Retrieve() returned absent for a live incident")
	}
	if artifact.Filename != ArtifactFilename {
		t.Errorf("Filename = %q, want %q", artifact.Filename, ArtifactFilename)
	}
	// Byte-for-byte the diagnostic of the first occurrence.
	if !bytes.Equal(artifact.Data, []byte(trace)) {
		t.Errorf("Data = %q, want original trace", artifact.Data)
	}
}

func TestRetrieve_UnknownRef(t *testing.T) {
	ret, _, _ := newTestRetriever(t)

	artifact, err := ret.Retrieve(context.Background(), "$unknown")
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want nil for absent ref", err)
	}
	if artifact != nil {
		t.Errorf("artifact = %+v, want absent sentinel", artifact)
	}
}

type failSource struct{}

func (failSource) LookupDiagnostic(ctx context.Context, ref string) (string, error) {
	return "", errors.New("database is locked")
}

func TestRetrieve_StoreUnavailable(t *testing.T) {
	ret := NewRetriever(RetrieverConfig{Source: failSource{}, Sink: newFakeSink()})

	_, err := ret.Retrieve(context.Background(), "$ref")
	if err == nil {
		t.Fatal("Retrieve() should surface store failures")
	}
}

func TestServe(t *testing.T) {
	ret, agg, sink := newTestRetriever(t)
	ctx := context.Background()

	trace := "panic: index out of range"
	out, err := agg.Report(ctx, Report{Diagnostic: trace, Summary: "boom"})
	if err != nil {
		t.Fatal(err)
	}

	found, err := ret.Serve(ctx, "!ops:example.com", out.Ref)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if !found {
		t.Error("found = false for a live incident")
	}

	if got := sink.sent[ArtifactFilename]; !bytes.Equal(got, []byte(trace)) {
		t.Errorf("sent artifact = %q, want original trace", got)
	}
}

func TestServe_Absent(t *testing.T) {
	ret, _, sink := newTestRetriever(t)

	found, err := ret.Serve(context.Background(), "!ops:example.com", "$unknown")
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if found {
		t.Error("found = true for an unknown ref")
	}
	if len(sink.sent) != 0 {
		t.Error("Serve() should not touch the sink for an absent ref")
	}
}

// The real store must back both coordinator surfaces.
var (
	_ Store            = (*incident.Store)(nil)
	_ DiagnosticSource = (*incident.Store)(nil)
)
