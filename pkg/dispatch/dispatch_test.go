package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/faultline/faultline/pkg/aggregate"
	"github.com/faultline/faultline/pkg/notify"
	"github.com/faultline/faultline/pkg/sysprobe"
)

type recordingReporter struct {
	reports []aggregate.Report
	err     error
}

func (r *recordingReporter) Report(ctx context.Context, rep aggregate.Report) (aggregate.Outcome, error) {
	r.reports = append(r.reports, rep)
	if r.err != nil {
		return aggregate.Outcome{}, r.err
	}
	return aggregate.Outcome{Ref: "$evt1", Count: 1, Created: true}, nil
}

type recordingResponder struct {
	targets  []string
	messages []string
	err      error
}

func (r *recordingResponder) SendError(ctx context.Context, target, message, fix string) error {
	r.targets = append(r.targets, target)
	r.messages = append(r.messages, message)
	return r.err
}

type fixedSampler struct {
	sample sysprobe.Sample
	err    error
}

func (f fixedSampler) Sample() (sysprobe.Sample, error) {
	return f.sample, f.err
}

func TestHandle_UserFacingNeverAggregates(t *testing.T) {
	kinds := []Kind{KindNotPermitted, KindCooldown, KindBadArgument, KindMissingPerms}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			reporter := &recordingReporter{}
			responder := &recordingResponder{}
			h := NewHandler(HandlerConfig{Reporter: reporter, Responder: responder})

			err := h.Handle(context.Background(), Fault{
				Kind:    kind,
				Summary: "you cannot run this here",
				Detail:  "try a different room",
				ReplyTo: "!room:example.com",
			})
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if len(reporter.reports) != 0 {
				t.Error("user-facing fault reached the aggregator")
			}
			if len(responder.messages) != 1 || responder.messages[0] != "you cannot run this here" {
				t.Errorf("responses = %v", responder.messages)
			}
		})
	}
}

func TestHandle_UnexpectedAggregates(t *testing.T) {
	reporter := &recordingReporter{}
	responder := &recordingResponder{}
	h := NewHandler(HandlerConfig{
		Reporter:  reporter,
		Responder: responder,
		Sampler:   fixedSampler{sample: sysprobe.Sample{Load5: 0.42, UsedMemMB: 2048}},
		AppUser:   "faultline-bot",
	})

	err := h.Handle(context.Background(), Fault{
		Kind:       KindUnexpected,
		Event:      "command",
		Summary:    "runtime error: nil pointer",
		Diagnostic: "goroutine 1 [running]:\nmain.run()",
		Fields:     []notify.Field{{Name: "Command", Value: "deploy", Inline: true}},
		ActorName:  "alice",
		ReplyTo:    "!room:example.com",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(reporter.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reporter.reports))
	}
	rep := reporter.reports[0]

	if rep.Diagnostic != "goroutine 1 [running]:\nmain.run()" {
		t.Errorf("Diagnostic = %q", rep.Diagnostic)
	}
	if rep.Author == nil || rep.Author.Name != "alice" {
		t.Errorf("Author = %+v", rep.Author)
	}

	// Standard frame: Event, App User, spacer, caller extras, resources.
	wantNames := []string{"Event", "App User", notify.Blank, "Command", "CPU Usage (5 minutes)", "System Memory Usage"}
	if len(rep.Fields) != len(wantNames) {
		t.Fatalf("field count = %d, want %d (%+v)", len(rep.Fields), len(wantNames), rep.Fields)
	}
	for i, want := range wantNames {
		if rep.Fields[i].Name != want {
			t.Errorf("field[%d].Name = %q, want %q", i, rep.Fields[i].Name, want)
		}
	}
	if rep.Fields[4].Value != "0.42" {
		t.Errorf("CPU field = %q, want 0.42", rep.Fields[4].Value)
	}
	if rep.Fields[5].Value != "2048 MB" {
		t.Errorf("memory field = %q, want 2048 MB", rep.Fields[5].Value)
	}

	// The waiting user got the generic acknowledgement.
	if len(responder.messages) != 1 || responder.messages[0] != "an unknown error occurred" {
		t.Errorf("responses = %v", responder.messages)
	}
}

func TestHandle_SamplerFailureSkipsResourceFields(t *testing.T) {
	reporter := &recordingReporter{}
	h := NewHandler(HandlerConfig{
		Reporter: reporter,
		Sampler:  fixedSampler{err: errors.New("no procfs")},
		AppUser:  "faultline-bot",
	})

	err := h.Handle(context.Background(), Fault{Kind: KindUnexpected, Summary: "boom", Diagnostic: "stack"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	for _, f := range reporter.reports[0].Fields {
		if f.Name == "CPU Usage (5 minutes)" {
			t.Error("resource fields present despite sampler failure")
		}
	}
}

func TestHandle_ReportFailurePropagates(t *testing.T) {
	reporter := &recordingReporter{err: errors.New("store down")}
	responder := &recordingResponder{}
	h := NewHandler(HandlerConfig{Reporter: reporter, Responder: responder})

	err := h.Handle(context.Background(), Fault{
		Kind:       KindUnexpected,
		Summary:    "boom",
		Diagnostic: "stack",
		ReplyTo:    "!room:example.com",
	})
	if err == nil {
		t.Fatal("Handle() should surface aggregation failures")
	}

	// The user is still acknowledged before the failure bubbles up.
	if len(responder.messages) != 1 {
		t.Errorf("responses = %v, want one acknowledgement", responder.messages)
	}
}

func TestHandle_NoReplyTarget(t *testing.T) {
	reporter := &recordingReporter{}
	responder := &recordingResponder{}
	h := NewHandler(HandlerConfig{Reporter: reporter, Responder: responder})

	err := h.Handle(context.Background(), Fault{Kind: KindUnexpected, Summary: "boom", Diagnostic: "stack"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(responder.messages) != 0 {
		t.Errorf("responses = %v, want none for background faults", responder.messages)
	}
}

func TestKind_UserFacing(t *testing.T) {
	if KindUnexpected.UserFacing() {
		t.Error("KindUnexpected should not be user-facing")
	}
	if !KindCooldown.UserFacing() {
		t.Error("KindCooldown should be user-facing")
	}
}
