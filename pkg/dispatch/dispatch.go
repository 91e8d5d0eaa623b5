// Package dispatch is the host-facing boundary of fault handling. It
// classifies faults from the host application's dispatch layer: expected,
// user-facing kinds get a direct response and never enter aggregation;
// unexpected faults are framed with contextual fields and forwarded to the
// aggregation coordinator.
package dispatch

import (
	"context"
	"fmt"

	"github.com/faultline/faultline/pkg/aggregate"
	"github.com/faultline/faultline/pkg/logger"
	"github.com/faultline/faultline/pkg/notify"
	"github.com/faultline/faultline/pkg/sysprobe"
)

// Kind classifies a fault.
type Kind string

const (
	// KindUnexpected marks faults that enter aggregation.
	KindUnexpected Kind = "unexpected"

	// Expected, user-facing kinds. These are answered directly and never
	// reach the incident store.
	KindNotPermitted Kind = "not_permitted"
	KindCooldown     Kind = "cooldown"
	KindBadArgument  Kind = "bad_argument"
	KindMissingPerms Kind = "missing_permissions"
)

// UserFacing reports whether the kind is answered directly to the user
// instead of being aggregated.
func (k Kind) UserFacing() bool {
	switch k {
	case KindNotPermitted, KindCooldown, KindBadArgument, KindMissingPerms:
		return true
	}
	return false
}

// Fault is one fault event handed over by the host dispatch layer.
type Fault struct {
	Kind Kind

	// Event names the host event that faulted ("command", "message", ...).
	Event string

	// Summary is the short fault description; for user-facing kinds it is
	// the message shown to the user.
	Summary string

	// Detail optionally suggests a fix for user-facing kinds.
	Detail string

	// Diagnostic is the full stack trace for unexpected faults.
	Diagnostic string

	// Fields are caller-supplied contextual display fields.
	Fields []notify.Field

	// ActorName and ActorIcon attribute the fault to the user whose
	// action surfaced it.
	ActorName string
	ActorIcon string

	// ReplyTo is where user-facing responses are delivered. Empty means
	// no user is waiting (background event).
	ReplyTo string
}

// Responder delivers user-facing fault messages for the host.
type Responder interface {
	SendError(ctx context.Context, target, message, fix string) error
}

// Reporter is the aggregation surface the handler forwards to.
type Reporter interface {
	Report(ctx context.Context, rep aggregate.Report) (aggregate.Outcome, error)
}

// Sampler supplies host resource readings for notification context.
type Sampler interface {
	Sample() (sysprobe.Sample, error)
}

// Handler routes classified faults.
type Handler struct {
	reporter  Reporter
	responder Responder
	sampler   Sampler
	appUser   string
	log       *logger.Logger
}

// HandlerConfig wires a handler's collaborators. Responder and Sampler may
// be nil; user-facing responses and resource fields are skipped then.
type HandlerConfig struct {
	Reporter  Reporter
	Responder Responder
	Sampler   Sampler

	// AppUser is the host application's own user name, shown on
	// notifications.
	AppUser string

	Logger *logger.Logger
}

// NewHandler creates a fault handler
func NewHandler(cfg HandlerConfig) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().WithComponent("dispatch")
	}

	return &Handler{
		reporter:  cfg.Reporter,
		responder: cfg.Responder,
		sampler:   cfg.Sampler,
		appUser:   cfg.AppUser,
		log:       log,
	}
}

// Handle routes one fault. User-facing kinds are answered and dropped;
// unexpected faults are aggregated and the user, if any, gets a generic
// acknowledgement.
func (h *Handler) Handle(ctx context.Context, f Fault) error {
	if f.Kind.UserFacing() {
		return h.respond(ctx, f.ReplyTo, f.Summary, f.Detail)
	}

	_, err := h.reporter.Report(ctx, aggregate.Report{
		Diagnostic: f.Diagnostic,
		Summary:    f.Summary,
		Fields:     h.frameFields(f),
		Author:     h.author(f),
	})
	if err != nil {
		// The user still deserves an answer before the failure bubbles up.
		if respErr := h.respond(ctx, f.ReplyTo, "an unknown error occurred", ""); respErr != nil {
			h.log.Warn("failed to acknowledge fault to user", "error", respErr)
		}
		return fmt.Errorf("aggregate fault: %w", err)
	}

	return h.respond(ctx, f.ReplyTo, "an unknown error occurred", "")
}

// frameFields wraps the caller's fields with the leading and trailing
// context every unexpected-fault notification carries.
func (h *Handler) frameFields(f Fault) []notify.Field {
	fields := []notify.Field{
		{Name: "Event", Value: f.Event, Inline: true},
		{Name: "App User", Value: h.appUser, Inline: true},
		notify.BlankField(),
	}
	fields = append(fields, f.Fields...)

	if h.sampler != nil {
		if s, err := h.sampler.Sample(); err != nil {
			h.log.Warn("resource sample failed", "error", err)
		} else {
			fields = append(fields,
				notify.Field{Name: "CPU Usage (5 minutes)", Value: fmt.Sprintf("%.2f", s.Load5), Inline: true},
				notify.Field{Name: "System Memory Usage", Value: fmt.Sprintf("%d MB", s.UsedMemMB), Inline: true},
			)
		}
	}

	return fields
}

func (h *Handler) author(f Fault) *notify.Author {
	if f.ActorName == "" {
		return nil
	}
	return &notify.Author{Name: f.ActorName, IconURL: f.ActorIcon}
}

func (h *Handler) respond(ctx context.Context, target, message, fix string) error {
	if h.responder == nil || target == "" {
		return nil
	}
	if err := h.responder.SendError(ctx, target, message, fix); err != nil {
		return fmt.Errorf("send user response: %w", err)
	}
	return nil
}
