// Package aggregate deduplicates fault occurrences into tracked incidents
// and keeps one operator notification per incident in step with the store.
package aggregate

import (
	"fmt"

	"github.com/faultline/faultline/pkg/notify"
)

// Report is the ephemeral input to one aggregation cycle. It is never
// persisted; only the diagnostic text survives inside the incident record.
type Report struct {
	// Diagnostic is the full fault detail (stack trace) the incident is
	// keyed on.
	Diagnostic string `json:"diagnostic"`

	// Summary is the short human-readable fault description used as the
	// notification title.
	Summary string `json:"summary"`

	// Fields are contextual display fields supplied by the host dispatch
	// layer.
	Fields []notify.Field `json:"fields,omitempty"`

	// Author optionally attributes the fault to the actor whose action
	// surfaced it.
	Author *notify.Author `json:"author,omitempty"`
}

// Outcome describes what one report call did.
type Outcome struct {
	// Ref is the authoritative notification ref for the incident.
	Ref string `json:"ref"`

	// Count is the incident's occurrence count after this call. For a
	// caller that lost the create race it reflects the already-incremented
	// authoritative count, not 1.
	Count int64 `json:"count"`

	// Created is true when this call created the incident.
	Created bool `json:"created"`

	// OrphanDeleted is true when this call published speculatively, lost
	// the race, and successfully discarded its orphan notification.
	OrphanDeleted bool `json:"orphan_deleted,omitempty"`
}

// Stages at which a report call can fail.
const (
	StageStore      = "store"
	StageSinkCreate = "sink.create"
	StageSinkFetch  = "sink.fetch"
	StageSinkEdit   = "sink.edit"
)

// ReportError is a typed report failure. Recorded tells the caller whether
// the occurrence made it into the store before the failure, so the host can
// distinguish "nothing was recorded" from "recorded but the notification
// update failed" when deciding what to surface.
type ReportError struct {
	Recorded bool
	Stage    string
	Err      error
}

func (e *ReportError) Error() string {
	if e.Recorded {
		return fmt.Sprintf("occurrence recorded but %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("nothing recorded, %s failed: %v", e.Stage, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}
