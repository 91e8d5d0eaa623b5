package notify

import "context"

// Sink is the external notification surface the aggregation core publishes
// to. Implementations host one editable message per incident and deliver
// diagnostic artifacts on demand.
//
// Refs are opaque to the core; a sink may hand out event IDs, message IDs or
// URLs as long as they stay stable for a notification's lifetime.
type Sink interface {
	// Create publishes a new notification and returns its ref.
	Create(ctx context.Context, content Content) (ref string, err error)

	// Fetch returns the current content of an existing notification.
	Fetch(ctx context.Context, ref string) (Content, error)

	// Edit replaces the content of an existing notification.
	Edit(ctx context.Context, ref string, content Content) error

	// Delete removes a notification. Used to discard orphans published by
	// a losing concurrent create.
	Delete(ctx context.Context, ref string) error

	// SendArtifact delivers a named file to the given reply target.
	SendArtifact(ctx context.Context, target string, data []byte, filename string) error
}
