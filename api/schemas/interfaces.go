package schemas

import (
	"context"
	"time"
)

// ActionRecord is one append-only row emitted for a successful mutating
// action. The core emits exactly one record per confirmed success and none
// for failures.
type ActionRecord struct {
	Kind       ActionKind `json:"kind"`
	AccountID  string     `json:"account_id"`
	ActorName  string     `json:"actor_name"`
	OccurredAt time.Time  `json:"occurred_at"`
	// Content is the action text, if the kind carries one.
	Content string `json:"content,omitempty"`
	// TargetRef is the acted-on object: "account_id/item_id" for item
	// actions, a bare account id for follow/unfollow, the new item id for post.
	TargetRef string `json:"target_ref,omitempty"`
	// TargetText is the confirmed body text of the target item, if any.
	TargetText string `json:"target_text,omitempty"`
}

// Recorder is the port to the external action-log collaborator.
type Recorder interface {
	Record(ctx context.Context, rec ActionRecord) error
}

// NopRecorder discards records. Used when the action log is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, ActionRecord) error { return nil }
