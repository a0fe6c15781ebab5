package schemas

import (
	"fmt"
	"strings"
)

// ActionKind enumerates the mutating actions a session can perform.
type ActionKind string

const (
	ActionPost     ActionKind = "post"
	ActionRepost   ActionKind = "repost"
	ActionComment  ActionKind = "comment"
	ActionLike     ActionKind = "like"
	ActionFollow   ActionKind = "follow"
	ActionUnfollow ActionKind = "unfollow"
)

// Valid reports whether k is one of the supported action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionPost, ActionRepost, ActionComment, ActionLike, ActionFollow, ActionUnfollow:
		return true
	}
	return false
}

// CommandRequest is the raw, unvalidated form of a command as it arrives from
// the planning layer. Target carries either a bare account id (follow/unfollow)
// or an "account_id/item_id" reference (repost/comment/like).
type CommandRequest struct {
	AccountID string     `json:"agent_id"`
	Kind      ActionKind `json:"action_type"`
	Content   string     `json:"action_content,omitempty"`
	Target    string     `json:"target_object,omitempty"`
}

// Command is a validated command ready for execution. Exactly one of
// TargetRef/TargetAccount is populated for targeted kinds; post uses neither.
type Command struct {
	AccountID     string     `json:"agent_id"`
	Kind          ActionKind `json:"action_type"`
	Content       string     `json:"action_content,omitempty"`
	TargetRef     *ItemRef   `json:"target_ref,omitempty"`
	TargetAccount string     `json:"target_account,omitempty"`
}

// ItemRef is the composite identity of a single posted item. It is the dedup
// key used throughout the system.
type ItemRef struct {
	AccountID string `json:"uid"`
	ItemID    string `json:"weibo_id"`
}

// String renders the canonical "account_id/item_id" form.
func (r ItemRef) String() string { return r.AccountID + "/" + r.ItemID }

// ParseItemRef splits a raw "account_id/item_id" reference exactly once on the
// first "/". A missing separator or empty half is a validation error, never a
// panic.
func ParseItemRef(raw string) (ItemRef, error) {
	account, item, found := strings.Cut(raw, "/")
	if !found {
		return ItemRef{}, fmt.Errorf("item reference %q: missing '/' separator", raw)
	}
	if account == "" || item == "" {
		return ItemRef{}, fmt.Errorf("item reference %q: empty account or item id", raw)
	}
	return ItemRef{AccountID: account, ItemID: item}, nil
}
