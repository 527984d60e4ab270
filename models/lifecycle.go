package models

import "fmt"

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// InitialStatus is the moderation bypass rule: admin content is published
// immediately, everything else waits in the queue.
func InitialStatus(t PostType) PostStatus {
	if t == TypeAdmin {
		return StatusApproved
	}
	return StatusPending
}

// Transition returns the status a post moves to under a moderation action.
// Re-deciding an approved or rejected post is allowed; nothing ever moves a
// post back to pending.
func Transition(_ Post, action Action) (PostStatus, error) {
	switch action {
	case ActionApprove:
		return StatusApproved, nil
	case ActionReject:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// ValidDecision reports whether s is a status an admin may set.
func ValidDecision(s PostStatus) bool {
	return s == StatusApproved || s == StatusRejected
}
