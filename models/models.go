// krabbel/models/models.go
package models

import (
	"errors"
	"time"
)

// --- Core Data Models ---

type PostType string

const (
	TypeAdmin     PostType = "admin"
	TypeGuestbook PostType = "guestbook"
)

type PostStatus string

const (
	StatusPending  PostStatus = "pending"
	StatusApproved PostStatus = "approved"
	StatusRejected PostStatus = "rejected"
)

// Post is a single guestbook entry or admin text block.
type Post struct {
	ID        string     `json:"id"`
	Type      PostType   `json:"type"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	Image     string     `json:"image,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Status    PostStatus `json:"status"`
	IP        string     `json:"ip,omitempty"` // admin views only
}

// NewPostPayload is what the submission workflow hands to the store.
// ID and Timestamp are assigned by the store.
type NewPostPayload struct {
	Author  string
	Content string
	Image   string
	Type    PostType
	Status  PostStatus
	Origin  string // client address as seen by the server, may be empty
}

type FormInput struct {
	Author    string
	Content   string
	WithImage bool
}

// --- Moderation & System Models ---

type ModAction struct {
	ID            int64
	Timestamp     time.Time
	ModeratorHash string
	Action        string
	TargetID      string
	Details       string
}

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrInvalidStatus     = errors.New("status must be approved or rejected")
	ErrUnknownAction     = errors.New("unknown moderation action")
	ErrIllegalTransition = errors.New("illegal view transition")
)
