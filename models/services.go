// krabbel/models/services.go
package models

import "context"

// --- Service Boundaries ---

// PostStore persists posts. ListPosts never fails towards the caller: read
// errors are logged and yield an empty slice.
type PostStore interface {
	ListPosts(ctx context.Context) []Post
	CreatePost(ctx context.Context, payload NewPostPayload) (Post, error)
	UpdateStatus(ctx context.Context, id string, status PostStatus) error
	DeletePost(ctx context.Context, id string) error
}

// Authenticator manages admin sessions. Login reports false for bad
// credentials and for store failures alike.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (token string, ok bool)
	CheckSession(ctx context.Context, token string) bool
	Logout(ctx context.Context, token string)
}

// SiteSettings stores the header ticker text.
type SiteSettings interface {
	Ticker(ctx context.Context) string
	UpdateTicker(ctx context.Context, text string) error
}

// AuditLog records admin actions.
type AuditLog interface {
	RecordAction(ctx context.Context, modHash, action, targetID, details string) error
	RecentActions(ctx context.Context, limit int) ([]ModAction, error)
}

// Backend is everything the application needs from its persistence layer.
type Backend interface {
	PostStore
	Authenticator
	SiteSettings
	AuditLog
}

// Backupper is implemented by backends that can snapshot themselves to a file.
type Backupper interface {
	BackupDatabase(ctx context.Context) (string, error)
}

// StorageService stores backup artifacts.
type StorageService interface {
	SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	DeleteFile(ctx context.Context, path string) error
	// ListFiles returns the stored names starting with prefix, sorted.
	ListFiles(ctx context.Context, prefix string) ([]string, error)
}
