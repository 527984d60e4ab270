package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"krabbel/config"

	"golang.org/x/time/rate"
)

var (
	ErrBackupUnsupported = errors.New("backend cannot create backups")
	ErrBackupThrottled   = errors.New("backup requested too soon")
)

// AppState owns the in-memory snapshot of the post collection. Every
// mutation goes through one method here so the three projections are always
// computed from the same snapshot.
type AppState struct {
	backend Backend
	logger  *slog.Logger
	tokens  *FormTokens
	backups *rate.Limiter

	// writeMu serializes store writes with the snapshot swaps that follow
	// them, so a refresh never lands a list read before a mutation.
	writeMu sync.Mutex

	mu    sync.RWMutex
	posts []Post
}

// NewAppState creates an empty state. Call Refresh to load it.
func NewAppState(backend Backend, logger *slog.Logger) *AppState {
	return &AppState{
		backend: backend,
		logger:  logger.With("component", "state"),
		tokens:  NewFormTokens(config.FormTokenTTL),
		backups: rate.NewLimiter(rate.Inf, 1),
	}
}

func (s *AppState) Backend() Backend { return s.backend }

// Refresh replaces the snapshot wholesale with the store's current list.
func (s *AppState) Refresh(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.refreshLocked(ctx)
}

// refreshLocked requires writeMu.
func (s *AppState) refreshLocked(ctx context.Context) {
	posts := s.backend.ListPosts(ctx)
	fresh := make([]Post, len(posts))
	copy(fresh, posts)

	s.mu.Lock()
	s.posts = fresh
	s.mu.Unlock()
}

// Snapshot returns a copy of the whole collection.
func (s *AppState) Snapshot() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Post, len(s.posts))
	copy(out, s.posts)
	return out
}

func (s *AppState) Feed() []Post         { return Feed(s.Snapshot()) }
func (s *AppState) PendingQueue() []Post { return PendingQueue(s.Snapshot()) }
func (s *AppState) AdminList() []Post    { return AdminList(s.Snapshot()) }

// Submit validates and persists a new post, then reloads the snapshot. On
// any failure the snapshot is left as it was.
func (s *AppState) Submit(ctx context.Context, sub Submission, origin string) (Post, error) {
	payload, err := BuildPayload(sub)
	if err != nil {
		return Post{}, err
	}
	payload.Origin = origin

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	post, err := s.backend.CreatePost(ctx, payload)
	if err != nil {
		s.logger.Error("Failed to create post", "type", payload.Type, "error", err)
		return Post{}, fmt.Errorf("saving post: %w", err)
	}
	s.logger.Info("Post created", "post_id", post.ID, "type", post.Type, "status", post.Status)
	s.refreshLocked(ctx)
	return post, nil
}

func (s *AppState) Approve(ctx context.Context, id string) error {
	return s.decide(ctx, id, ActionApprove)
}

func (s *AppState) Reject(ctx context.Context, id string) error {
	return s.decide(ctx, id, ActionReject)
}

// decide waits for the store to confirm before touching the snapshot.
func (s *AppState) decide(ctx context.Context, id string, action Action) error {
	post, _ := s.find(id)
	status, err := Transition(post, action)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("updating status of post %s: %w", id, err)
	}

	s.mu.Lock()
	for i := range s.posts {
		if s.posts[i].ID == id {
			s.posts[i].Status = status
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// Delete removes a post from the store and then from the snapshot.
func (s *AppState) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}

	s.mu.Lock()
	kept := s.posts[:0]
	for _, p := range s.posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.posts = kept
	s.mu.Unlock()
	return nil
}

func (s *AppState) Login(ctx context.Context, email, password string) (string, bool) {
	return s.backend.Login(ctx, strings.TrimSpace(email), password)
}

func (s *AppState) CheckSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	return s.backend.CheckSession(ctx, token)
}

func (s *AppState) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	s.backend.Logout(ctx, token)
}

func (s *AppState) Ticker(ctx context.Context) string {
	return s.backend.Ticker(ctx)
}

// UpdateTicker stores a new ticker text.
func (s *AppState) UpdateTicker(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ValidationError{Field: "ticker", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(text) > config.MaxTickerLen {
		return &ValidationError{Field: "ticker", Reason: fmt.Sprintf("at most %d characters", config.MaxTickerLen)}
	}
	return s.backend.UpdateTicker(ctx, text)
}

// IssueFormToken returns a one-time token for a mutating form.
func (s *AppState) IssueFormToken() string { return s.tokens.Issue() }

// ConsumeFormToken reports whether token was issued and not used yet. A
// token is accepted once.
func (s *AppState) ConsumeFormToken(token string) bool { return s.tokens.Consume(token) }

// SetBackupInterval allows at most one backup per interval. Zero or less
// removes the limit.
func (s *AppState) SetBackupInterval(every time.Duration) {
	if every <= 0 {
		s.backups = rate.NewLimiter(rate.Inf, 1)
		return
	}
	s.backups = rate.NewLimiter(rate.Every(every), 1)
}

// Backup snapshots the store when the backend supports it.
func (s *AppState) Backup(ctx context.Context) (string, error) {
	backupper, ok := s.backend.(Backupper)
	if !ok {
		return "", ErrBackupUnsupported
	}
	if !s.backups.Allow() {
		return "", ErrBackupThrottled
	}
	return backupper.BackupDatabase(ctx)
}

func (s *AppState) find(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}
