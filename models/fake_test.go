package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errStoreDown = errors.New("store unavailable")

// fakeBackend is an in-memory Backend that counts calls and can be told to fail.
type fakeBackend struct {
	mu       sync.Mutex
	posts    []Post
	nextID   int
	clock    time.Time
	ticker   string
	sessions map[string]bool
	actions  []ModAction

	createCalls int
	failCreate  bool
	failUpdate  bool
	failDelete  bool
}

func newFakeBackend(posts ...Post) *fakeBackend {
	return &fakeBackend{
		posts:    posts,
		nextID:   100,
		clock:    time.UnixMilli(1_000_000),
		ticker:   "welkom",
		sessions: map[string]bool{},
	}
}

func (f *fakeBackend) ListPosts(_ context.Context) []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Post, len(f.posts))
	copy(out, f.posts)
	return out
}

func (f *fakeBackend) CreatePost(_ context.Context, p NewPostPayload) (Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate {
		return Post{}, errStoreDown
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	post := Post{
		ID:        fmt.Sprint(f.nextID),
		Type:      p.Type,
		Author:    p.Author,
		Content:   p.Content,
		Image:     p.Image,
		Status:    p.Status,
		Timestamp: f.clock,
		IP:        p.Origin,
	}
	f.posts = append(f.posts, post)
	return post, nil
}

func (f *fakeBackend) UpdateStatus(_ context.Context, id string, status PostStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errStoreDown
	}
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts[i].Status = status
			return nil
		}
	}
	return ErrPostNotFound
}

func (f *fakeBackend) DeletePost(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errStoreDown
	}
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts = append(f.posts[:i], f.posts[i+1:]...)
			return nil
		}
	}
	return ErrPostNotFound
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (string, bool) {
	if email != "admin@niesl.nl" || password != "geheim" {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions["tok"] = true
	return "tok", true
}

func (f *fakeBackend) CheckSession(_ context.Context, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[token]
}

func (f *fakeBackend) Logout(_ context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
}

func (f *fakeBackend) Ticker(_ context.Context) string { return f.ticker }

func (f *fakeBackend) UpdateTicker(_ context.Context, text string) error {
	f.ticker = text
	return nil
}

func (f *fakeBackend) RecordAction(_ context.Context, modHash, action, targetID, details string) error {
	f.actions = append(f.actions, ModAction{ModeratorHash: modHash, Action: action, TargetID: targetID, Details: details})
	return nil
}

func (f *fakeBackend) RecentActions(_ context.Context, limit int) ([]ModAction, error) {
	if limit > len(f.actions) {
		limit = len(f.actions)
	}
	return f.actions[:limit], nil
}

func post(id string, typ PostType, status PostStatus, ms int64) Post {
	return Post{ID: id, Type: typ, Status: status, Author: "a", Content: "c", Timestamp: time.UnixMilli(ms)}
}

// gatedBackend copies the list in ListPosts, then blocks the first call
// until release is closed.
type gatedBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedBackend(posts ...Post) *gatedBackend {
	return &gatedBackend{
		fakeBackend: newFakeBackend(posts...),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedBackend) ListPosts(ctx context.Context) []Post {
	posts := g.fakeBackend.ListPosts(ctx)
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return posts
}

// backupBackend adds Backupper to the fake.
type backupBackend struct {
	*fakeBackend
	backups int
}

func (b *backupBackend) BackupDatabase(_ context.Context) (string, error) {
	b.backups++
	return fmt.Sprintf("backup-%d", b.backups), nil
}
