package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"krabbel/config"
	"krabbel/database"
	"krabbel/models"
	"krabbel/utils"
)

const (
	testAdminEmail    = "admin@niesl.nl"
	testAdminPassword = "geheim"
)

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	db     *database.DatabaseService
	state  *models.AppState
	logger *slog.Logger
}

func (a *MockApplication) State() *models.AppState   { return a.state }
func (a *MockApplication) Logger() *slog.Logger      { return a.logger }
func (a *MockApplication) AdminAuthor() string       { return config.DefaultAdminAuthor }
func (a *MockApplication) SessionTTL() time.Duration { return time.Hour }

// setupTestApp creates a full application stack backed by a temp SQLite file.
func setupTestApp(t *testing.T) *MockApplication {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := t.TempDir()
	dbService, err := database.InitDB(filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on"), logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	dbService.BackupDir = filepath.Join(dir, "backups")

	hash, err := utils.HashPassword(testAdminPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if err := dbService.SeedAdmin(context.Background(), testAdminEmail, hash, "Niesl"); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}

	app := &MockApplication{
		db:     dbService,
		state:  models.NewAppState(dbService, logger),
		logger: logger,
	}
	app.state.Refresh(context.Background())

	utils.IPSalt = "test-salt"
	t.Cleanup(func() {
		dbService.Close()
		utils.IPSalt = ""
	})
	return app
}

// sessionCookie logs the test admin in and returns the session cookie.
func sessionCookie(t *testing.T, app *MockApplication) *http.Cookie {
	t.Helper()
	token, ok := app.state.Login(context.Background(), testAdminEmail, testAdminPassword)
	if !ok {
		t.Fatal("Failed to log in test admin")
	}
	return &http.Cookie{Name: config.SessionCookieName, Value: token}
}

const testCSRFToken = "test-csrf"

// serve sends a request through the full middleware chain.
func serve(app *MockApplication, method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return serveWith(app, method, path, form, nil, cookies...)
}

// serveWith fills in the CSRF cookie and a fresh form token for POSTs unless
// the caller supplies their own.
func serveWith(app *MockApplication, method, path string, form url.Values, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	if method == http.MethodPost {
		filled := url.Values{}
		for k, v := range form {
			filled[k] = v
		}
		if filled.Get("csrf_token") == "" {
			filled.Set("csrf_token", testCSRFToken)
		}
		if _, ok := form["form_token"]; !ok {
			filled.Set("form_token", app.state.IssueFormToken())
		}
		form = filled
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	hasCSRF := false
	for _, c := range cookies {
		req.AddCookie(c)
		hasCSRF = hasCSRF || c.Name == "csrf_token"
	}
	if !hasCSRF {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	}
	rr := httptest.NewRecorder()
	NewHandler(app).ServeHTTP(rr, req)
	return rr
}

// seedPost inserts a post directly and refreshes the snapshot.
func seedPost(t *testing.T, app *MockApplication, typ models.PostType, status models.PostStatus, author, content string) models.Post {
	t.Helper()
	p, err := app.db.CreatePost(context.Background(), models.NewPostPayload{Author: author, Content: content, Type: typ, Status: status})
	if err != nil {
		t.Fatalf("Failed to seed post: %v", err)
	}
	app.state.Refresh(context.Background())
	return p
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
