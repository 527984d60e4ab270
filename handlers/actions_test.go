package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"krabbel/config"
	"krabbel/models"
)

func TestHandleHome(t *testing.T) {
	app := setupTestApp(t)

	t.Run("Empty feed shows placeholder", func(t *testing.T) {
		rr := serve(app, "GET", "/", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "Nog geen krabbels") {
			t.Error("Expected empty-feed placeholder")
		}
		if !strings.Contains(rr.Body.String(), "Welkom op de site!") {
			t.Error("Expected default ticker in header")
		}
	})

	t.Run("Only approved posts are shown", func(t *testing.T) {
		seedPost(t, app, models.TypeGuestbook, models.StatusApproved, "Kees", "Goedgekeurd bericht")
		seedPost(t, app, models.TypeGuestbook, models.StatusPending, "Piet", "Wachtend bericht")
		seedPost(t, app, models.TypeAdmin, models.StatusApproved, "Niesl", "**Welkom**")

		rr := serve(app, "GET", "/", nil)
		body := rr.Body.String()
		if !strings.Contains(body, "Goedgekeurd bericht") {
			t.Error("Expected approved post in feed")
		}
		if strings.Contains(body, "Wachtend bericht") {
			t.Error("Pending post must not appear in feed")
		}
		if !strings.Contains(body, "<b>Welkom</b>") {
			t.Error("Expected admin markup to be rendered")
		}
		if !strings.Contains(body, "api.dicebear.com") {
			t.Error("Expected avatar for guestbook author")
		}
	})
}

func TestHandleSubmit(t *testing.T) {
	app := setupTestApp(t)

	t.Run("Valid submission lands in the queue", func(t *testing.T) {
		form := url.Values{"author": {"Kees"}, "content": {"Hoi!"}, "image": {"none"}}
		rr := serve(app, "POST", "/krabbel", form)

		if rr.Code != http.StatusSeeOther {
			t.Fatalf("Expected 303, got %d. Body: %s", rr.Code, rr.Body.String())
		}
		if loc := rr.Header().Get("Location"); loc != "/" {
			t.Errorf("Expected redirect home, got %q", loc)
		}
		if findCookie(rr, config.FlashCookieName) == nil {
			t.Error("Expected a thank-you flash cookie")
		}

		pending := app.state.PendingQueue()
		if len(pending) != 1 || pending[0].Author != "Kees" || pending[0].Status != models.StatusPending {
			t.Fatalf("Expected one pending post by Kees, got %+v", pending)
		}
		if pending[0].Image != "" {
			t.Error("Expected no image")
		}
		if len(app.state.Feed()) != 0 {
			t.Error("Pending post must not be in the feed")
		}
	})

	t.Run("Random image option sets a picsum URL", func(t *testing.T) {
		form := url.Values{"author": {"Anna"}, "content": {"Met plaatje"}, "image": {"random"}}
		serve(app, "POST", "/krabbel", form)

		var found bool
		for _, p := range app.state.PendingQueue() {
			if p.Author == "Anna" {
				found = strings.HasPrefix(p.Image, "https://picsum.photos/seed/")
			}
		}
		if !found {
			t.Error("Expected random image URL on Anna's post")
		}
	})

	t.Run("Invalid input re-renders the form", func(t *testing.T) {
		before := len(app.state.Snapshot())
		testCases := []struct {
			name string
			form url.Values
		}{
			{"Empty author", url.Values{"author": {" "}, "content": {"Hoi"}}},
			{"Empty content", url.Values{"author": {"Kees"}, "content": {""}}},
			{"Too long", url.Values{"author": {"Kees"}, "content": {strings.Repeat("x", config.MaxContentLen+1)}}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				rr := serve(app, "POST", "/krabbel", tc.form)
				if rr.Code != http.StatusBadRequest {
					t.Fatalf("Expected 400, got %d", rr.Code)
				}
				if !strings.Contains(rr.Body.String(), `action="/krabbel"`) {
					t.Error("Expected the submission form to be shown again")
				}
			})
		}
		if after := len(app.state.Snapshot()); after != before {
			t.Errorf("Invalid submissions must not create posts: %d -> %d", before, after)
		}
	})
}

func TestHandleSubmitOnce(t *testing.T) {
	app := setupTestApp(t)
	token := app.state.IssueFormToken()
	form := url.Values{"author": {"Kees"}, "content": {"Dubbel geklikt"}, "form_token": {token}}

	for i := 0; i < 2; i++ {
		rr := serve(app, "POST", "/krabbel", form)
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("Attempt %d: expected 303, got %d", i+1, rr.Code)
		}
	}
	if n := len(app.state.PendingQueue()); n != 1 {
		t.Fatalf("Expected exactly one post for one form, got %d", n)
	}

	t.Run("Missing token", func(t *testing.T) {
		rr := serve(app, "POST", "/krabbel", url.Values{"author": {"Piet"}, "content": {"Zonder"}, "form_token": {""}})
		flash := findCookie(rr, config.FlashCookieName)
		if flash == nil || !strings.Contains(flash.Value, url.QueryEscape("al verstuurd")) {
			t.Errorf("Expected resubmission flash, got %+v", flash)
		}
		if n := len(app.state.PendingQueue()); n != 1 {
			t.Errorf("Form without token must not create a post, got %d", n)
		}
	})

	t.Run("Rejected input gets a new token", func(t *testing.T) {
		rr := serve(app, "POST", "/krabbel", url.Values{"author": {"Kees"}, "content": {""}})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rr.Code)
		}
		m := regexp.MustCompile(`name="form_token" value="([^"]+)"`).FindStringSubmatch(rr.Body.String())
		if m == nil || m[1] == token {
			t.Error("Expected a fresh form token in the re-rendered form")
		}
	})
}

func TestHandleSubmissionForm(t *testing.T) {
	app := setupTestApp(t)
	rr := serve(app, "GET", "/krabbel", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Willekeurig plaatje") {
		t.Errorf("Expected the submission form, got %d", rr.Code)
	}
}

func TestHandleAPIPosts(t *testing.T) {
	app := setupTestApp(t)
	seedPost(t, app, models.TypeGuestbook, models.StatusApproved, "Kees", "Zichtbaar")
	seedPost(t, app, models.TypeGuestbook, models.StatusPending, "Piet", "Wachtend")

	t.Run("Public feed hides IPs", func(t *testing.T) {
		rr := serve(app, "GET", "/api/posts", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var resp struct {
			Posts []map[string]interface{} `json:"posts"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if len(resp.Posts) != 1 || resp.Posts[0]["author"] != "Kees" {
			t.Fatalf("Expected only the approved post, got %+v", resp.Posts)
		}
		if _, ok := resp.Posts[0]["ip"]; ok {
			t.Error("Public feed must not expose IP")
		}
	})

	t.Run("Pending view needs a session", func(t *testing.T) {
		rr := serve(app, "GET", "/api/posts?view=pending", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
		rr = serve(app, "GET", "/api/posts?view=pending", nil, sessionCookie(t, app))
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Wachtend") {
			t.Errorf("Expected pending queue for admin, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Unknown view", func(t *testing.T) {
		rr := serve(app, "GET", "/api/posts?view=bogus", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})
}
