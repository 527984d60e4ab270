// krabbel/handlers/render.go

package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"krabbel/config"
	"krabbel/models"
	"krabbel/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templates *template.Template
)

// viewTemplates maps each screen to the template that draws it.
var viewTemplates = map[models.View]string{
	models.ViewHome:           "home.html",
	models.ViewSubmissionForm: "form.html",
	models.ViewLogin:          "login.html",
	models.ViewDashboard:      "dashboard.html",
}

// viewPaths is where each screen lives, for redirects.
var viewPaths = map[models.View]string{
	models.ViewHome:           "/",
	models.ViewSubmissionForm: "/krabbel",
	models.ViewLogin:          "/admin",
	models.ViewDashboard:      "/admin",
}

// LoadTemplates parses the embedded HTML templates.
func LoadTemplates() error {
	funcMap := template.FuncMap{
		"renderContent": models.RenderContent,
		"shortDate":     utils.ShortDate,
		"formatISO":     func(t time.Time) string { return t.Format(time.RFC3339) },
		"avatar":        avatarURL,
		"isAdmin":       func(p models.Post) bool { return p.Type == models.TypeAdmin },
		"shortHash": func(s string) string {
			if len(s) > 8 {
				return s[:8]
			}
			return s
		},
	}
	t, err := template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	templates = t
	return nil
}

// avatarURL returns the DiceBear avatar for guestbook authors. Admin posts
// render a crown instead, so they get no URL.
func avatarURL(p models.Post) string {
	if p.Type == models.TypeAdmin {
		return ""
	}
	return fmt.Sprintf(config.AvatarURL, url.QueryEscape(p.Author))
}

// render executes a screen's template inside the layout.
func render(w http.ResponseWriter, r *http.Request, app App, view models.View, status int, data map[string]interface{}) {
	logger := app.Logger().With("handler", "render", "view", view)
	if data == nil {
		data = make(map[string]interface{})
	}

	data["SiteTitle"] = config.SiteTitle
	data["AppVersion"] = config.AppVersion
	data["View"] = string(view)
	data["Authenticated"] = isAuthenticated(r)
	data["MaxAuthorLen"] = config.MaxAuthorLen
	data["MaxContentLen"] = config.MaxContentLen
	data["MaxAdminContentLen"] = config.MaxAdminContentLen
	data["MaxTickerLen"] = config.MaxTickerLen
	if _, ok := data["Ticker"]; !ok {
		data["Ticker"] = app.State().Ticker(r.Context())
	}
	if csrfToken, ok := r.Context().Value(CSRFTokenKey).(string); ok {
		data["csrfToken"] = csrfToken
	}
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = popFlash(w, r)
	}
	if _, ok := data["FormInput"]; !ok {
		data["FormInput"] = &models.FormInput{}
	}
	if view == models.ViewSubmissionForm || view == models.ViewDashboard {
		data["FormToken"] = app.State().IssueFormToken()
	}

	contentBuf := new(bytes.Buffer)
	if err := templates.ExecuteTemplate(contentBuf, viewTemplates[view], data); err != nil {
		logger.Error("Error rendering content template", "error", err)
		http.Error(w, "Failed to render page content", http.StatusInternalServerError)
		return
	}
	data["Content"] = template.HTML(contentBuf.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, "layout.html", data); err != nil {
		logger.Error("Error rendering layout template", "error", err)
	}
}
