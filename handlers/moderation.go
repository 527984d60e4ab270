// krabbel/handlers/moderation.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"krabbel/config"
	"krabbel/models"

	"github.com/go-chi/chi/v5"
)

const (
	tabModeration = "moderation"
	tabCMS        = "cms"
)

// HandleAdmin shows the dashboard to a logged-in admin and the login form
// to everyone else.
func HandleAdmin(w http.ResponseWriter, r *http.Request, app App) {
	view := screenFor(isAuthenticated(r), models.EventRequestAdmin, models.EventLoginSucceeded)
	if view != models.ViewDashboard {
		render(w, r, app, view, http.StatusOK, nil)
		return
	}
	renderDashboard(w, r, app, r.URL.Query().Get("tab"), http.StatusOK, nil)
}

func renderDashboard(w http.ResponseWriter, r *http.Request, app App, tab string, status int, data map[string]interface{}) {
	logger := app.Logger().With("handler", "renderDashboard")
	if tab != tabCMS {
		tab = tabModeration
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	state := app.State()

	actions, err := state.Backend().RecentActions(r.Context(), config.RecentActionsLimit)
	if err != nil {
		logger.Error("Failed to load moderation log", "error", err)
	}

	data["Tab"] = tab
	data["Pending"] = state.PendingQueue()
	data["AdminPosts"] = state.AdminList()
	data["Actions"] = actions
	if _, ok := data["FormInput"]; !ok {
		data["FormInput"] = &models.FormInput{Author: app.AdminAuthor()}
	}
	render(w, r, app, models.ViewDashboard, status, data)
}

// HandleLogin checks credentials and starts a session.
func HandleLogin(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleLogin")
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	token, ok := app.State().Login(r.Context(), email, password)
	if !ok {
		logger.Warn("Failed admin login")
		view := screenFor(false, models.EventRequestAdmin)
		render(w, r, app, view, http.StatusUnauthorized, map[string]interface{}{
			"Error": msgLoginFailed,
			"Email": email,
		})
		return
	}

	setSessionCookie(w, r, token, app.SessionTTL())
	recordAction(r, app, "login", "", "")
	logger.Info("Admin logged in")
	next := screenFor(true, models.EventRequestAdmin, models.EventLoginSucceeded)
	http.Redirect(w, r, viewPaths[next], http.StatusSeeOther)
}

// HandleLogout ends the session. Store failures are ignored.
func HandleLogout(w http.ResponseWriter, r *http.Request, app App) {
	app.State().Logout(r.Context(), sessionToken(r))
	clearSessionCookie(w)
	next := screenFor(true, models.EventRequestAdmin, models.EventLoginSucceeded, models.EventLogout)
	http.Redirect(w, r, viewPaths[next], http.StatusSeeOther)
}

// HandleAdminPost publishes an admin text block.
func HandleAdminPost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleAdminPost")
	if !app.State().ConsumeFormToken(r.FormValue("form_token")) {
		logger.Warn("Dropped admin post form with a used or unknown token")
		setFlash(w, r, msgResubmitted)
		http.Redirect(w, r, "/admin?tab="+tabCMS, http.StatusSeeOther)
		return
	}
	input := &models.FormInput{
		Author:  r.FormValue("author"),
		Content: r.FormValue("content"),
	}
	sub := models.Submission{
		Author:  input.Author,
		Content: input.Content,
		Type:    models.TypeAdmin,
		Image:   r.FormValue("image_url"),
	}
	if strings.TrimSpace(sub.Author) == "" {
		sub.Author = app.AdminAuthor()
	}

	post, err := app.State().Submit(r.Context(), sub, "")
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			renderDashboard(w, r, app, tabCMS, http.StatusBadRequest, map[string]interface{}{
				"Error":     msg,
				"FormInput": input,
			})
			return
		}
		logger.Error("Failed to create admin post", "error", err)
		setFlash(w, r, msgSaveFailed)
		http.Redirect(w, r, "/admin?tab="+tabCMS, http.StatusSeeOther)
		return
	}

	recordAction(r, app, "admin_post", post.ID, "")
	setFlash(w, r, "Bericht geplaatst.")
	http.Redirect(w, r, "/admin?tab="+tabCMS, http.StatusSeeOther)
}

// HandleModerate applies approve, reject or delete to a post.
func HandleModerate(action string) func(http.ResponseWriter, *http.Request, App) {
	return func(w http.ResponseWriter, r *http.Request, app App) {
		logger := app.Logger().With("handler", "HandleModerate", "action", action)
		id := chi.URLParam(r, "id")
		state := app.State()

		var err error
		switch action {
		case "approve":
			err = state.Approve(r.Context(), id)
		case "reject":
			err = state.Reject(r.Context(), id)
		case "delete":
			err = state.Delete(r.Context(), id)
		default:
			err = models.ErrUnknownAction
		}

		wantsJSON := r.Header.Get("Accept") == "application/json"
		if err != nil {
			status := http.StatusInternalServerError
			msg := "Actie mislukt. Probeer het opnieuw."
			switch {
			case errors.Is(err, models.ErrPostNotFound):
				status, msg = http.StatusNotFound, "Bericht niet gevonden."
			case errors.Is(err, models.ErrUnknownAction):
				status, msg = http.StatusBadRequest, "Onbekende actie."
			default:
				logger.Error("Moderation action failed", "post_id", id, "error", err)
			}
			if wantsJSON {
				respondJSON(w, status, map[string]string{"error": msg}, app)
				return
			}
			setFlash(w, r, msg)
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return
		}

		recordAction(r, app, action, id, "")
		logger.Info("Moderation action applied", "post_id", id)
		if wantsJSON {
			respondJSON(w, http.StatusOK, map[string]string{"id": id, "action": action}, app)
			return
		}
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	}
}

// HandleRefresh reloads the snapshot from the store.
func HandleRefresh(w http.ResponseWriter, r *http.Request, app App) {
	app.State().Refresh(r.Context())
	setFlash(w, r, "Vernieuwd.")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// HandleTicker updates the header ticker.
func HandleTicker(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleTicker")
	text := r.FormValue("ticker")

	if err := app.State().UpdateTicker(r.Context(), text); err != nil {
		if msg, ok := validationMessage(err); ok {
			setFlash(w, r, msg)
		} else {
			logger.Error("Failed to update ticker", "error", err)
			setFlash(w, r, msgSaveFailed)
		}
		http.Redirect(w, r, "/admin?tab="+tabCMS, http.StatusSeeOther)
		return
	}

	recordAction(r, app, "update_ticker", "", strings.TrimSpace(text))
	setFlash(w, r, "Ticker opgeslagen.")
	http.Redirect(w, r, "/admin?tab="+tabCMS, http.StatusSeeOther)
}

// HandleBackup snapshots the store when the backend supports it.
func HandleBackup(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleBackup")

	location, err := app.State().Backup(r.Context())
	switch {
	case errors.Is(err, models.ErrBackupUnsupported):
		setFlash(w, r, "Backups zijn niet beschikbaar voor deze database.")
	case errors.Is(err, models.ErrBackupThrottled):
		setFlash(w, r, "Er is net al een backup gemaakt. Probeer het zo nog eens.")
	case err != nil:
		logger.Error("Failed to create database backup", "error", err)
		setFlash(w, r, "Backup mislukt.")
	default:
		logger.Info("Database backup created successfully", "location", location)
		recordAction(r, app, "database_backup", "", location)
		setFlash(w, r, "Backup gemaakt: "+location)
	}
	http.Redirect(w, r, "/admin?tab="+tabCMS, http.StatusSeeOther)
}
