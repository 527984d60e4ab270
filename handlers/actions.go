// krabbel/handlers/actions.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"krabbel/config"
	"krabbel/models"
	"krabbel/utils"
)

const (
	msgThanks      = "Bedankt! Je krabbel is zichtbaar zodra hij is goedgekeurd."
	msgSaveFailed  = "Er ging iets mis bij het opslaan. Probeer het later nog eens."
	msgLoginFailed = "Inloggen mislukt"
	msgResubmitted = "Dit formulier is al verstuurd."
)

// fieldLabels gives the Dutch label for each validated field.
var fieldLabels = map[string]string{
	"author":  "Naam",
	"content": "Bericht",
	"image":   "Plaatje",
	"type":    "Soort",
	"ticker":  "Ticker",
}

// validationMessage turns a validation error into a message for the form.
func validationMessage(err error) (string, bool) {
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		return "", false
	}
	label, ok := fieldLabels[verr.Field]
	if !ok {
		label = verr.Field
	}
	return fmt.Sprintf("%s: %s", label, verr.Reason), true
}

// HandleHome serves the public feed.
func HandleHome(w http.ResponseWriter, r *http.Request, app App) {
	view := screenFor(isAuthenticated(r))
	render(w, r, app, view, http.StatusOK, map[string]interface{}{
		"Feed": app.State().Feed(),
	})
}

// HandleSubmissionForm serves the guestbook form.
func HandleSubmissionForm(w http.ResponseWriter, r *http.Request, app App) {
	view := screenFor(isAuthenticated(r), models.EventRequestPost)
	render(w, r, app, view, http.StatusOK, nil)
}

// HandleSubmit processes a new guestbook entry.
func HandleSubmit(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleSubmit")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if !app.State().ConsumeFormToken(r.PostFormValue("form_token")) {
		logger.Warn("Dropped guestbook form with a used or unknown token")
		setFlash(w, r, msgResubmitted)
		http.Redirect(w, r, viewPaths[models.ViewHome], http.StatusSeeOther)
		return
	}

	input := &models.FormInput{
		Author:    r.PostFormValue("author"),
		Content:   r.PostFormValue("content"),
		WithImage: r.PostFormValue("image") == "random",
	}
	sub := models.Submission{
		Author:  input.Author,
		Content: input.Content,
		Type:    models.TypeGuestbook,
	}
	if input.WithImage {
		sub.Image = fmt.Sprintf(config.RandomImageURL, utils.Now().UnixNano())
	}

	post, err := app.State().Submit(r.Context(), sub, utils.GetIPAddress(r))
	if err != nil {
		formView := screenFor(isAuthenticated(r), models.EventRequestPost)
		if msg, ok := validationMessage(err); ok {
			render(w, r, app, formView, http.StatusBadRequest, map[string]interface{}{
				"Error":     msg,
				"FormInput": input,
			})
			return
		}
		logger.Error("Failed to submit post", "error", err)
		render(w, r, app, formView, http.StatusInternalServerError, map[string]interface{}{
			"Flash":     msgSaveFailed,
			"FormInput": input,
		})
		return
	}

	logger.Info("Guestbook post submitted", "post_id", post.ID)
	setFlash(w, r, msgThanks)
	next := screenFor(isAuthenticated(r), models.EventRequestPost, models.EventSubmitted)
	http.Redirect(w, r, viewPaths[next], http.StatusSeeOther)
}

// publicPost is the JSON shape of a post for anonymous callers.
type publicPost struct {
	ID        string            `json:"id"`
	Type      models.PostType   `json:"type"`
	Author    string            `json:"author"`
	Content   string            `json:"content"`
	HTML      string            `json:"html"`
	Image     string            `json:"image,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Status    models.PostStatus `json:"status"`
	IP        string            `json:"ip,omitempty"`
}

func toPublic(posts []models.Post, withIP bool) []publicPost {
	out := make([]publicPost, 0, len(posts))
	for _, p := range posts {
		pp := publicPost{
			ID:        p.ID,
			Type:      p.Type,
			Author:    p.Author,
			Content:   p.Content,
			HTML:      string(models.RenderContent(p)),
			Image:     p.Image,
			Timestamp: p.Timestamp.UnixMilli(),
			Status:    p.Status,
		}
		if withIP {
			pp.IP = p.IP
		}
		out = append(out, pp)
	}
	return out
}

// HandleAPIPosts returns the feed as JSON. Admins may ask for the pending
// queue or their own posts with ?view=pending|admin.
func HandleAPIPosts(w http.ResponseWriter, r *http.Request, app App) {
	state := app.State()
	view := r.URL.Query().Get("view")
	switch view {
	case "", "feed":
		respondJSON(w, http.StatusOK, map[string]interface{}{"posts": toPublic(state.Feed(), false)}, app)
	case "pending", "admin":
		if !isAuthenticated(r) {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"}, app)
			return
		}
		posts := state.PendingQueue()
		if view == "admin" {
			posts = state.AdminList()
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"posts": toPublic(posts, true)}, app)
	default:
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown view"}, app)
	}
}
