package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewHandler wraps the router in the CSRF and security header middleware.
func NewHandler(app App) http.Handler {
	return CSRFMiddleware(NewSecurityHeadersMiddleware()(SetupRouter(app)))
}

func SetupRouter(app App) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)
	mux.Use(SessionMiddleware(app))

	// Public pages
	mux.Get("/", MakeHandler(app, HandleHome))
	mux.Get("/krabbel", MakeHandler(app, HandleSubmissionForm))
	mux.Post("/krabbel", MakeHandler(app, HandleSubmit))
	mux.Get("/api/posts", MakeHandler(app, HandleAPIPosts))

	// Admin
	mux.Route("/admin", func(r chi.Router) {
		r.Get("/", MakeHandler(app, HandleAdmin))
		r.Post("/login", MakeHandler(app, HandleLogin))
		r.Post("/logout", MakeHandler(app, HandleLogout))

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)
			r.Post("/posts", MakeHandler(app, HandleAdminPost))
			r.Post("/posts/{id}/approve", MakeHandler(app, HandleModerate("approve")))
			r.Post("/posts/{id}/reject", MakeHandler(app, HandleModerate("reject")))
			r.Post("/posts/{id}/delete", MakeHandler(app, HandleModerate("delete")))
			r.Post("/refresh", MakeHandler(app, HandleRefresh))
			r.Post("/ticker", MakeHandler(app, HandleTicker))
			r.Post("/backup", MakeHandler(app, HandleBackup))
		})
	})

	return mux
}
