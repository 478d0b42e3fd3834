package httpx

import (
	"net/http"

	"github.com/target/quiz-ui/internal/guard"
)

// PageHandlers renders the guarded pages. They run behind Guarded, so the session in
// the request context is the one the guard approved.
type PageHandlers struct {
	Renderer *TemplateRenderer
	Paths    guard.Paths
}

func (h *PageHandlers) data(r *http.Request, page, title string) PageData {
	sess, _ := GetSessionFromContext(r.Context())
	return PageData{
		Title:     title,
		Page:      page,
		State:     sess.State().String(),
		Identity:  sess.Identity,
		CSRF:      GetCSRFToken(r),
		LoginPath: h.Paths.Login,
		HomePath:  h.Paths.Home,
	}
}

// Home renders the signed-in landing page.
// GET /home.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, http.StatusOK, h.data(r, PageHome, "Home"))
}

// Admin renders the administration page.
// GET /admin.
func (h *PageHandlers) Admin(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, http.StatusOK, h.data(r, PageAdmin, "Administration"))
}

// landingHandler always redirects; the landing guard never renders.
func landingHandler(g guard.Guard, sessions SessionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(sessions.Snapshot(), guard.Location{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
		target := d.Redirect
		if target == "" {
			target = guard.DefaultHomePath
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}
