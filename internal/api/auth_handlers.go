package api

import (
	"net/http"

	"github.com/soaringjerry/evibench/internal/middleware"
	"github.com/soaringjerry/evibench/internal/services"
)

// POST /api/login {email}
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	if sess.LoggedIn {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":                true,
			"already_logged_in": true,
			"email":             sess.Email,
			"message":           middleware.Translate(r.Context(), "login.already"),
			"redirect":          "/annotation",
		})
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.login.Login(r.Context(), sess, body.Email); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "email": sess.Email, "redirect": "/annotation"})
}

// POST /api/logout tears the session down and clears the cookie.
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := rt.signer.SessionID(r); ok {
		sess, _, release := rt.sessions.Acquire(sid)
		rt.login.Logout(sess)
		id := sess.ID
		release()
		rt.sessions.Drop(id)
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"message":  middleware.Translate(r.Context(), "logout.ok"),
		"redirect": "/login",
	})
}
