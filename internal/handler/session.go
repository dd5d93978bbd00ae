package handler

import (
	"net/http"
	"time"

	"gtfsviewer/internal/store"
)

// sessionCookie maps the session cookie to a store session.
type sessionCookie struct {
	store *store.Store
	name  string
	ttl   time.Duration
}

// resolve returns the caller's session, creating one and setting the cookie
// when the request carries no known session id.
func (c sessionCookie) resolve(w http.ResponseWriter, r *http.Request) *store.Session {
	var id string
	if ck, err := r.Cookie(c.name); err == nil {
		id = ck.Value
	}

	sess, created := c.store.Resolve(r.Context(), id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(c.ttl.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}
