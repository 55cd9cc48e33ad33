package api

import (
	"net/http"
	"strings"
)

// isFixi reports whether the request came from fixi.js rather than a plain
// form submission.
func isFixi(r *http.Request) bool {
	switch strings.ToLower(r.Header.Get("FX-Request")) {
	case "true", "1":
		return true
	}
	return false
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Info("api: request", "method", r.Method, "path", r.URL.RequestURI(), "fx", isFixi(r))
		next.ServeHTTP(w, r)
	})
}

// fragment writes an HTML patch, or a 500 when rendering it failed.
func (a *API) fragment(w http.ResponseWriter, body string, err error) {
	if err != nil {
		a.serverError(w, "render fragment", err)
		return
	}
	a.log.Debug("api: sending fragment", "preview", preview(body))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (a *API) serverError(w http.ResponseWriter, what string, err error) {
	a.log.Error("api: "+what, "err", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
