package api

import (
	"embed"
	"net/http"
)

//go:embed pages/*.html
var pagesFS embed.FS

var pages = map[string]string{
	"/":          "pages/index.html",
	"/login":     "pages/login.html",
	"/signup":    "pages/signup.html",
	"/dashboard": "pages/dashboard.html",
}

func (s *APIServer) pageHandler(name string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := pagesFS.ReadFile(name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
