package server

import (
	"net/http"
	"strings"
)

// requireToken guards mutating endpoints. The token is accepted as a
// bearer header or a query param, matching how the delivery subsystem
// and operators call the API.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") && strings.TrimPrefix(header, "Bearer ") == s.token {
			next(w, r)
			return
		}

		if r.URL.Query().Get("token") == s.token {
			next(w, r)
			return
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}
