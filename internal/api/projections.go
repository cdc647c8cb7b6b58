package api

import "net/http"

func (s *APIServer) projectionsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		year, err := queryInt(r, "year")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if year == 0 {
			s.writeError(w, r, badRequest("Year is required"))
			return
		}
		if year < minYear || year > maxYear {
			s.writeError(w, r, badRequest("Year is out of range"))
			return
		}

		months, err := s.projections.Year(r.Context(), userID, int(year))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, months)
	}
}
