package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/abuiliazeed/financial-projections/internal/domain/models"
	"github.com/abuiliazeed/financial-projections/internal/storage"
)

const (
	maxTypeNameLength = 100
	minYear           = 1
	maxYear           = 9999
)

// ledgerRoute binds one kind of ledger to its URLs and wording.
type ledgerRoute struct {
	kind        models.Kind
	label       string
	typesPath   string
	entriesPath string
	typeIDParam string
}

type typeRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// entryRequest accepts both ledgers' type id keys; the route decides which
// one is read.
type entryRequest struct {
	ID            int64         `json:"id"`
	Year          int           `json:"year"`
	Month         int           `json:"month"`
	ExpenseTypeID int64         `json:"expenseTypeId"`
	RevenueTypeID int64         `json:"revenueTypeId"`
	Amount        *models.Money `json:"amount"`
}

func (req entryRequest) typeID(kind models.Kind) int64 {
	if kind == models.KindRevenue {
		return req.RevenueTypeID
	}
	return req.ExpenseTypeID
}

type entryResponse struct {
	ID              int64        `json:"id"`
	Year            int          `json:"year"`
	Month           int          `json:"month"`
	Amount          models.Money `json:"amount"`
	ExpenseTypeID   *int64       `json:"expenseTypeId,omitempty"`
	ExpenseTypeName string       `json:"expenseTypeName,omitempty"`
	RevenueTypeID   *int64       `json:"revenueTypeId,omitempty"`
	RevenueTypeName string       `json:"revenueTypeName,omitempty"`
}

func newEntryResponse(e models.Entry) entryResponse {
	resp := entryResponse{ID: e.ID, Year: e.Year, Month: e.Month, Amount: e.Amount}
	typeID := e.TypeID
	if e.Kind == models.KindRevenue {
		resp.RevenueTypeID = &typeID
		resp.RevenueTypeName = e.TypeName
	} else {
		resp.ExpenseTypeID = &typeID
		resp.ExpenseTypeName = e.TypeName
	}
	return resp
}

func (s *APIServer) listTypesHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		types, err := s.storage.ListTypes(r.Context(), l.kind, userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, types)
	}
}

func (s *APIServer) createTypeHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		var req typeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		name, err := l.typeName(req.Name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		et, err := s.storage.CreateType(r.Context(), l.kind, userID, name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, et)
	}
}

func (s *APIServer) updateTypeHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		var req typeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.ID <= 0 || strings.TrimSpace(req.Name) == "" {
			s.writeError(w, r, badRequest(l.label+" type ID and name are required"))
			return
		}
		name, err := l.typeName(req.Name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.storage.UpdateType(r.Context(), l.kind, userID, req.ID, name); err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, models.EntryType{ID: req.ID, Name: name})
	}
}

func (s *APIServer) deleteTypeHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		id, err := queryInt(r, "id")
		if err != nil || id <= 0 {
			s.writeError(w, r, badRequest(l.label+" type ID is required"))
			return
		}

		if err := s.storage.DeleteType(r.Context(), l.kind, userID, id); err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, messageResponse{Message: l.label + " type deleted successfully"})
	}
}

func (s *APIServer) listEntriesHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		filter, err := l.entryFilter(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		entries, err := s.storage.ListEntries(r.Context(), l.kind, userID, filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		resp := make([]entryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, newEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *APIServer) createEntryHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		var req entryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		e, err := l.entry(userID, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		created, err := s.storage.CreateEntry(r.Context(), e)
		if err != nil {
			s.writeEntryError(w, r, l, err)
			return
		}

		writeJSON(w, http.StatusCreated, newEntryResponse(created))
	}
}

func (s *APIServer) updateEntryHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		var req entryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.ID <= 0 {
			s.writeError(w, r, badRequest(fmt.Sprintf("ID, year, month, %s type, and amount are required", strings.ToLower(l.label))))
			return
		}
		e, err := l.entry(userID, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		e.ID = req.ID

		if err := s.storage.UpdateEntry(r.Context(), e); err != nil {
			s.writeEntryError(w, r, l, err)
			return
		}

		writeJSON(w, http.StatusOK, newEntryResponse(e))
	}
}

func (s *APIServer) deleteEntryHandler(l ledgerRoute) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		id, err := queryInt(r, "id")
		if err != nil || id <= 0 {
			s.writeError(w, r, badRequest(l.label+" ID is required"))
			return
		}

		if err := s.storage.DeleteEntry(r.Context(), l.kind, userID, id); err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, messageResponse{Message: l.label + " deleted successfully"})
	}
}

func (s *APIServer) writeEntryError(w http.ResponseWriter, r *http.Request, l ledgerRoute, err error) {
	if errors.Is(err, storage.ErrInvalidType) {
		s.writeError(w, r, badRequest("Invalid "+strings.ToLower(l.label)+" type"))
		return
	}
	s.writeError(w, r, err)
}

func (l ledgerRoute) typeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", badRequest(l.label + " type name is required")
	}
	if utf8.RuneCountInString(name) > maxTypeNameLength {
		return "", badRequest(fmt.Sprintf("%s type name must be at most %d characters", l.label, maxTypeNameLength))
	}
	return name, nil
}

// entry validates a create or update body. Amounts must be present and not
// negative.
func (l ledgerRoute) entry(userID int64, req entryRequest) (models.Entry, error) {
	typeID := req.typeID(l.kind)
	if req.Year == 0 || req.Month == 0 || typeID <= 0 || req.Amount == nil {
		return models.Entry{}, badRequest(fmt.Sprintf("Year, month, %s type, and amount are required", strings.ToLower(l.label)))
	}
	if req.Year < minYear || req.Year > maxYear {
		return models.Entry{}, badRequest("Year is out of range")
	}
	if req.Month < 1 || req.Month > 12 {
		return models.Entry{}, badRequest("Month must be between 1 and 12")
	}
	if *req.Amount < 0 {
		return models.Entry{}, badRequest("Amount must not be negative")
	}

	return models.Entry{
		UserID: userID,
		Kind:   l.kind,
		Year:   req.Year,
		Month:  req.Month,
		TypeID: typeID,
		Amount: *req.Amount,
	}, nil
}

func (l ledgerRoute) entryFilter(r *http.Request) (models.EntryFilter, error) {
	year, err := queryInt(r, "year")
	if err != nil {
		return models.EntryFilter{}, err
	}
	month, err := queryInt(r, "month")
	if err != nil {
		return models.EntryFilter{}, err
	}
	if month < 0 || month > 12 {
		return models.EntryFilter{}, badRequest("Month must be between 1 and 12")
	}
	typeID, err := queryInt(r, l.typeIDParam)
	if err != nil {
		return models.EntryFilter{}, err
	}

	return models.EntryFilter{Year: int(year), Month: int(month), TypeID: typeID}, nil
}
