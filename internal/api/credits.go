package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/internal/store"
)

// GrantRequest tops up a user's balance.
type GrantRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// BalanceResponse reports a user's balance.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// BlacklistImportRequest bulk-loads manual blacklist entries.
type BlacklistImportRequest struct {
	Entries []model.BlacklistEntry `json:"entries"`
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	bal, err := s.deps.Ledger.Balance(r.Context(), userID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}

func (s *Server) entries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseInt(q.Get("limit"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	filter := store.EntryFilter{
		MovementType: model.MovementType(q.Get("type")),
		LeadRef:      q.Get("lead"),
		Limit:        limit,
	}
	switch filter.MovementType {
	case "", model.MovementConsume, model.MovementRefund, model.MovementGrant:
	default:
		respondWithError(w, http.StatusBadRequest, "type must be CONSUME, REFUND or GRANT")
		return
	}

	out, err := s.deps.Ledger.History(r.Context(), chi.URLParam(r, "userID"), filter)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if out == nil {
		out = []model.LedgerEntry{}
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Ledger.Reconcile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	code := http.StatusOK
	if !rec.OK() {
		code = http.StatusConflict
	}
	respondWithJSON(w, code, rec)
}

func (s *Server) grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mv, err := s.deps.Ledger.Grant(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Reason)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, mv)
}

func (s *Server) blacklistLookup(w http.ResponseWriter, r *http.Request) {
	phone, err := normalize.ParsePhone(chi.URLParam(r, "phone"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "unparseable phone")
		return
	}
	e, err := s.deps.Blacklist.Lookup(r.Context(), phone)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if e == nil {
		respondWithError(w, http.StatusNotFound, "not blacklisted")
		return
	}
	respondWithJSON(w, http.StatusOK, e)
}

func (s *Server) blacklistImport(w http.ResponseWriter, r *http.Request) {
	var req BlacklistImportRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Entries) == 0 {
		respondWithError(w, http.StatusBadRequest, "no entries provided")
		return
	}
	for i := range req.Entries {
		e := &req.Entries[i]
		phone, err := normalize.ParsePhone(e.Phone)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "unparseable phone: "+e.Phone)
			return
		}
		e.Phone = phone
		if e.Source == "" {
			e.Source = model.BlacklistSourceManual
		}
		if e.Reason == "" {
			e.Reason = "manual import"
		}
	}

	n, err := s.deps.Blacklist.Import(r.Context(), req.Entries)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"imported": n})
}
