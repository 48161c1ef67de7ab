package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/internal/pipeline"
	"github.com/sells-group/leadgate/internal/reaudit"
	"github.com/sells-group/leadgate/internal/source"
	"github.com/sells-group/leadgate/internal/store"
)

// ValidateRequest submits one candidate. Record is an alternative to
// Candidate for loosely-typed input such as LLM output.
type ValidateRequest struct {
	UserID    string               `json:"user_id"`
	Candidate *model.CandidateLead `json:"candidate,omitempty"`
	Record    map[string]any       `json:"record,omitempty"`
}

// BatchRequest submits many candidates for one user. Candidates and
// Records are concatenated in that order.
type BatchRequest struct {
	UserID     string                `json:"user_id"`
	Candidates []model.CandidateLead `json:"candidates,omitempty"`
	Records    []map[string]any      `json:"records,omitempty"`
}

// ProspectRequest asks the LLM source for leads and optionally validates
// them straight away. Limit caps the candidates kept; zero or anything
// above the batch cap means the batch cap.
type ProspectRequest struct {
	UserID   string `json:"user_id"`
	Prompt   string `json:"prompt"`
	City     string `json:"city,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Validate bool   `json:"validate"`
}

// ProspectResponse carries generated candidates, or the batch report when
// they were validated.
type ProspectResponse struct {
	Candidates []model.CandidateLead `json:"candidates,omitempty"`
	Report     *pipeline.BatchReport `json:"report,omitempty"`
}

// ReauditRequest selects the leads to re-audit.
type ReauditRequest struct {
	UserID string    `json:"user_id"`
	Since  time.Time `json:"since"`
	Until  time.Time `json:"until"`
}

func (s *Server) validateLead(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var cand model.CandidateLead
	switch {
	case req.Candidate != nil:
		cand = *req.Candidate
	case req.Record != nil:
		cand = normalize.Record(req.Record)
	default:
		respondWithError(w, http.StatusBadRequest, "candidate or record is required")
		return
	}

	res, err := s.deps.Pipeline.Run(r.Context(), cand, req.UserID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) batchLeads(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	n := len(req.Candidates) + len(req.Records)
	if n == 0 {
		respondWithError(w, http.StatusBadRequest, "no candidates provided")
		return
	}
	if n > s.cfg.MaxBatch {
		respondWithError(w, http.StatusRequestEntityTooLarge, "batch exceeds "+strconv.Itoa(s.cfg.MaxBatch)+" candidates")
		return
	}

	jobs := make([]pipeline.Job, 0, n)
	for _, c := range req.Candidates {
		jobs = append(jobs, pipeline.Job{UserID: req.UserID, Candidate: c})
	}
	for _, rec := range req.Records {
		jobs = append(jobs, pipeline.Job{UserID: req.UserID, Candidate: normalize.Record(rec)})
	}

	report, err := s.deps.Pipeline.RunJobs(r.Context(), jobs)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (s *Server) prospect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prospector == nil {
		respondWithError(w, http.StatusNotImplemented, "prospecting is not configured")
		return
	}
	var req ProspectRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		respondWithError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Validate && req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required to validate")
		return
	}
	if req.Limit < 0 {
		respondWithError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}
	if req.Limit == 0 || req.Limit > s.cfg.MaxBatch {
		req.Limit = s.cfg.MaxBatch
	}

	items, err := source.Collect(r.Context(), s.deps.Prospector(req), req.Limit)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	if !req.Validate {
		resp := ProspectResponse{Candidates: make([]model.CandidateLead, len(items))}
		for i, it := range items {
			resp.Candidates[i] = it.Candidate
		}
		respondWithJSON(w, http.StatusOK, resp)
		return
	}

	jobs := make([]pipeline.Job, len(items))
	for i, it := range items {
		jobs[i] = pipeline.Job{UserID: req.UserID, Candidate: it.Candidate}
	}
	report, err := s.deps.Pipeline.RunJobs(r.Context(), jobs)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ProspectResponse{Report: report})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LeadFilter{
		UserID: q.Get("user_id"),
		Status: model.LeadStatus(q.Get("status")),
	}
	if filter.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var err error
	if filter.Since, err = parseTime(q.Get("since")); err != nil {
		respondWithError(w, http.StatusBadRequest, "since must be RFC3339")
		return
	}
	if filter.Until, err = parseTime(q.Get("until")); err != nil {
		respondWithError(w, http.StatusBadRequest, "until must be RFC3339")
		return
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil {
		respondWithError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = parseInt(q.Get("offset")); err != nil {
		respondWithError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	leads, err := s.deps.Store.ListLeads(r.Context(), filter)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.PersistedLead{}
	}
	respondWithJSON(w, http.StatusOK, leads)
}

func (s *Server) reaudit(w http.ResponseWriter, r *http.Request) {
	var req ReauditRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sum, err := s.deps.Auditor.Reaudit(r.Context(), reaudit.Window{Since: req.Since, Until: req.Until}, req.UserID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sum)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
