// HTTP transport for the process service.
//
// An optional x-user-id header forwarded by the Gateway identifies the actor
// of a transition.
//
// Routes:
//
//	POST   /processes                               → create the APPLIED instance
//	GET    /processes/{id}                          → instance by id
//	PATCH  /processes/{id}/transition               → move to a new stage
//	GET    /processes/{id}/history                  → transition log, newest first
//	GET    /applications/{id}/process               → instance by application
//	PATCH  /applications/{id}/process/transition    → move by application
//	GET    /applications/{id}/process/history       → log by application
//	DELETE /applications/{id}/process               → withdraw while APPLIED
//	GET    /postings/{id}/processes[?stage=]        → instances of a posting
//	GET    /postings/{id}/stats                     → posting funnel
//	POST   /postings/stats                          → funnel over several postings
//	GET    /applicants/{id}/processes               → instances of an applicant
//	GET    /applicants/{id}/stats                   → applicant funnel
//	GET    /stages                                  → stage metadata
package process

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	svc   *Service
	stats *Aggregator
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service, stats *Aggregator) *Handler {
	return &Handler{svc: svc, stats: stats}
}

// RegisterRoutes mounts all process-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /processes", h.createProcess)
	mux.HandleFunc("GET /processes/{id}", h.getProcess)
	mux.HandleFunc("PATCH /processes/{id}/transition", h.transitionProcess)
	mux.HandleFunc("GET /processes/{id}/history", h.processHistory)

	mux.HandleFunc("GET /applications/{id}/process", h.getByApplication)
	mux.HandleFunc("PATCH /applications/{id}/process/transition", h.transitionByApplication)
	mux.HandleFunc("GET /applications/{id}/process/history", h.applicationHistory)
	mux.HandleFunc("DELETE /applications/{id}/process", h.withdraw)

	mux.HandleFunc("GET /postings/{id}/processes", h.listByPosting)
	mux.HandleFunc("GET /postings/{id}/stats", h.postingStats)
	mux.HandleFunc("POST /postings/stats", h.postingSetStats)

	mux.HandleFunc("GET /applicants/{id}/processes", h.listByApplicant)
	mux.HandleFunc("GET /applicants/{id}/stats", h.applicantStats)

	mux.HandleFunc("GET /stages", h.listStages)
}

// ─── Instances ───────────────────────────────────────────────────────────────

func (h *Handler) createProcess(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	var (
		inst *Instance
		err  error
	)
	if req.PostingID == 0 {
		inst, err = h.svc.CreateForApplication(r.Context(), req.ApplicationID)
	} else {
		inst, err = h.svc.CreateProcess(r.Context(), req.ApplicationID, req.PostingID, req.ApplicantID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, inst)
}

func (h *Handler) getProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inst, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, inst)
}

func (h *Handler) getByApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inst, err := h.svc.GetByApplication(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, inst)
}

func (h *Handler) transitionProcess(w http.ResponseWriter, r *http.Request) {
	id, req, ok := transitionInput(w, r)
	if !ok {
		return
	}
	inst, err := h.svc.Transition(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, inst)
}

func (h *Handler) transitionByApplication(w http.ResponseWriter, r *http.Request) {
	id, req, ok := transitionInput(w, r)
	if !ok {
		return
	}
	inst, err := h.svc.TransitionByApplication(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, inst)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Withdraw(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── History ─────────────────────────────────────────────────────────────────

func (h *Handler) processHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, entries)
}

func (h *Handler) applicationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.HistoryByApplication(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, entries)
}

// ─── Listings & stats ────────────────────────────────────────────────────────

func (h *Handler) listByPosting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var stage *Stage
	if raw := r.URL.Query().Get("stage"); raw != "" {
		s, err := ParseStage(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		stage = &s
	}
	list, err := h.svc.ListByPosting(r.Context(), id, stage)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, list)
}

func (h *Handler) listByApplicant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListByApplicant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, list)
}

func (h *Handler) postingStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := h.stats.PostingStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, st)
}

func (h *Handler) postingSetStats(w http.ResponseWriter, r *http.Request) {
	var req PostingSetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	st, err := h.stats.PostingSetStats(r.Context(), req.PostingIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, st)
}

func (h *Handler) applicantStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := h.stats.ApplicantStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, st)
}

func (h *Handler) listStages(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, h.svc.Stages())
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func transitionInput(w http.ResponseWriter, r *http.Request) (int64, TransitionRequest, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return 0, TransitionRequest{}, false
	}
	actor, err := actorID(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return 0, TransitionRequest{}, false
	}
	var body TransitionBody
	if !decodeBody(w, r, &body) {
		return 0, TransitionRequest{}, false
	}
	req, err := body.Request(actor)
	if err != nil {
		writeError(w, err)
		return 0, TransitionRequest{}, false
	}
	return id, req, true
}

// actorID reads the optional x-user-id header.
func actorID(r *http.Request) (*int64, error) {
	raw := r.Header.Get("x-user-id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("x-user-id must be a positive integer")
	}
	return &id, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// HTTPStatus maps a service error to its HTTP status code.
func HTTPStatus(err error) int {
	var (
		ve  *ValidationError
		ite *IllegalTransitionError
	)
	switch {
	case errors.Is(err, ErrPersistence):
		return http.StatusInternalServerError
	case errors.As(err, &ve), errors.As(err, &ite), errors.Is(err, ErrInvalidStage), errors.Is(err, ErrDirectoryUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, ErrInstanceNotFound), errors.Is(err, ErrApplicationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateApplication), errors.Is(err, ErrNotWithdrawable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := HTTPStatus(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		jsonError(w, "internal server error", code)
		return
	}
	var ite *IllegalTransitionError
	if errors.As(err, &ite) {
		jsonStatus(w, code, map[string]any{
			"error":   ite.Error(),
			"from":    ite.From,
			"to":      ite.To,
			"allowed": ite.Allowed,
		})
		return
	}
	jsonError(w, err.Error(), code)
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
