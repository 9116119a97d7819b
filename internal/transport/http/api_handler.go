package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"quizsync/internal/domain"
)

// ResultSyncer is the reconciler surface exposed over HTTP.
type ResultSyncer interface {
	Load(ctx context.Context) domain.FetchOutcome
	Sync(ctx context.Context) domain.SyncReport
	Status(ctx context.Context) (domain.SyncStatus, bool, error)
}

type APIHandler struct {
	results ResultSyncer
	log     *zap.Logger
}

func NewAPIHandler(results ResultSyncer, log *zap.Logger) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{results: results, log: log}
}

type fetchResponse struct {
	Source  domain.SaveSource `json:"source"`
	Results domain.ResultLog  `json:"results"`
	Error   string            `json:"error,omitempty"`
}

type syncResponse struct {
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
	Fetch     fetchResponse `json:"fetch"`
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/results", h.Results)
	mux.HandleFunc("/sync", h.Sync)
	mux.HandleFunc("/sync/status", h.Status)
}

// Results serves the merged result log; degraded loads still answer 200.
func (h *APIHandler) Results(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, toFetchResponse(h.results.Load(r.Context())))
}

func (h *APIHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	report := h.results.Sync(r.Context())
	writeJSON(w, http.StatusOK, syncResponse{
		Attempted: report.Attempted,
		Synced:    report.Synced,
		Failed:    report.Failed,
		Errors:    report.Errors,
		Fetch:     toFetchResponse(report.Fetch),
	})
}

func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	status, ok, err := h.results.Status(r.Context())
	if err != nil {
		h.log.Error("read sync status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: "no sync attempt recorded"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func toFetchResponse(out domain.FetchOutcome) fetchResponse {
	resp := fetchResponse{Source: out.Source, Results: out.Records}
	if resp.Results == nil {
		resp.Results = domain.ResultLog{}
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, http.StatusMethodNotAllowed, errorPayload{Message: "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
