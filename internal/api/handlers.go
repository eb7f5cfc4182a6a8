package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/vectorstore"
)

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatsResponse reports collection counts and dynamic-index promotion
// status (spec §4.9 "Dynamic index").
type StatsResponse struct {
	Works       int                         `json:"works"`
	Documents   int                         `json:"documents"`
	Chunks      int                         `json:"chunks"`
	Summaries   int                         `json:"summaries"`
	Collections []vectorstoreCollectionStat `json:"collections"`
}

type vectorstoreCollectionStat struct {
	Name          string `json:"name"`
	Count         int    `json:"count"`
	Threshold     int    `json:"threshold"`
	ShouldPromote bool   `json:"should_promote"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: version,
		Service: "loom-ingest",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	collections := make([]vectorstoreCollectionStat, 0, len(stats))
	for _, st := range stats {
		collections = append(collections, vectorstoreCollectionStat{
			Name:          st.Name,
			Count:         st.Count,
			Threshold:     st.Threshold,
			ShouldPromote: st.ShouldPromote(),
		})
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Works:       s.store.CountWorks(),
		Documents:   s.store.CountDocuments(),
		Chunks:      s.store.CountChunks(),
		Summaries:   s.store.CountSummaries(),
		Collections: collections,
	})
}

// handleQuery decodes the spec §6 Retrieval query envelope from the
// request body and dispatches it to the Retrieval Engine, returning its
// response envelope verbatim (the engine's {ok:false} shape is already
// the stable error envelope spec §4.10 requires; this handler adds no
// extra error wrapping).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req retrieval.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, retrieval.Response{OK: false, Kind: retrieval.ErrKindValidation, Message: "invalid request body: " + err.Error()})
		return
	}

	resp := s.engine.Query(r.Context(), req)
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusBadRequest
		if resp.Kind == retrieval.ErrKindStore {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

// handleVerifyConsistency exposes the verify_consistency operation named
// in spec §9's open questions: callers decide whether to act on reported
// orphan Works, the adapter never auto-deletes them.
func (s *Server) handleVerifyConsistency(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.store.VerifyConsistency(context.Background())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orphans == nil {
		orphans = []vectorstore.OrphanWork{}
	}
	writeJSON(w, http.StatusOK, orphans)
}
