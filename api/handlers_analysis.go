package api

import (
	"net/http"

	"cognosis/app"
	"cognosis/domain/core"
)

// handleAnalysis runs the batch statistics over settled trials. With a
// party query parameter the batch is restricted to that party's trials.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.runAnalysis(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleAnalysisReport renders the batch report. The default is HTML;
// format=markdown returns the raw markdown.
func (s *Server) handleAnalysisReport(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.runAnalysis(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(app.RenderReportMarkdown(analysis)))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(app.RenderReportHTML(analysis))
}

func (s *Server) handleAnalysisExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Path == "" {
		writeError(w, core.NewValidationError("path", "cannot be empty"))
		return
	}

	if err := s.analysis.ExportBatchReport(r.Context(), req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

func (s *Server) runAnalysis(r *http.Request) (*app.BatchAnalysis, error) {
	if party := r.URL.Query().Get("party"); party != "" {
		return s.analysis.AnalyzeParty(r.Context(), core.PartyID(party))
	}
	return s.analysis.AnalyzeAll(r.Context())
}
