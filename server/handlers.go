// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alan-mat/exqa/internal/eval"
	"github.com/alan-mat/exqa/internal/metrics"
	"github.com/alan-mat/exqa/internal/search"
	"github.com/alan-mat/exqa/internal/tasks"
	"github.com/alan-mat/exqa/internal/transport"
	"github.com/gorilla/mux"
)

const rootText = "<h1>A self-documenting API to answer a question given to context in an Elastic Search cluster</h1>"

// textMessage is the request and response body of the extraction endpoints.
type textMessage struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, textMessage{Text: rootText})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req textMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "question text is required")
		return
	}

	start := time.Now()
	res, err := s.pipeline.Extract(r.Context(), req.Text)
	if err != nil {
		s.metrics.ObserveExtract(metrics.OutcomeError, 0, time.Since(start))
		slog.Error("failed to extract answer", "question", req.Text, "err", err)

		if search.IsConnectivity(err) {
			writeError(w, http.StatusServiceUnavailable, "search backend unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	outcome := metrics.OutcomeNotFound
	if res.Found {
		outcome = metrics.OutcomeFound
	}
	s.metrics.ObserveExtract(outcome, res.Passages, time.Since(start))
	slog.Debug("extracted answer", "question", req.Text, "answer", res.Answer, "score", res.Score, "passages", res.Passages)

	writeJSON(w, http.StatusOK, textMessage{Text: res.Answer})
}

type evaluationRequest struct {
	Mode        string `json:"mode"`
	DatasetPath string `json:"dataset_path"`
	ValSetSize  int    `json:"val_set_size"`
	ContextSize *int   `json:"context_size"`
	IndexName   string `json:"index_name"`
	Model       string `json:"model"`
	Workers     int    `json:"workers"`
}

func (s *Server) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if _, err := eval.ParseMode(req.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DatasetPath == "" {
		writeError(w, http.StatusBadRequest, "dataset_path is required")
		return
	}
	if req.ValSetSize < 0 {
		writeError(w, http.StatusBadRequest, "val_set_size must not be negative")
		return
	}
	datasetPath, err := s.config.DatasetPath(req.DatasetPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h := s.config.Hyperparams
	p := tasks.EvaluatePayload{
		Mode:        req.Mode,
		DatasetPath: datasetPath,
		ValSetSize:  req.ValSetSize,
		ContextSize: h.Size(),
		IndexName:   h.IndexName,
		Model:       h.ModelCheckpoint,
		Workers:     req.Workers,
	}
	if req.ContextSize != nil {
		if *req.ContextSize < 0 {
			writeError(w, http.StatusBadRequest, "context_size must not be negative")
			return
		}
		p.ContextSize = *req.ContextSize
	}
	if req.IndexName != "" {
		p.IndexName = req.IndexName
	}
	if req.Model != "" {
		p.Model = req.Model
	}

	id, err := tasks.EnqueueEvaluation(r.Context(), s.enqueuer, s.transport, p)
	if err != nil {
		slog.Error("failed to enqueue evaluation", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

type evaluationResponse struct {
	*transport.RunTrace
	Status string       `json:"status"`
	Report *eval.Report `json:"report,omitempty"`
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	trace, err := s.transport.GetTrace(r.Context(), id)
	if errors.Is(err, transport.ErrNotFound) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		slog.Error("failed to get trace", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := evaluationResponse{
		RunTrace: trace,
		Status:   trace.StatusName(),
	}
	if trace.Status == transport.TraceStatusCompleted {
		report, err := s.transport.GetReport(r.Context(), id)
		if err != nil && !errors.Is(err, transport.ErrNotFound) {
			slog.Error("failed to get report", "id", id, "err", err)
		}
		resp.Report = report
	}
	writeJSON(w, http.StatusOK, resp)
}
