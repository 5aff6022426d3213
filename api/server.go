// Package api exposes the analysis engine over HTTP. One endpoint runs an
// analysis on an uploaded frame, one serves the stored history, one reports
// liveness. The server owns no capture or scheduling; callers decide when
// frames arrive.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/beachwatch/go-crowd/engine"
	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/images"
	"github.com/beachwatch/go-crowd/internal/profiler"
	"github.com/beachwatch/go-crowd/score"
	"github.com/beachwatch/go-crowd/store"
)

const maxUploadBytes = 20 << 20

// statusClientClosedRequest mirrors the nginx convention for requests the
// client abandoned mid-flight.
const statusClientClosedRequest = 499

// Server serves analyses over HTTP. The store is optional; without one,
// results are returned but not persisted and /results reports the store
// as unavailable.
type Server struct {
	engine *engine.Engine
	store  *store.Store
	log    *logrus.Logger
	stats  *profiler.Tracker
}

// NewServer wires the engine and an optional store into a Server.
func NewServer(eng *engine.Engine, st *store.Store, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{engine: eng, store: st, log: log, stats: profiler.New()}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

type analyzeResponse struct {
	Status engine.Status  `json:"status"`
	Record *engine.Record `json:"record"`
}

type resultsResponse struct {
	Results []engine.Record `json:"results"`
	Count   int             `json:"count"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	defer s.stats.StartOperation("analyze")()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	imgBytes, err := readFrame(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "image exceeds %d bytes", maxUploadBytes)
			return
		}
		s.sendError(w, http.StatusBadRequest, "reading image: %v", err)
		return
	}

	img, _, err := images.DecodeBytes(imgBytes)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "%v", err)
		return
	}

	areaStr := r.FormValue("area_sqm")
	if areaStr == "" {
		s.sendError(w, http.StatusBadRequest, "area_sqm parameter is required")
		return
	}
	areaSqm, err := strconv.ParseFloat(areaStr, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid area_sqm %q", areaStr)
		return
	}

	req := engine.Request{
		Location: r.FormValue("location"),
		Area:     score.NewTargetArea(areaSqm),
	}

	outcome := s.engine.Analyze(r.Context(), img, req)
	switch outcome.Status {
	case engine.StatusSuccess, engine.StatusFallbackSuccess:
		if s.store != nil {
			if err := s.store.Insert(r.Context(), outcome.Record); err != nil {
				s.log.WithError(err).Warn("persisting analysis record")
			}
		}
		s.log.WithFields(logrus.Fields{
			"location": outcome.Record.Location,
			"status":   outcome.Status,
			"count":    outcome.Record.PersonCount,
			"score":    outcome.Record.Busyness.Score,
		}).Info("analysis served")
		s.sendJSON(w, http.StatusOK, analyzeResponse{Status: outcome.Status, Record: outcome.Record})
	case engine.StatusCanceled:
		s.sendError(w, statusClientClosedRequest, "analysis canceled")
	default:
		status := http.StatusUnprocessableEntity
		if errdefs.IsConfiguration(outcome.Err) {
			status = http.StatusBadRequest
		}
		s.sendError(w, status, "%v", outcome.Err)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.sendError(w, http.StatusServiceUnavailable, "no analysis store configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.sendError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		limit = min(parsed, 500)
	}

	records, err := s.store.Recent(r.Context(), r.URL.Query().Get("location"), limit)
	if err != nil {
		s.log.WithError(err).Error("querying analysis history")
		s.sendError(w, http.StatusInternalServerError, "querying history failed")
		return
	}
	if records == nil {
		records = []engine.Record{}
	}

	s.sendJSON(w, http.StatusOK, resultsResponse{Results: records, Count: len(records)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.engine.Backend(),
	})
}

type statsResponse struct {
	Backend    string                         `json:"backend"`
	Runtime    profiler.RuntimeSnapshot       `json:"runtime"`
	Operations map[string]profiler.OpSnapshot `json:"operations"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, statsResponse{
		Backend:    s.engine.Backend(),
		Runtime:    s.stats.Runtime(),
		Operations: s.stats.Operations(),
	})
}

// readFrame pulls the image bytes out of a multipart upload's "image"
// field, or out of the raw request body for any other content type.
func readFrame(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Debug("writing response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.log.WithField("status", status).Debug(msg)
	s.sendJSON(w, status, errorBody{Error: msg})
}
