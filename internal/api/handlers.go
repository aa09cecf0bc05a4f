// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/partition"
	"github.com/FairForge/intellinspect/internal/replay"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	maxBodyBytes     = 1 << 20
)

type ingestRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type startRequest struct {
	ModelID         string   `json:"model_id"`
	DatasetID       string   `json:"dataset_id"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	SpeedMultiplier *float64 `json:"speed_multiplier"`
}

type windowRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type partitionRequest struct {
	Training   windowRequest `json:"training"`
	Testing    windowRequest `json:"testing"`
	Simulation windowRequest `json:"simulation"`
}

// DefaultSpeeder is implemented by engines with a configured default multiplier
type DefaultSpeeder interface {
	DefaultSpeed() float64
}

func (s *Server) handleIngestDataset(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := s.decode(r, ingestBodySchema, &req); err != nil {
		s.respondError(w, err)
		return
	}

	p, err := s.catalog.Ingest(r.Context(), req.ID, req.Name, req.URI)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) ||
			errors.Is(err, dataset.ErrUnknownSource) ||
			errors.Is(err, dataset.ErrEmptyFile) ||
			errors.Is(err, dataset.ErrOutsideRoot) {
			err = &ValidationError{Problems: []string{err.Error()}}
		}
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.catalog.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": profiles,
		"count":    len(profiles),
	})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

// handleValidatePartition checks the windows against the dataset bounds.
// Valid partitions are saved; invalid ones return every violation with 422.
func (s *Server) handleValidatePartition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req partitionRequest
	if err := s.decode(r, partitionBodySchema, &req); err != nil {
		s.respondError(w, err)
		return
	}

	p, err := req.toPartition()
	if err != nil {
		s.respondError(w, err)
		return
	}

	profile, err := s.catalog.Profile(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	result := partition.Validate(partition.Bounds{
		Earliest: profile.Earliest,
		Latest:   profile.Latest,
		RowCount: profile.RowCount,
	}, p)
	if !result.Valid {
		s.respondJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	if err := s.partitions.SavePartition(r.Context(), id, p); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetPartition(w http.ResponseWriter, r *http.Request) {
	p, err := s.partitions.LoadPartition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := s.decode(r, startBodySchema, &req); err != nil {
		s.respondError(w, err)
		return
	}

	window, err := parseWindow("simulation", windowRequest{Start: req.Start, End: req.End})
	if err != nil {
		s.respondError(w, err)
		return
	}

	speed := 1.0
	if d, ok := s.engine.(DefaultSpeeder); ok {
		speed = d.DefaultSpeed()
	}
	if req.SpeedMultiplier != nil {
		speed = *req.SpeedMultiplier
	}

	id, err := s.engine.StartSession(r.Context(), replay.Request{
		ModelID:         req.ModelID,
		DatasetID:       req.DatasetID,
		Window:          window,
		SpeedMultiplier: speed,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"status":     string(domain.StatusStarting),
	})
}

func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	sessions, err := s.engine.ListSessions(r.Context(), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": sessions,
		"count":       len(sessions),
	})
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Pause(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	// the worker writes the paused state once it notices the signal
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"message":    "simulation pause requested",
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Resume(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "simulation resumed",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Stop(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "simulation stopped",
	})
}

func (s *Server) handleGetPredictions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	preds, err := s.engine.GetPredictions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": preds,
		"count":       len(preds),
	})
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	alerts, err := s.engine.GetAlerts(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// decode validates the body against sch, then unmarshals it into dst
func (s *Server) decode(r *http.Request, sch schema, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("read body: %v", err)}}
	}
	if err := sch.validate(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("decode body: %v", err)}}
	}
	return nil
}

func (p partitionRequest) toPartition() (partition.Partition, error) {
	var out partition.Partition
	var problems []string
	for _, w := range []struct {
		name string
		req  windowRequest
		dst  *partition.Window
	}{
		{partition.Training, p.Training, &out.Training},
		{partition.Testing, p.Testing, &out.Testing},
		{partition.Simulation, p.Simulation, &out.Simulation},
	} {
		win, err := parseWindow(w.name, w.req)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				problems = append(problems, ve.Problems...)
			}
			continue
		}
		*w.dst = win
	}
	if len(problems) > 0 {
		return partition.Partition{}, &ValidationError{Problems: problems}
	}
	return out, nil
}

func parseWindow(name string, req windowRequest) (partition.Window, error) {
	var problems []string
	start, ok := dataset.ParseTimestamp(req.Start)
	if !ok {
		problems = append(problems, fmt.Sprintf("%s start: unrecognized timestamp %q", name, req.Start))
	}
	end, ok := dataset.ParseTimestamp(req.End)
	if !ok {
		problems = append(problems, fmt.Sprintf("%s end: unrecognized timestamp %q", name, req.End))
	}
	if len(problems) > 0 {
		return partition.Window{}, &ValidationError{Problems: problems}
	}
	return partition.Window{Start: start, End: end}, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &ValidationError{Problems: []string{fmt.Sprintf("limit must be a positive integer, got %q", raw)}}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, replay.ErrInvalidRequest), errors.Is(err, replay.ErrModelNotReady):
		return http.StatusBadRequest
	case errors.Is(err, replay.ErrInvalidTransition), errors.Is(err, replay.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	} else {
		s.logger.Debug("request rejected", zap.Error(err), zap.Int("status", status))
	}

	body := map[string]interface{}{"error": err.Error()}
	var ve *ValidationError
	if errors.As(err, &ve) {
		body["errors"] = ve.Problems
	}
	s.respondJSON(w, status, body)
}
