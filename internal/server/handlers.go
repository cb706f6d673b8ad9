package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/forgeworks/appforge/internal/eventstore"
	"github.com/forgeworks/appforge/internal/models"
	"github.com/forgeworks/appforge/internal/queue"
	"github.com/forgeworks/appforge/internal/state"
)

// submitRequest is the POST /api/v1/jobs body.
type submitRequest struct {
	PartnerID string               `json:"partner_id"`
	Tier      models.Tier          `json:"tier"`
	BuildKind models.BuildKind     `json:"build_kind,omitempty"`
	Config    models.PartnerConfig `json:"config"`
	Assets    []models.Asset       `json:"assets,omitempty"`
}

type submitResponse struct {
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	job := &models.BuildJob{
		PartnerID: req.PartnerID,
		Tier:      req.Tier,
		BuildKind: req.BuildKind,
		Config:    req.Config,
		Assets:    req.Assets,
	}
	id, err := s.queue.Submit(r.Context(), job)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			writeError(w, http.StatusUnprocessableEntity, err)
		case errors.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, err)
		case errors.Is(err, queue.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, Position: s.queue.PositionOf(id)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, s.store.List(status))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Job(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.queue.Cancel(r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case errors.Is(err, queue.ErrJobTerminal):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, queue.ErrUnknownJob), errors.Is(err, state.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.queue.Job(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"position": s.queue.PositionOf(id)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.queue.Job(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var evs []eventstore.Event
	var err error
	if stage := r.URL.Query().Get("stage"); stage != "" {
		evs, err = s.events.GetByStage(r.Context(), id, stage)
	} else {
		evs, err = s.events.GetByJobID(r.Context(), id)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	type eventView struct {
		Type      string          `json:"type"`
		Stage     string          `json:"stage,omitempty"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	out := make([]eventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventView{Type: ev.Type(), Stage: ev.Stage(), Timestamp: ev.Timestamp(), Payload: ev.Payload()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProgress streams progress events for one job as server-sent events
// until the job reaches a terminal state or the client disconnects.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.queue.Job(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	// Subscribe before the terminal check so no event slips between them.
	ch, cancel := s.broker.Subscribe(id, 64)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	writeSSE := func(ev models.ProgressEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// Replay current state first so late subscribers see where the job is.
	writeSSE(models.ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Stage:     job.CurrentStage,
		Percent:   job.ProgressPercent,
		Error:     job.LastError,
		Timestamp: time.Now().UTC(),
	})
	if job.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if !writeSSE(ev) {
				return
			}
			if ev.Status.Terminal() {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if kind := models.KindOf(err); kind != models.KindNone {
		resp.Kind = string(kind)
	}
	writeJSON(w, status, resp)
}
