package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soaringjerry/intake/internal/services"
)

type cycleRequest struct {
	DisplayName string    `json:"display_name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// GET /api/cycles
func (rt *Router) handleListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := rt.cycles.List(r.Context())
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

// GET /api/cycles/active
func (rt *Router) handleActiveCycle(w http.ResponseWriter, r *http.Request) {
	c, err := rt.cycles.Active(r.Context())
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /api/cycles/{cycleID}
func (rt *Router) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	c, err := rt.cycles.Get(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// POST /api/cycles
func (rt *Router) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	var req cycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	c, err := rt.cycles.Create(r.Context(), principal(r), req.DisplayName, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /api/cycles/{cycleID}/questions
func (rt *Router) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := rt.questions.ListByCycle(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// GET /api/cycles/{cycleID}/form
func (rt *Router) handleForm(w http.ResponseWriter, r *http.Request) {
	fields, err := rt.questions.FieldViews(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

type questionRequest struct {
	services.Question
	Position *int `json:"position,omitempty"`
}

// POST /api/cycles/{cycleID}/questions
func (rt *Router) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	q := req.Question
	q.CycleID = chi.URLParam(r, "cycleID")
	out, err := rt.questions.Create(r.Context(), principal(r), &q, req.Position)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// PUT /api/questions/{questionID}
func (rt *Router) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q services.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	q.ID = chi.URLParam(r, "questionID")
	out, err := rt.questions.Update(r.Context(), principal(r), &q)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /api/questions/{questionID}
func (rt *Router) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := rt.questions.Delete(r.Context(), principal(r), chi.URLParam(r, "questionID")); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderRequest struct {
	IDs []string `json:"ids"`
}

type moveRequest struct {
	MovedID  string `json:"moved_id"`
	TargetID string `json:"target_id"`
}

// PUT /api/cycles/{cycleID}/questions/order
func (rt *Router) handleReorderQuestions(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	qs, err := rt.questions.Reorder(r.Context(), principal(r), chi.URLParam(r, "cycleID"), req.IDs)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// POST /api/cycles/{cycleID}/questions/move
func (rt *Router) handleMoveQuestion(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	qs, err := rt.questions.Move(r.Context(), principal(r), chi.URLParam(r, "cycleID"), req.MovedID, req.TargetID)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// GET /api/cycles/{cycleID}/phases
func (rt *Router) handleListPhases(w http.ResponseWriter, r *http.Request) {
	ps, err := rt.phases.ListByCycle(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phases": ps})
}

type phaseRequest struct {
	services.Phase
	Position *int `json:"position,omitempty"`
}

// POST /api/cycles/{cycleID}/phases
func (rt *Router) handleCreatePhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	ph := req.Phase
	ph.CycleID = chi.URLParam(r, "cycleID")
	out, err := rt.phases.Create(r.Context(), principal(r), &ph, req.Position)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// PUT /api/phases/{phaseID}
func (rt *Router) handleUpdatePhase(w http.ResponseWriter, r *http.Request) {
	var ph services.Phase
	if err := decodeJSON(r, &ph); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	ph.ID = chi.URLParam(r, "phaseID")
	out, err := rt.phases.Update(r.Context(), principal(r), &ph)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /api/phases/{phaseID}
func (rt *Router) handleDeletePhase(w http.ResponseWriter, r *http.Request) {
	if err := rt.phases.Delete(r.Context(), principal(r), chi.URLParam(r, "phaseID")); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/cycles/{cycleID}/phases/order
func (rt *Router) handleReorderPhases(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	ps, err := rt.phases.Reorder(r.Context(), principal(r), chi.URLParam(r, "cycleID"), req.IDs)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phases": ps})
}

// POST /api/cycles/{cycleID}/phases/move
func (rt *Router) handleMovePhase(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	ps, err := rt.phases.Move(r.Context(), principal(r), chi.URLParam(r, "cycleID"), req.MovedID, req.TargetID)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phases": ps})
}
