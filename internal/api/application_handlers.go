package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soaringjerry/intake/internal/services"
)

// POST /api/applications {cycle_id?}
func (rt *Router) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CycleID string `json:"cycle_id"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, rt.logger, err)
			return
		}
	}
	app, err := rt.applications.Create(r.Context(), principal(r), req.CycleID)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// GET /api/applications/mine?cycle_id=&user_id=
// Responds 200 with {"application": null} when there is none.
func (rt *Router) handleMyApplication(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	app, err := rt.applications.Get(r.Context(), principal(r), q.Get("user_id"), q.Get("cycle_id"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"application": app})
}

// GET /api/applications/{applicationID}
func (rt *Router) handleApplicationDetail(w http.ResponseWriter, r *http.Request) {
	d, err := rt.applications.GetApplicationDetail(r.Context(), principal(r), chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /api/applications/{applicationID}/responses
func (rt *Router) handleListResponses(w http.ResponseWriter, r *http.Request) {
	rs, err := rt.applications.ListResponses(r.Context(), principal(r), chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": rs})
}

// PUT /api/applications/{applicationID}/responses/{questionID} {value}
func (rt *Router) handleUpsertResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	resp, err := rt.applications.UpsertResponse(r.Context(), principal(r), chi.URLParam(r, "applicationID"), chi.URLParam(r, "questionID"), req.Value)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/applications/{applicationID}/uploads {question_id, name, content_type, size}
func (rt *Router) handleRequestUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"question_id"`
		services.FileMeta
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	target, err := rt.applications.RequestUpload(r.Context(), principal(r), chi.URLParam(r, "applicationID"), req.QuestionID, req.FileMeta)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

// POST /api/applications/{applicationID}/submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	app, err := rt.applications.Submit(r.Context(), principal(r), chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// PUT /api/applications/{applicationID}/phase {phase_id: string|null}
func (rt *Router) handleAssignPhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhaseID *string `json:"phase_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}
	phaseID := ""
	if req.PhaseID != nil {
		phaseID = *req.PhaseID
	}
	app, err := rt.applications.AssignPhase(r.Context(), principal(r), chi.URLParam(r, "applicationID"), phaseID)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// GET /api/applications?cycle_id=&phase_id=&unphased=&submitted=
func (rt *Router) handleListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := services.ApplicationFilter{
		CycleID:       q.Get("cycle_id"),
		PhaseID:       q.Get("phase_id"),
		Unphased:      queryBool(r, "unphased"),
		SubmittedOnly: queryBool(r, "submitted"),
	}
	apps, err := rt.applications.ListApplications(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

// GET /api/cycles/{cycleID}/analytics
func (rt *Router) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	sum, err := rt.analytics.Summary(r.Context(), principal(r), chi.URLParam(r, "cycleID"))
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/export?cycle_id=&format=wide|long|questions&submitted=
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := rt.exports.ExportCSV(r.Context(), principal(r), services.ExportParams{
		CycleID:       q.Get("cycle_id"),
		Format:        q.Get("format"),
		SubmittedOnly: queryBool(r, "submitted"),
	})
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(res.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}
