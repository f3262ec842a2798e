package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/fsutil"
	"github.com/jaynair0405/sub-spm/internal/httputil"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/report"
	"github.com/jaynair0405/sub-spm/internal/security"
	"github.com/jaynair0405/sub-spm/internal/spm"
)

// uploadResponse is the analysis of a stored upload.
type uploadResponse struct {
	RunID string `json:"run_id"`
	*analysis.Result
}

func formFlag(r *http.Request, key string) bool {
	switch strings.ToLower(r.FormValue(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// storeError turns store lookups that miss into 404s.
func storeError(err error) error {
	if errors.Is(err, db.ErrRunNotFound) {
		return httputil.Errorf(http.StatusNotFound, "%w", err)
	}
	return err
}

// uploadRun analyses a multipart SPM log and stores the result. A run with
// the same date, train and endpoints is refused with 409 unless replace=1,
// which deletes the earlier run first.
func (s *Server) uploadRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "failed to read upload: "+err.Error())
		return
	}

	raw, err := spm.ReadCSV(bytes.NewReader(data))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	req := analysis.Request{
		Filename:    security.SafeUploadName(hdr.Filename),
		TrainNumber: strings.TrimSpace(r.FormValue("train_number")),
		From:        r.FormValue("from_station"),
		To:          r.FormValue("to_station"),
		StaffID:     strings.TrimSpace(r.FormValue("staff_id")),
		Notes:       strings.TrimSpace(r.FormValue("notes")),
		Debug:       formFlag(r, "debug"),
	}
	ctx := r.Context()
	res, err := s.analyzer.Analyze(ctx, raw, req)
	if errors.Is(err, analysis.ErrNoSamples) {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if req.TrainNumber != "" {
		key := db.NewRun("", s.clock.Now(), res)
		existing, err := s.store.FindRun(ctx, key.RunDate, key.TrainNumber, key.FromStation, key.ToStation)
		switch {
		case err == nil && !formFlag(r, "replace"):
			httputil.WriteJSON(w, http.StatusConflict, map[string]string{
				"error":  fmt.Sprintf("run for train %s on %s from %s to %s already stored", key.TrainNumber, key.RunDate, key.FromStation, key.ToStation),
				"run_id": existing.ID,
			})
			return
		case err == nil:
			if err := s.removeRun(r, existing.ID); err != nil {
				httputil.WriteError(w, err)
				return
			}
		case !errors.Is(err, db.ErrRunNotFound):
			httputil.WriteError(w, err)
			return
		}
	}

	id, err := s.store.SaveRun(ctx, res)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if s.archive != nil {
		if err := s.archive.Save(id, data); err != nil {
			monitoring.Logf("api: run %s stored but upload not archived: %v", id, err)
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{RunID: id, Result: res})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := db.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, storeError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (s *Server) getPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.GetPoints(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, storeError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, points)
}

// removeRun deletes a stored run and its archived upload.
func (s *Server) removeRun(r *http.Request, id string) error {
	if err := s.store.DeleteRun(r.Context(), id); err != nil {
		return storeError(err)
	}
	if s.archive != nil {
		if err := s.archive.Delete(id); err != nil {
			monitoring.Logf("api: run %s deleted but upload kept: %v", id, err)
		}
	}
	return nil
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.removeRun(r, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) runChart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, storeError(err))
		return
	}
	points, err := s.store.GetPoints(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, storeError(err))
		return
	}
	series := report.FromStored(run, points)
	httputil.WriteHTML(w, func(out io.Writer) error {
		return report.RenderHTML(out, series)
	})
}

// runSource returns the archived upload of a run.
func (s *Server) runSource(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		httputil.NotFound(w, "uploads are not archived")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, storeError(err))
		return
	}
	data, err := s.archive.Load(id)
	if errors.Is(err, fsutil.ErrNotArchived) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", security.SafeUploadName(run.Filename)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
