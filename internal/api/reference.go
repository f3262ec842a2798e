package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/httputil"
	"github.com/jaynair0405/sub-spm/internal/version"
)

// health reports store connectivity and the loaded reference data.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"version":   version.Version,
		"corridors": len(s.analyzer.Corridors().Summaries()),
		"timestamp": s.clock.Now().UTC(),
	}
	if _, err := s.store.ListRuns(ctx, 1); err != nil {
		body["status"] = "error"
		body["database"] = "disconnected"
		body["error"] = err.Error()
		httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ok"
	body["database"] = "connected"
	httputil.WriteJSON(w, http.StatusOK, body)
}

func (s *Server) listCorridors(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.analyzer.Corridors().Summaries())
}

type trainInfoResponse struct {
	TrainNumber    string               `json:"train_number"`
	Code           string               `json:"code"`
	Corridor       *corridor.Info       `json:"corridor"`
	CorridorLoaded bool                 `json:"corridor_loaded"`
	Halts          *corridor.TrainHalts `json:"nominated_halts,omitempty"`
}

// trainInfo resolves a train number. from and to query parameters pick the
// branch for trains whose corridor depends on their endpoints.
func (s *Server) trainInfo(w http.ResponseWriter, r *http.Request) {
	m := s.analyzer.Corridors()
	train := chi.URLParam(r, "train")
	code, ok := m.TrainCode(train)
	if !ok {
		httputil.NotFound(w, "unknown train "+train)
		return
	}

	resp := trainInfoResponse{TrainNumber: corridor.NormalizeTrainNumber(train), Code: code}
	q := r.URL.Query()
	if info, ok := m.ResolveTrain(train, q.Get("from"), q.Get("to")); ok {
		resp.Corridor = &info
		_, resp.CorridorLoaded = m.Corridor(info.Corridor)
	}
	if h, ok := m.TrainHalts(train); ok {
		resp.Halts = &h
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// stationBraking lists stored platform approaches to a station. Optional
// query parameters: direction, from and to (YYYY-MM-DD), limit.
func (s *Server) stationBraking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := db.BrakingQuery{
		Station:   corridor.NormalizeStation(chi.URLParam(r, "code")),
		Direction: strings.ToUpper(strings.TrimSpace(q.Get("direction"))),
		FromDate:  q.Get("from"),
		ToDate:    q.Get("to"),
	}
	for name, v := range map[string]string{"from": query.FromDate, "to": query.ToDate} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			httputil.BadRequest(w, "invalid '"+name+"' date, want YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		query.Limit = n
	}

	records, err := s.store.BrakingHistory(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}
