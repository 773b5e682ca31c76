package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/noma-protocol/pricefeed/internal/tracker"
)

// handleGetPools lists registered pools with their latest price.
func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request) {
	ids := s.tracker.Pools()

	pools := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		entry := map[string]interface{}{"pool": id}
		if latest, err := s.tracker.GetLatest(id); err == nil {
			entry["price"] = latest.Price
			entry["lastUpdated"] = latest.LastUpdated
		}
		pools = append(pools, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

// handleGetLatest returns the most recent price for a pool. Tries the Redis
// cache first and falls back to the in-memory series.
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]

	if s.redis != nil {
		if latest, err := s.redis.GetLatest(r.Context(), pool); err == nil && latest != nil {
			writeJSON(w, http.StatusOK, latest)
			return
		}
	}

	latest, err := s.tracker.GetLatest(pool)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// handleGetCandles returns one interval's candles with range and limit.
func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]
	q := r.URL.Query()

	interval := q.Get("interval")
	if interval == "" {
		interval = "1h"
	}

	from, err := parseOptionalInt(q.Get("from"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := parseOptionalInt(q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	candles, err := s.tracker.GetCandles(pool, interval, from, to, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candles": candles,
		"count":   len(candles),
	})
}

// handleGetAllIntervals returns every interval's candles for a pool.
func (s *Server) handleGetAllIntervals(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	intervals, err := s.tracker.GetAllIntervals(pool, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intervals)
}

// handleGetVolume returns the rolling volume sums for a pool.
func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]

	volume, err := s.tracker.GetVolume(pool)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, volume)
}

// handleGetStats returns price change over one trailing interval.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "24h"
	}

	stats, err := s.tracker.GetStats(pool, interval)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeError maps the tracker error taxonomy onto HTTP statuses. Pending is
// surfaced distinctly from not-found so clients can poll and retry.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *tracker.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Msg})
	case errors.Is(err, tracker.ErrPending):
		writeJSON(w, http.StatusAccepted, map[string]string{"error": "pending", "detail": err.Error()})
	case errors.Is(err, tracker.ErrNoData), errors.Is(err, tracker.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.logger.WithError(err).Error("Query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseOptionalInt(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &tracker.ValidationError{Msg: "invalid timestamp: " + raw}
	}
	return &v, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return tracker.DefaultQueryLimit, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, &tracker.ValidationError{Msg: "invalid limit: " + raw}
	}
	if v > tracker.DefaultQueryLimit {
		v = tracker.DefaultQueryLimit
	}
	return v, nil
}
