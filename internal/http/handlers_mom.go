package http

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"snowtrack/internal/cache"
	"snowtrack/internal/core"
	"snowtrack/internal/log"
	"snowtrack/internal/metrics"
	"snowtrack/internal/session"
)

// momRowResponse is one row of the MoM table.
type momRowResponse struct {
	core.Record
	DisplayID     string          `json:"display_id"`
	Change        decimal.Decimal `json:"change"`
	ChangeDisplay string          `json:"change_display"`
}

func toMoMRows(rows []metrics.Row, mode metrics.Mode) []momRowResponse {
	return lo.Map(rows, func(r metrics.Row, _ int) momRowResponse {
		return momRowResponse{
			Record:        r.Record,
			DisplayID:     r.DisplayID(),
			Change:        r.Change,
			ChangeDisplay: metrics.FormatChange(r.Change, mode),
		}
	})
}

// momCacheKey changes with every mutation of the session, so stale views are
// never served and only age out of the cache.
func momCacheKey(sess *session.Session, f core.Filter, mode metrics.Mode) string {
	return cache.Key(sess.ID, strconv.FormatUint(sess.Version(), 10), string(mode),
		f.Customer, string(f.Region), string(f.Status))
}

func (s *Server) handleMoM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpFilter)
		return
	}
	mode, err := parseMode(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpCompute)
		return
	}

	sess := sessionFrom(ctx)
	key := momCacheKey(sess, f, mode)
	rows, found := s.momCache.Get(key)
	if found {
		log.FromContext(ctx).DebugContext(ctx, "MoM cache hit", log.FieldMode, string(mode), log.FieldCount, len(rows))
	} else {
		computed, err := s.tracker.MoM(ctx, sess, f, mode)
		if err != nil {
			s.writeError(w, r, err, log.ComponentTracker, log.OpCompute)
			return
		}
		atomic.AddInt64(&s.appMetrics.momComputed, 1)
		rows = toMoMRows(computed, mode)
		s.momCache.Set(key, rows)
	}

	NewJSONResponse().JSON(map[string]any{
		"mode":  mode,
		"rows":  rows,
		"count": len(rows),
	}).Write(w)
}

func (s *Server) handleMoMSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpFilter)
		return
	}
	mode, err := parseMode(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpCompute)
		return
	}

	series, err := s.tracker.Series(ctx, sessionFrom(ctx), f, mode)
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpCompute)
		return
	}
	atomic.AddInt64(&s.appMetrics.momComputed, 1)

	NewJSONResponse().JSON(map[string]any{
		"mode":   mode,
		"series": series,
	}).Write(w)
}
