package http

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
	"snowtrack/internal/log"
)

// recordResponse is a record as the UI lists it.
type recordResponse struct {
	core.Record
	DisplayID     string `json:"display_id"`
	StatusDisplay string `json:"project_status_display"`
}

func toRecordResponse(r core.Record) recordResponse {
	return recordResponse{Record: r, DisplayID: r.DisplayID(), StatusDisplay: r.ProjectStatus.Label()}
}

func toRecordResponses(records []core.Record) []recordResponse {
	return lo.Map(records, func(r core.Record, _ int) recordResponse { return toRecordResponse(r) })
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpFilter)
		return
	}
	records, err := s.tracker.Records(ctx, sessionFrom(ctx), f)
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpFilter)
		return
	}
	NewJSONResponse().JSON(map[string]any{
		"records": toRecordResponses(records),
		"count":   len(records),
	}).Write(w)
}

func (s *Server) handleInsertRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := parseInsertRequest(r)
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpParse)
		return
	}
	if err := validateRequest(s.validate, req); err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpValidate)
		return
	}
	record, err := req.ToRecord(time.Now())
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpValidate)
		return
	}

	saved, err := s.tracker.Insert(ctx, sessionFrom(ctx), record)
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpInsert)
		return
	}
	s.countInserted()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/records/"+url.PathEscape(saved.ID)).
		JSON(toRecordResponse(saved)).
		Write(w)
}

// handleDeleteRecords removes rows by display identifier; records sharing
// customer and month are removed together.
func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := parseDeleteRequest(r)
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpParse)
		return
	}
	if err := validateRequest(s.validate, req); err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpValidate)
		return
	}

	n, err := s.tracker.Delete(ctx, sessionFrom(ctx), req.IDs)
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpDelete)
		return
	}
	s.countDeleted(n)

	NewJSONResponse().JSON(map[string]int{"deleted": n}).Write(w)
}

func (s *Server) handleDeleteRecordByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, r, ierr.NewError("missing record id").
			WithHint("Record id is required").
			Mark(ierr.ErrValidation), log.ComponentTracker, log.OpDelete)
		return
	}

	if err := s.tracker.DeleteByID(ctx, sessionFrom(ctx), id); err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpDelete)
		return
	}
	s.countDeleted(1)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customers, err := s.tracker.Customers(ctx, sessionFrom(ctx))
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpList)
		return
	}
	if customers == nil {
		customers = []string{}
	}
	NewJSONResponse().JSON(map[string]any{"customers": customers}).Write(w)
}

// handleCompleteCustomer archives every active record of the customer.
func (s *Server) handleCompleteCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// chi matches on RawPath when it is set, leaving the parameter escaped
	customer := chi.URLParam(r, "customer")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(customer); err == nil {
			customer = unescaped
		}
	}

	n, err := s.tracker.Archive(ctx, sessionFrom(ctx), sanitizeInput(customer))
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpArchive)
		return
	}
	s.countArchived(n)

	NewJSONResponse().JSON(map[string]int{"archived": n}).Write(w)
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := s.tracker.Archived(ctx, sessionFrom(ctx))
	if err != nil {
		s.writeError(w, r, err, log.ComponentTracker, log.OpList)
		return
	}
	NewJSONResponse().JSON(map[string]any{
		"records": toRecordResponses(records),
		"count":   len(records),
	}).Write(w)
}

// handleOptions lists the values the entry form offers.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	type option struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	NewJSONResponse().JSON(map[string]any{
		"project_statuses": lo.Map(core.Statuses(), func(st core.ProjectStatus, _ int) option {
			return option{Value: string(st), Label: st.Label()}
		}),
		"regions": lo.Map(core.Regions(), func(rg core.Region, _ int) option {
			return option{Value: string(rg), Label: string(rg)}
		}),
		"modes": []string{"absolute", "percentage"},
	}).Write(w)
}
