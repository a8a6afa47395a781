// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies may be JSON or form-encoded; both are read into the same request DTOs
// and checked with the shared validator.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
	"snowtrack/internal/metrics"
)

const maxBodyBytes = 1 << 20

// InsertRecordRequest is the body of POST /api/records.
// An empty month selects the current one and an empty consumption means zero.
type InsertRecordRequest struct {
	Customer      string `json:"customer" validate:"required,max=200"`
	Month         string `json:"month" validate:"omitempty,month"`
	Consumption   string `json:"consumption" validate:"omitempty,consumption"`
	ProjectStatus string `json:"project_status" validate:"required,project_status"`
	Region        string `json:"region" validate:"required,region"`
	Notes         string `json:"notes" validate:"max=2000"`
}

// DeleteRecordsRequest is the body of DELETE /api/records.
type DeleteRecordsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// newValidator registers the domain checks next to the built-in tags.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	register := func(tag string, parse func(string) error) {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return parse(fl.Field().String()) == nil
		})
	}
	register("month", func(s string) error { _, err := core.ParseMonth(s); return err })
	register("consumption", func(s string) error { _, err := core.ParseConsumption(s); return err })
	register("project_status", func(s string) error { _, err := core.ParseProjectStatus(s); return err })
	register("region", func(s string) error { _, err := core.ParseRegion(s); return err })
	return v
}

// validateRequest runs the validator and reports failing fields as details.
func validateRequest(v *validator.Validate, req any) error {
	if err := v.Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, fe := range validateErrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToRecord converts a validated request into a record.
func (req InsertRecordRequest) ToRecord(now time.Time) (core.Record, error) {
	r := core.Record{
		Customer: strings.TrimSpace(req.Customer),
		Month:    core.MonthOf(now),
		Notes:    req.Notes,
	}
	var err error
	if req.Month != "" {
		if r.Month, err = core.ParseMonth(req.Month); err != nil {
			return core.Record{}, err
		}
	}
	if req.Consumption != "" {
		if r.Consumption, err = core.ParseConsumption(req.Consumption); err != nil {
			return core.Record{}, err
		}
	}
	if r.ProjectStatus, err = core.ParseProjectStatus(req.ProjectStatus); err != nil {
		return core.Record{}, err
	}
	if r.Region, err = core.ParseRegion(req.Region); err != nil {
		return core.Record{}, err
	}
	return r, nil
}

// parseInsertRequest reads an insert body, JSON or form-encoded.
func parseInsertRequest(r *http.Request) (InsertRecordRequest, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return InsertRecordRequest{}, malformedBody(err)
	}
	return InsertRecordRequest{
		Customer:      p.Get("customer"),
		Month:         p.Get("month"),
		Consumption:   p.Get("consumption"),
		ProjectStatus: p.Get("project_status"),
		Region:        p.Get("region"),
		Notes:         p.Get("notes"),
	}, nil
}

// parseDeleteRequest reads a JSON list of display identifiers. Form bodies
// may repeat the ids field instead.
func parseDeleteRequest(r *http.Request) (DeleteRecordsRequest, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return DeleteRecordsRequest{}, malformedBody(err)
	}
	var req DeleteRecordsRequest
	if p.IsJSON() {
		if err := json.Unmarshal(p.GetRaw(), &req); err != nil {
			return DeleteRecordsRequest{}, malformedBody(err)
		}
	} else {
		req.IDs = p.GetAll("ids")
	}
	for i, id := range req.IDs {
		req.IDs[i] = strings.TrimSpace(sanitizeInput(id))
	}
	return req, nil
}

// parseFilter reads the customer, region and status query parameters.
func parseFilter(query url.Values) (core.Filter, error) {
	return core.ParseFilter(
		sanitizeInput(query.Get("customer")),
		query.Get("region"),
		query.Get("status"),
	)
}

func parseMode(query url.Values) (metrics.Mode, error) {
	return metrics.ParseMode(query.Get("mode"))
}

func malformedBody(err error) error {
	return ierr.WithError(err).
		WithHint("Malformed request body").
		Mark(ierr.ErrInvalidOperation)
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetAll returns every form value of key.
func (p *RequestBodyParser) GetAll(key string) []string {
	if p.formData == nil {
		return nil
	}
	return append([]string(nil), p.formData[key]...)
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
