package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ierr "snowtrack/internal/errors"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/records/1").
		JSON(map[string]int{"deleted": 2}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/records/1" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Body.String(); got != "{\"deleted\":2}\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestErrorFromErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "validation",
			err:         ierr.NewError("empty").WithHint("Customer name is required").Mark(ierr.ErrValidation),
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "Customer name is required",
		},
		{
			name:        "not found",
			err:         ierr.NewError("gone").WithHint("Record not found").Mark(ierr.ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Record not found",
		},
		{
			name:        "unclassified",
			err:         ierr.NewError("boom").Mark(ierr.ErrSystem),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFromErr(tt.err).Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Error.Message, tt.wantMessage)
			}
		})
	}
}

func TestErrorResponseHelpers(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		want    int
	}{
		{"BadRequest", BadRequestError("x"), http.StatusBadRequest},
		{"Unprocessable", UnprocessableEntityError("x"), http.StatusUnprocessableEntity},
		{"Internal", InternalServerError("x"), http.StatusInternalServerError},
		{"NotFound", NotFoundError("x"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
