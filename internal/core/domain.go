package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ierr "snowtrack/internal/errors"
)

const (
	OnTrack ProjectStatus = "OnTrack"
	AtRisk  ProjectStatus = "AtRisk"
	Paused  ProjectStatus = "Paused"
)

const (
	CanadaEast    Region = "Canada East"
	CanadaCentral Region = "Canada Central"
	CanadaWest    Region = "Canada West"
	USEast        Region = "US East"
	USCentral     Region = "US Central"
	USWest        Region = "US West"
)

const monthLayout = "2006-01"

type (
	ProjectStatus string

	Region string

	// Month is a calendar year-month. The zero value is not a valid month.
	Month struct {
		Year  int
		Month time.Month
	}

	// Record is one consumption observation for a customer in a given month.
	Record struct {
		ID            string          `json:"id"`
		Customer      string          `json:"customer"`
		Month         Month           `json:"month"`
		Consumption   decimal.Decimal `json:"consumption"`
		ProjectStatus ProjectStatus   `json:"project_status"`
		Region        Region          `json:"region"`
		Notes         string          `json:"notes"`
		CreatedAt     time.Time       `json:"created_at"`
	}
)

var (
	statuses = []ProjectStatus{OnTrack, AtRisk, Paused}
	regions  = []Region{CanadaEast, CanadaCentral, CanadaWest, USEast, USCentral, USWest}
)

// Statuses returns the project statuses in display order.
func Statuses() []ProjectStatus {
	return append([]ProjectStatus(nil), statuses...)
}

// Regions returns the supported regions in display order.
func Regions() []Region {
	return append([]Region(nil), regions...)
}

// Label is the human form used by the entry form ("On Track").
func (s ProjectStatus) Label() string {
	switch s {
	case OnTrack:
		return "On Track"
	case AtRisk:
		return "At Risk"
	default:
		return string(s)
	}
}

func (s ProjectStatus) IsValid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseProjectStatus accepts both the identifier ("AtRisk") and the label
// ("At Risk"), case-insensitively.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, v := range statuses {
		if strings.ToLower(string(v)) == norm {
			return v, nil
		}
	}
	return "", ierr.NewErrorf("unknown project status %q", s).
		WithHintf("Project status must be one of: On Track, At Risk, Paused").
		Mark(ierr.ErrValidation)
}

func (r Region) IsValid() bool {
	for _, v := range regions {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRegion matches one of the fixed regions, ignoring case and surrounding space.
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	for _, v := range regions {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", ierr.NewErrorf("unknown region %q", s).
		WithHint("Region must be one of: Canada East, Canada Central, Canada West, US East, US Central, US West").
		Mark(ierr.ErrValidation)
}

// NewMonth creates a Month from year and month number (1-12).
func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf truncates t to its calendar month.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "YYYY-MM" and, as date pickers send it, "YYYY-MM-DD".
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{monthLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, ierr.NewErrorf("invalid month %q", s).
		WithHint("Month must be formatted as YYYY-MM").
		Mark(ierr.ErrValidation)
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Compare returns -1, 0 or +1 depending on chronological order.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year < o.Year:
		return -1
	case m.Year > o.Year:
		return 1
	case m.Month < o.Month:
		return -1
	case m.Month > o.Month:
		return 1
	}
	return 0
}

func (m Month) Before(o Month) bool {
	return m.Compare(o) < 0
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(text []byte) error {
	parsed, err := ParseMonth(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DisplayID is the "{customer} - {YYYY-MM}" identifier shown next to a row.
// It is not unique: records sharing customer and month have the same one.
func (r Record) DisplayID() string {
	return DisplayID(r.Customer, r.Month)
}

func DisplayID(customer string, month Month) string {
	return customer + " - " + month.String()
}

// Validate enforces the only required field, the customer name.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Customer) == "" {
		return ierr.NewError("empty customer name").
			WithHint("Customer name is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// WithIdentity fills ID and CreatedAt when they are unset.
func (r Record) WithIdentity(now time.Time) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	return r
}
