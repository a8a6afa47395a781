package core

import (
	"strings"

	"github.com/samber/lo"
)

// Filter selects records by optional predicates. Unset fields match everything
// and set fields are combined with AND.
type Filter struct {
	Customer string
	Region   Region
	Status   ProjectStatus
}

// IsEmpty reports whether no predicate is set.
func (f Filter) IsEmpty() bool {
	return f.Customer == "" && f.Region == "" && f.Status == ""
}

func (f Filter) Matches(r Record) bool {
	if f.Customer != "" && r.Customer != f.Customer {
		return false
	}
	if f.Region != "" && r.Region != f.Region {
		return false
	}
	if f.Status != "" && r.ProjectStatus != f.Status {
		return false
	}
	return true
}

// Apply returns a new slice with the matching records in their original order.
func (f Filter) Apply(records []Record) []Record {
	return lo.Filter(records, func(r Record, _ int) bool {
		return f.Matches(r)
	})
}

// ParseFilter builds a Filter from raw query values; blank values are unset.
func ParseFilter(customer, region, status string) (Filter, error) {
	f := Filter{Customer: strings.TrimSpace(customer)}
	if strings.TrimSpace(region) != "" {
		r, err := ParseRegion(region)
		if err != nil {
			return Filter{}, err
		}
		f.Region = r
	}
	if strings.TrimSpace(status) != "" {
		s, err := ParseProjectStatus(status)
		if err != nil {
			return Filter{}, err
		}
		f.Status = s
	}
	return f, nil
}

// Customers returns the distinct customer names in first-seen order.
func Customers(records []Record) []string {
	return lo.Uniq(lo.Map(records, func(r Record, _ int) string {
		return r.Customer
	}))
}
