package domain

import (
	"fmt"
	"strings"
	"time"

	dErrors "medisupply/pkg/domain-errors"
)

// PeriodType is the length of a sales measurement period.
// Invariant: the value is one of the supported period types.
//
// Usage: construct via ParsePeriodType at trust boundaries; it also accepts
// the Spanish labels used by the field-sales tooling.
type PeriodType string

const (
	PeriodBimonthly  PeriodType = "bimonthly"
	PeriodQuarterly  PeriodType = "quarterly"
	PeriodSemiannual PeriodType = "semiannual"
	PeriodAnnual     PeriodType = "annual"
)

var periodAliases = map[string]PeriodType{
	"bimonthly":  PeriodBimonthly,
	"quarterly":  PeriodQuarterly,
	"semiannual": PeriodSemiannual,
	"annual":     PeriodAnnual,
	"bimestral":  PeriodBimonthly,
	"trimestral": PeriodQuarterly,
	"semestral":  PeriodSemiannual,
	"anual":      PeriodAnnual,
}

// PeriodTypes lists the supported period types in display order.
var PeriodTypes = []PeriodType{PeriodBimonthly, PeriodQuarterly, PeriodSemiannual, PeriodAnnual}

// ParsePeriodType constructs a PeriodType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParsePeriodType(s string) (PeriodType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "period type cannot be empty")
	}
	p, ok := periodAliases[s]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported period type %q", s)
	}
	return p, nil
}

func (p PeriodType) IsValid() bool {
	switch p {
	case PeriodBimonthly, PeriodQuarterly, PeriodSemiannual, PeriodAnnual:
		return true
	}
	return false
}

func (p PeriodType) String() string { return string(p) }

// Months is the nominal length of the period type.
func (p PeriodType) Months() int {
	switch p {
	case PeriodBimonthly:
		return 2
	case PeriodQuarterly:
		return 3
	case PeriodSemiannual:
		return 6
	case PeriodAnnual:
		return 12
	}
	return 0
}

// DateLayout is the calendar-date format used for period bounds everywhere
// a period crosses a process boundary.
const DateLayout = "2006-01-02"

// Period is a closed calendar-date interval [Start, End] of a given type.
// Bounds are normalized to midnight UTC.
type Period struct {
	Type  PeriodType `json:"period_type"`
	Start time.Time  `json:"period_start"`
	End   time.Time  `json:"period_end"`
}

// NewPeriod validates and normalizes a period.
func NewPeriod(t PeriodType, start, end time.Time) (Period, error) {
	if !t.IsValid() {
		return Period{}, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported period type %q", t)
	}
	start = truncateDate(start)
	end = truncateDate(end)
	if start.IsZero() || end.IsZero() {
		return Period{}, dErrors.New(dErrors.CodeInvalidInput, "period bounds are required")
	}
	if end.Before(start) {
		return Period{}, dErrors.New(dErrors.CodeInvalidInput, "period end must not be before period start")
	}
	return Period{Type: t, Start: start, End: end}, nil
}

// ParsePeriod builds a period from raw type and YYYY-MM-DD bounds.
func ParsePeriod(periodType, start, end string) (Period, error) {
	t, err := ParsePeriodType(periodType)
	if err != nil {
		return Period{}, err
	}
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Period{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid period start %q", start)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Period{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid period end %q", end)
	}
	return NewPeriod(t, s, e)
}

// Contains reports whether t falls on a calendar day inside the period.
func (p Period) Contains(t time.Time) bool {
	d := truncateDate(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// SameBounds reports whether two periods cover exactly the same days.
func (p Period) SameBounds(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// Key renders the period as "type:start:end", stable across processes.
func (p Period) Key() string {
	return fmt.Sprintf("%s:%s:%s", p.Type, p.Start.Format(DateLayout), p.End.Format(DateLayout))
}

func (p Period) String() string {
	return fmt.Sprintf("%s %s - %s", p.Type, p.Start.Format(DateLayout), p.End.Format(DateLayout))
}

func truncateDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
