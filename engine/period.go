package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - The selection a generation run is made for
// =============================================================================

// Period is the operator's selection: one month, one fiscal quarter or one
// fiscal year. Fiscal years start in April, so FY 2024 runs from 1 April 2024
// to 31 March 2025 and its Q4 is January-March 2025.
//
// Examples:
//   - Month:   {Type: month,   Month: March, Year: 2024} -> "March 2024"
//   - Quarter: {Type: quarter, Quarter: 3,   Year: 2024} -> "Q3 FY 2024-25"
//   - Year:    {Type: year,                  Year: 2024} -> "FY 2024-25"
type Period struct {
	Type    PeriodType
	Month   time.Month // PeriodMonth only
	Quarter int        // PeriodQuarter only, 1-4
	Year    int
}

// PeriodType tags the Period union.
type PeriodType string

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// FiscalYearStartMonth is the first month of the Indian fiscal year.
const FiscalYearStartMonth = time.April

func MonthPeriod(year int, month time.Month) Period {
	return Period{Type: PeriodMonth, Month: month, Year: year}
}

func QuarterPeriod(year, quarter int) Period {
	return Period{Type: PeriodQuarter, Quarter: quarter, Year: year}
}

func YearPeriod(year int) Period {
	return Period{Type: PeriodYear, Year: year}
}

// Validate checks that the fields required by the period type are in range.
func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return &InvalidPeriodError{Period: p, Reason: fmt.Sprintf("year %d out of range", p.Year)}
	}
	switch p.Type {
	case PeriodMonth:
		if p.Month < time.January || p.Month > time.December {
			return &InvalidPeriodError{Period: p, Reason: fmt.Sprintf("month %d out of range", p.Month)}
		}
	case PeriodQuarter:
		if p.Quarter < 1 || p.Quarter > 4 {
			return &InvalidPeriodError{Period: p, Reason: fmt.Sprintf("quarter %d out of range", p.Quarter)}
		}
	case PeriodYear:
	default:
		return &InvalidPeriodError{Period: p, Reason: fmt.Sprintf("unknown period type %q", p.Type)}
	}
	return nil
}

// Matches reports whether compliance types of frequency f are generated for
// this kind of period.
func (p Period) Matches(f Frequency) bool {
	switch p.Type {
	case PeriodMonth:
		return f == FrequencyMonthly
	case PeriodQuarter:
		return f == FrequencyQuarterly
	case PeriodYear:
		return f == FrequencyYearly
	}
	return false
}

// Label returns the human-readable period used in task titles.
func (p Period) Label() string {
	switch p.Type {
	case PeriodMonth:
		return fmt.Sprintf("%s %d", p.Month, p.Year)
	case PeriodQuarter:
		return fmt.Sprintf("Q%d %s", p.Quarter, fiscalYearLabel(p.Year))
	case PeriodYear:
		return fiscalYearLabel(p.Year)
	}
	return ""
}

// Key returns the compact, sortable form accepted by ParsePeriod.
func (p Period) Key() string {
	switch p.Type {
	case PeriodMonth:
		return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
	case PeriodQuarter:
		return fmt.Sprintf("%04d-Q%d", p.Year, p.Quarter)
	case PeriodYear:
		return fmt.Sprintf("FY%04d", p.Year)
	}
	return ""
}

func (p Period) String() string { return p.Key() }

// Range returns the first and last calendar day covered by the period.
func (p Period) Range() (start, end Date) {
	switch p.Type {
	case PeriodMonth:
		return StartOfMonth(p.Year, p.Month), EndOfMonth(p.Year, p.Month)
	case PeriodQuarter:
		first := NewDate(p.Year, FiscalYearStartMonth, 1).Time.AddDate(0, 3*(p.Quarter-1), 0)
		last := first.AddDate(0, 3, -1)
		return Date{Time: first}, Date{Time: last}
	case PeriodYear:
		first := NewDate(p.Year, FiscalYearStartMonth, 1)
		return first, Date{Time: first.Time.AddDate(1, 0, -1)}
	}
	return Date{}, Date{}
}

func fiscalYearLabel(year int) string {
	return fmt.Sprintf("FY %d-%02d", year, (year+1)%100)
}

// ParsePeriod parses a period key: "2024-03" (month), "2024-Q3" (fiscal
// quarter) or "FY2024" (fiscal year).
func ParsePeriod(s string) (Period, error) {
	key := strings.ToUpper(strings.TrimSpace(s))

	if strings.HasPrefix(key, "FY") {
		year, err := strconv.Atoi(strings.TrimSpace(key[2:]))
		if err != nil {
			return Period{}, fmt.Errorf("%w: bad fiscal year in %q", ErrInvalidPeriod, s)
		}
		p := YearPeriod(year)
		return p, p.Validate()
	}

	yearPart, rest, ok := strings.Cut(key, "-")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q (use YYYY-MM, YYYY-Qn or FYYYYY)", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Period{}, fmt.Errorf("%w: bad year in %q", ErrInvalidPeriod, s)
	}

	var p Period
	if strings.HasPrefix(rest, "Q") {
		q, err := strconv.Atoi(rest[1:])
		if err != nil {
			return Period{}, fmt.Errorf("%w: bad quarter in %q", ErrInvalidPeriod, s)
		}
		p = QuarterPeriod(year, q)
	} else {
		m, err := strconv.Atoi(rest)
		if err != nil {
			return Period{}, fmt.Errorf("%w: bad month in %q", ErrInvalidPeriod, s)
		}
		p = MonthPeriod(year, time.Month(m))
	}
	return p, p.Validate()
}
