package engine

import "time"

// =============================================================================
// DUE-DATE CALCULATOR
// =============================================================================

// DefaultMonthlyDueDay applies to monthly compliance types without a due day.
const DefaultMonthlyDueDay = 20

// lastDayOfMonth is the default due day for quarterly and yearly types; it is
// clamped to the real month length.
const lastDayOfMonth = 31

// quarterDue maps a fiscal quarter to its due month and how many years after
// the selected fiscal year it falls in.
var quarterDue = [5]struct {
	month     time.Month
	yearShift int
}{
	1: {time.July, 0},    // Apr-Jun
	2: {time.October, 0}, // Jul-Sep
	3: {time.January, 1}, // Oct-Dec
	4: {time.May, 1},     // Jan-Mar
}

// yearlyDueMonth overrides the July default for yearly filings.
var yearlyDueMonth = map[string]time.Month{
	// Tax audit
	"TAX-AUDIT": time.September,
	"3CA-3CD":   time.September,
	"3CB-3CD":   time.September,
	"3CD":       time.September,
	// Transfer pricing
	"TRANSFER-PRICING": time.October,
	"TP":               time.October,
	"3CEB":             time.October,
	// Annual returns
	"ANNUAL-RETURN": time.December,
	"GSTR-9":        time.December,
	"GSTR-9C":       time.December,
	"MGT-7":         time.December,
	"MGT-7A":        time.December,
}

// DueDate returns the due date of ct for period p.
//
// The period type must match the compliance frequency (month/monthly,
// quarter/quarterly, year/yearly); otherwise a *FrequencyMismatchError is
// returned. The configured due day is clamped to the target month's length.
func DueDate(ct ComplianceType, p Period) (Date, error) {
	if err := p.Validate(); err != nil {
		return Date{}, err
	}
	if !p.Matches(ct.Frequency) {
		return Date{}, &FrequencyMismatchError{Code: ct.Code, Frequency: ct.Frequency, PeriodType: p.Type}
	}

	switch ct.Frequency {
	case FrequencyMonthly:
		day := ct.DueDay
		if day == 0 {
			day = DefaultMonthlyDueDay
		}
		year, month := p.Year, p.Month+1
		if month > time.December {
			year, month = year+1, time.January
		}
		return ClampedDate(year, month, day), nil

	case FrequencyQuarterly:
		due := quarterDue[p.Quarter]
		return ClampedDate(p.Year+due.yearShift, due.month, dayOrLast(ct.DueDay)), nil

	default: // FrequencyYearly
		month, ok := yearlyDueMonth[normalizeCode(ct.Code)]
		if !ok {
			month = time.July
		}
		return ClampedDate(p.Year+1, month, dayOrLast(ct.DueDay)), nil
	}
}

func dayOrLast(day int) int {
	if day == 0 {
		return lastDayOfMonth
	}
	return day
}
