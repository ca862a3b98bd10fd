/*
Package engine provides the auto task generation engine for practice management.

PURPOSE:
  Given a firm's compliance calendar, its client roster (with declared work
  types), its staff roster and the default client->staff assignments, the
  engine computes the due date of every (client, compliance type) pair for a
  selected period and emits a batch of task records ready for persistence.

KEY CONCEPTS IN THIS FILE (types.go):
  - ComplianceType: A recurring filing obligation (GSTR-3B, 26Q, ITR...)
  - Client: A firm client with the work categories it engages the firm for
  - Staff: A firm member who can be assigned tasks
  - ClientStaffRelation: The default assignee for a client
  - GeneratedTask: One task record produced by a generation run

DESIGN PRINCIPLES:
  1. Pure core: due dates, eligibility and batch building never touch I/O
  2. Explicit collaborators: storage is reached only through store.go interfaces
  3. Explicit actor: the acting user is a parameter, never ambient state
  4. Precision: fees use decimal.Decimal

USAGE:
  ct := engine.ComplianceType{Code: "GSTR-3B", Name: "GSTR-3B",
      Frequency: engine.FrequencyMonthly, DueDay: 20}
  due, err := engine.DueDate(ct, engine.MonthPeriod(2024, time.March))
  // due.String() == "2024-04-20"

SEE ALSO:
  - period.go: Period selection (month / quarter / fiscal year)
  - duedate.go: Due-date calculator
  - builder.go: Batch task builder
  - generator.go: Orchestration against the collaborators
*/
package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FirmID string
type ClientID string
type StaffID string
type ComplianceTypeID string
type TaskID string

// =============================================================================
// COMPLIANCE TYPE - Reference data from the compliance calendar
// =============================================================================

// Frequency is how often a compliance obligation recurs.
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyAsNeeded  Frequency = "as_needed" // event driven, never generated for a period
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly, FrequencyAsNeeded:
		return true
	}
	return false
}

// ComplianceType is immutable reference data. An empty FirmID marks a global
// type shared by every firm.
type ComplianceType struct {
	ID        ComplianceTypeID
	FirmID    FirmID
	Code      string
	Name      string
	Category  string // optional; overrides the code-to-category map
	Frequency Frequency
	DueDay    int             // 1-31, 0 = frequency default
	Fee       decimal.Decimal // standard billing amount per filing
}

// =============================================================================
// ROSTERS
// =============================================================================

// Client is a firm client. WorkTypes holds the compliance categories the
// client engages the firm for (e.g. "GST", "TDS").
type Client struct {
	ID        ClientID
	FirmID    FirmID
	Name      string
	WorkTypes []string
	CreatedAt time.Time
}

// HasWorkType reports whether the client declared the given category.
// Matching ignores case and surrounding whitespace.
func (c Client) HasWorkType(category string) bool {
	want := normalizeCode(category)
	if want == "" {
		return false
	}
	for _, wt := range c.WorkTypes {
		if normalizeCode(wt) == want {
			return true
		}
	}
	return false
}

// Staff is a firm member. Only active staff receive random assignments.
type Staff struct {
	ID        StaffID
	FirmID    FirmID
	UserID    string
	Name      string
	Role      string
	IsActive  bool
	CreatedAt time.Time
}

// ClientStaffRelation is the default assignee for a client. At most one per client.
type ClientStaffRelation struct {
	ClientID ClientID
	StaffID  StaffID
}

// =============================================================================
// GENERATED TASK - Output of a generation run
// =============================================================================

type TaskStatus string

const (
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type GeneratedTask struct {
	ID               TaskID
	FirmID           FirmID
	ClientID         ClientID
	StaffID          StaffID
	ComplianceTypeID ComplianceTypeID
	Title            string
	Description      string
	DueDate          Date
	Status           TaskStatus
	Priority         Priority
	Period           string // human-readable label, e.g. "March 2024"
	PeriodKey        string // compact key, e.g. "2024-03"
	AssignedBy       string
	Assignment       AssignmentKind
	Fee              decimal.Decimal
	CreatedAt        time.Time
}

// NaturalKey identifies the obligation a task fulfils. Two tasks with the same
// key duplicate each other.
func (t GeneratedTask) NaturalKey() string {
	return TaskKey(t.ClientID, t.ComplianceTypeID, t.PeriodKey)
}

// TaskKey builds the natural key for a (client, compliance type, period) triple.
func TaskKey(client ClientID, ct ComplianceTypeID, periodKey string) string {
	return string(client) + "|" + string(ct) + "|" + periodKey
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
