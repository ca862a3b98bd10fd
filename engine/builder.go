/*
builder.go - Batch task builder

PURPOSE:
  Combines the due-date calculator, the eligibility filter and the
  assignment resolver into one batch of tasks for a period.

ALGORITHM:
  for each client:
    for each applicable compliance type:
      skip if the client's work types do not cover the type's category
      resolve an assignee (skip silently if none)
      emit GeneratedTask{
          Title:       "{compliance name} - {period label}",
          Description: "{compliance name} for {client name}",
          Status: assigned, Priority: medium, DueDate: DueDate(ct, period)}

  The builder does not persist anything and does not suppress duplicates
  against earlier runs; see Generator for both.

EXAMPLE:
  b := &BatchBuilder{Eligibility: NewEligibilityFilter(nil)}
  batch, err := b.Build(BuildInput{
      Clients:         []Client{acme},
      ComplianceTypes: []ComplianceType{gstr3b},
      Period:          MonthPeriod(2024, time.March),
      Staff:           staff,
      AssignedBy:      "user-1",
  })
  // batch.Tasks[0].Title == "GSTR-3B - March 2024"
  // batch.Tasks[0].DueDate.String() == "2024-04-20"
*/
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildInput is everything one batch needs. All of it is gathered before
// building starts.
type BuildInput struct {
	FirmID          FirmID
	Clients         []Client
	ComplianceTypes []ComplianceType
	Period          Period
	Relations       []ClientStaffRelation
	Staff           []Staff
	AssignedBy      string
}

// Summary is what the operator sees after a run.
type Summary struct {
	Total      int
	Defined    int
	Random     int
	Skipped    int // eligible pairs without an assignee
	Duplicates int // tasks dropped because they already existed (SkipExisting only)
	TotalFees  decimal.Decimal
}

// Batch is the output of one build.
type Batch struct {
	Period  Period
	Tasks   []GeneratedTask
	Summary Summary
}

// BatchBuilder builds task batches. Zero-valued fields get defaults:
// a default eligibility filter, a time-seeded random source, UUID task IDs
// and time.Now.
type BatchBuilder struct {
	Eligibility *EligibilityFilter
	Rand        RandSource
	NewID       func() TaskID
	Now         func() time.Time
}

// Build produces the batch for in.
func (b *BatchBuilder) Build(in BuildInput) (*Batch, error) {
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}

	eligibility := b.Eligibility
	if eligibility == nil {
		eligibility = NewEligibilityFilter(nil)
	}
	newID := b.NewID
	if newID == nil {
		newID = func() TaskID { return TaskID(uuid.NewString()) }
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	// Due dates depend only on the compliance type, so compute them once.
	dueDates := make([]Date, len(in.ComplianceTypes))
	for i, ct := range in.ComplianceTypes {
		due, err := DueDate(ct, in.Period)
		if err != nil {
			return nil, err
		}
		dueDates[i] = due
	}

	resolver := NewAssignmentResolver(in.Relations, in.Staff, b.Rand)
	label := in.Period.Label()
	key := in.Period.Key()
	createdAt := now().UTC()

	batch := &Batch{Period: in.Period, Summary: Summary{TotalFees: decimal.Zero}}
	for _, client := range in.Clients {
		for i, ct := range in.ComplianceTypes {
			if !eligibility.IsEligible(client, ct) {
				continue
			}
			staff, kind, ok := resolver.Resolve(client.ID)
			if !ok {
				batch.Summary.Skipped++
				continue
			}
			batch.Tasks = append(batch.Tasks, GeneratedTask{
				ID:               newID(),
				FirmID:           in.FirmID,
				ClientID:         client.ID,
				StaffID:          staff.ID,
				ComplianceTypeID: ct.ID,
				Title:            fmt.Sprintf("%s - %s", ct.Name, label),
				Description:      fmt.Sprintf("%s for %s", ct.Name, client.Name),
				DueDate:          dueDates[i],
				Status:           TaskStatusAssigned,
				Priority:         PriorityMedium,
				Period:           label,
				PeriodKey:        key,
				AssignedBy:       in.AssignedBy,
				Assignment:       kind,
				Fee:              ct.Fee,
				CreatedAt:        createdAt,
			})
			batch.Summary.TotalFees = batch.Summary.TotalFees.Add(ct.Fee)
		}
	}

	counts := resolver.Counts()
	batch.Summary.Total = len(batch.Tasks)
	batch.Summary.Defined = counts.Defined
	batch.Summary.Random = counts.Random
	return batch, nil
}

// DropExisting removes tasks whose natural key is in existing and records
// how many were dropped.
func (b *Batch) DropExisting(existing map[string]bool) {
	if len(existing) == 0 {
		return
	}
	kept := b.Tasks[:0]
	s := Summary{TotalFees: decimal.Zero, Skipped: b.Summary.Skipped, Duplicates: b.Summary.Duplicates}
	for _, t := range b.Tasks {
		if existing[t.NaturalKey()] {
			s.Duplicates++
			continue
		}
		kept = append(kept, t)
		switch t.Assignment {
		case AssignmentDefined:
			s.Defined++
		case AssignmentRandom:
			s.Random++
		}
		s.TotalFees = s.TotalFees.Add(t.Fee)
	}
	b.Tasks = kept
	s.Total = len(kept)
	b.Summary = s
}

// =============================================================================
// COMPLIANCE SELECTION
// =============================================================================

// SelectComplianceTypes returns the types a run generates for.
//
// With an empty code it returns every type whose frequency matches the period
// type. With a code it returns that single type, failing with
// ErrComplianceTypeNotFound if absent or a *FrequencyMismatchError if its
// frequency does not fit the period.
func SelectComplianceTypes(all []ComplianceType, p Period, code string) ([]ComplianceType, error) {
	if code != "" {
		want := normalizeCode(code)
		for _, ct := range all {
			if normalizeCode(ct.Code) != want {
				continue
			}
			if !p.Matches(ct.Frequency) {
				return nil, &FrequencyMismatchError{Code: ct.Code, Frequency: ct.Frequency, PeriodType: p.Type}
			}
			return []ComplianceType{ct}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrComplianceTypeNotFound, code)
	}

	var selected []ComplianceType
	for _, ct := range all {
		if p.Matches(ct.Frequency) {
			selected = append(selected, ct)
		}
	}
	return selected, nil
}
