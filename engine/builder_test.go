package engine_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ledgerly/practice-engine/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func sequentialIDs() func() engine.TaskID {
	n := 0
	return func() engine.TaskID {
		n++
		return engine.TaskID(fmt.Sprintf("task-%d", n))
	}
}

func fixedNow() time.Time { return time.Date(2024, time.April, 2, 9, 30, 0, 0, time.UTC) }

func newTestBuilder(rnd engine.RandSource) *engine.BatchBuilder {
	return &engine.BatchBuilder{
		Eligibility: engine.NewEligibilityFilter(nil),
		Rand:        rnd,
		NewID:       sequentialIDs(),
		Now:         fixedNow,
	}
}

// =============================================================================
// EXAMPLES
// =============================================================================

func TestBuild_AcmeGSTR3BMarch(t *testing.T) {
	// GIVEN: Acme declares GST work; GSTR-3B is monthly due on the 20th
	// WHEN: Generating for March 2024
	// THEN: One task due 2024-04-20 titled "GSTR-3B - March 2024"
	acme := engine.Client{ID: "acme", Name: "Acme Pvt Ltd", WorkTypes: []string{"GST"}}
	gstr3b := monthly("GSTR-3B", 20)
	gstr3b.Fee = decimal.NewFromInt(1500)

	batch, err := newTestBuilder(fixedRand(0)).Build(engine.BuildInput{
		FirmID:          "firm-1",
		Clients:         []engine.Client{acme},
		ComplianceTypes: []engine.ComplianceType{gstr3b},
		Period:          engine.MonthPeriod(2024, time.March),
		Staff:           []engine.Staff{staffMember("s1", true)},
		AssignedBy:      "partner-1",
	})
	require.NoError(t, err)
	require.Len(t, batch.Tasks, 1)

	task := batch.Tasks[0]
	assert.Equal(t, engine.TaskID("task-1"), task.ID)
	assert.Equal(t, engine.FirmID("firm-1"), task.FirmID)
	assert.Equal(t, engine.ClientID("acme"), task.ClientID)
	assert.Equal(t, engine.StaffID("s1"), task.StaffID)
	assert.Equal(t, engine.ComplianceTypeID("GSTR-3B"), task.ComplianceTypeID)
	assert.Equal(t, "GSTR-3B - March 2024", task.Title)
	assert.Equal(t, "GSTR-3B for Acme Pvt Ltd", task.Description)
	assert.Equal(t, "2024-04-20", task.DueDate.String())
	assert.Equal(t, engine.TaskStatusAssigned, task.Status)
	assert.Equal(t, engine.PriorityMedium, task.Priority)
	assert.Equal(t, "March 2024", task.Period)
	assert.Equal(t, "2024-03", task.PeriodKey)
	assert.Equal(t, "partner-1", task.AssignedBy)
	assert.Equal(t, fixedNow(), task.CreatedAt)
	assert.True(t, task.Fee.Equal(decimal.NewFromInt(1500)))

	assert.Equal(t, 1, batch.Summary.Total)
	assert.Equal(t, 1, batch.Summary.Random)
	assert.Equal(t, 0, batch.Summary.Defined)
	assert.True(t, batch.Summary.TotalFees.Equal(decimal.NewFromInt(1500)))
}

func TestBuild_27QThirdQuarter(t *testing.T) {
	client := engine.Client{ID: "c1", Name: "Export House", WorkTypes: []string{"TDS"}}

	batch, err := newTestBuilder(fixedRand(0)).Build(engine.BuildInput{
		Clients:         []engine.Client{client},
		ComplianceTypes: []engine.ComplianceType{quarterly("27Q", 31)},
		Period:          engine.QuarterPeriod(2024, 3),
		Staff:           []engine.Staff{staffMember("s1", true)},
	})
	require.NoError(t, err)
	require.Len(t, batch.Tasks, 1)
	assert.Equal(t, "2025-01-31", batch.Tasks[0].DueDate.String())
	assert.Equal(t, "27Q - Q3 FY 2024-25", batch.Tasks[0].Title)
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestBuild_OnlyEligiblePairsProduceTasks(t *testing.T) {
	// GIVEN: Clients with mixed work types and a mixed calendar
	// THEN: Every task's client declares the compliance's category, and every
	//       eligible pair produced exactly one task
	filter := engine.NewEligibilityFilter(nil)
	clients := []engine.Client{
		{ID: "gst", Name: "GST Co", WorkTypes: []string{"GST"}},
		{ID: "tds", Name: "TDS Co", WorkTypes: []string{"TDS"}},
		{ID: "both", Name: "Both Co", WorkTypes: []string{"GST", "TDS", "PF"}},
		{ID: "none", Name: "None Co"},
	}
	types := []engine.ComplianceType{monthly("GSTR-1", 11), monthly("GSTR-3B", 20), monthly("TDS-PAYMENT", 7), monthly("PF", 15)}

	batch, err := newTestBuilder(fixedRand(0)).Build(engine.BuildInput{
		Clients:         clients,
		ComplianceTypes: types,
		Period:          engine.MonthPeriod(2024, time.July),
		Staff:           []engine.Staff{staffMember("s1", true)},
	})
	require.NoError(t, err)

	byID := map[engine.ClientID]engine.Client{}
	for _, c := range clients {
		byID[c.ID] = c
	}
	ctByID := map[engine.ComplianceTypeID]engine.ComplianceType{}
	for _, ct := range types {
		ctByID[ct.ID] = ct
	}

	expected := 0
	for _, c := range clients {
		for _, ct := range types {
			if filter.IsEligible(c, ct) {
				expected++
			}
		}
	}

	assert.Len(t, batch.Tasks, expected)
	assert.Equal(t, 7, expected)
	for _, task := range batch.Tasks {
		assert.True(t, filter.IsEligible(byID[task.ClientID], ctByID[task.ComplianceTypeID]),
			"%s got %s", task.ClientID, task.ComplianceTypeID)
	}
}

func TestBuild_DefinedRelationAssignsEveryTask(t *testing.T) {
	// GIVEN: Client c1 is related to active s3 among five active staff
	// THEN: All of c1's tasks go to s3; c2 (no relation) gets random staff
	staff := []engine.Staff{
		staffMember("s1", true), staffMember("s2", true), staffMember("s3", true),
		staffMember("s4", true), staffMember("s5", true),
	}
	clients := []engine.Client{
		{ID: "c1", Name: "One", WorkTypes: []string{"GST", "TDS"}},
		{ID: "c2", Name: "Two", WorkTypes: []string{"GST"}},
	}
	types := []engine.ComplianceType{monthly("GSTR-1", 11), monthly("GSTR-3B", 20), monthly("TDS-PAYMENT", 7)}

	batch, err := newTestBuilder(rand.New(rand.NewSource(7))).Build(engine.BuildInput{
		Clients:         clients,
		ComplianceTypes: types,
		Period:          engine.MonthPeriod(2024, time.August),
		Relations:       []engine.ClientStaffRelation{{ClientID: "c1", StaffID: "s3"}},
		Staff:           staff,
	})
	require.NoError(t, err)

	for _, task := range batch.Tasks {
		if task.ClientID == "c1" {
			assert.Equal(t, engine.StaffID("s3"), task.StaffID)
			assert.Equal(t, engine.AssignmentDefined, task.Assignment)
		} else {
			assert.Equal(t, engine.AssignmentRandom, task.Assignment)
		}
	}
	assert.Equal(t, 5, batch.Summary.Total)
	assert.Equal(t, 3, batch.Summary.Defined)
	assert.Equal(t, 2, batch.Summary.Random)
}

func TestBuild_NoActiveStaffSkipsSilently(t *testing.T) {
	batch, err := newTestBuilder(fixedRand(0)).Build(engine.BuildInput{
		Clients:         []engine.Client{{ID: "c1", Name: "One", WorkTypes: []string{"GST"}}},
		ComplianceTypes: []engine.ComplianceType{monthly("GSTR-1", 11), monthly("GSTR-3B", 20)},
		Period:          engine.MonthPeriod(2024, time.August),
		Staff:           []engine.Staff{staffMember("s1", false)},
	})

	require.NoError(t, err)
	assert.Empty(t, batch.Tasks)
	assert.Equal(t, 2, batch.Summary.Skipped)
	assert.Equal(t, 0, batch.Summary.Total)
}

func TestBuild_MismatchedTypeIsRejected(t *testing.T) {
	_, err := newTestBuilder(fixedRand(0)).Build(engine.BuildInput{
		Clients:         []engine.Client{{ID: "c1", WorkTypes: []string{"GST"}}},
		ComplianceTypes: []engine.ComplianceType{yearly("GSTR-9", 31)},
		Period:          engine.MonthPeriod(2024, time.August),
		Staff:           []engine.Staff{staffMember("s1", true)},
	})
	assert.ErrorIs(t, err, engine.ErrFrequencyMismatch)
}

func TestBatch_DropExisting(t *testing.T) {
	batch, err := newTestBuilder(fixedRand(0)).Build(engine.BuildInput{
		Clients:         []engine.Client{{ID: "c1", Name: "One", WorkTypes: []string{"GST"}}},
		ComplianceTypes: []engine.ComplianceType{monthly("GSTR-1", 11), monthly("GSTR-3B", 20)},
		Period:          engine.MonthPeriod(2024, time.August),
		Relations:       []engine.ClientStaffRelation{{ClientID: "c1", StaffID: "s1"}},
		Staff:           []engine.Staff{staffMember("s1", true)},
	})
	require.NoError(t, err)

	batch.DropExisting(map[string]bool{engine.TaskKey("c1", "GSTR-1", "2024-08"): true})

	require.Len(t, batch.Tasks, 1)
	assert.Equal(t, engine.ComplianceTypeID("GSTR-3B"), batch.Tasks[0].ComplianceTypeID)
	assert.Equal(t, 1, batch.Summary.Total)
	assert.Equal(t, 1, batch.Summary.Defined)
	assert.Equal(t, 1, batch.Summary.Duplicates)
}

// =============================================================================
// COMPLIANCE SELECTION
// =============================================================================

func TestSelectComplianceTypes(t *testing.T) {
	calendar := []engine.ComplianceType{
		monthly("GSTR-1", 11),
		monthly("GSTR-3B", 20),
		quarterly("26Q", 31),
		yearly("GSTR-9", 31),
		{ID: "kyc", Code: "DIR-3-KYC", Frequency: engine.FrequencyAsNeeded},
	}

	t.Run("all types filtered by period", func(t *testing.T) {
		got, err := engine.SelectComplianceTypes(calendar, engine.MonthPeriod(2024, time.May), "")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "GSTR-1", got[0].Code)
		assert.Equal(t, "GSTR-3B", got[1].Code)
	})

	t.Run("single code", func(t *testing.T) {
		got, err := engine.SelectComplianceTypes(calendar, engine.QuarterPeriod(2024, 1), "26q")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "26Q", got[0].Code)
	})

	t.Run("single code with wrong period", func(t *testing.T) {
		_, err := engine.SelectComplianceTypes(calendar, engine.MonthPeriod(2024, time.May), "GSTR-9")
		assert.ErrorIs(t, err, engine.ErrFrequencyMismatch)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := engine.SelectComplianceTypes(calendar, engine.MonthPeriod(2024, time.May), "NOPE")
		assert.ErrorIs(t, err, engine.ErrComplianceTypeNotFound)
		assert.True(t, engine.IsNotFound(err))
	})

	t.Run("nothing matches", func(t *testing.T) {
		got, err := engine.SelectComplianceTypes(calendar[:2], engine.YearPeriod(2024), "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
