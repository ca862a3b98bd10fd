package store_test

import (
	"context"
	"testing"

	"github.com/ledgerly/practice-engine/engine"
	"github.com/ledgerly/practice-engine/engine/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FirmTypeShadowsGlobal(t *testing.T) {
	// GIVEN: A global monthly GSTR-1 and firm-1's quarterly override
	m := store.NewMemory()
	m.AddComplianceTypes(
		engine.ComplianceType{ID: "g-gstr1", Code: "GSTR-1", Frequency: engine.FrequencyMonthly},
		engine.ComplianceType{ID: "g-itr", Code: "ITR", Frequency: engine.FrequencyYearly},
		engine.ComplianceType{ID: "f-gstr1", FirmID: "firm-1", Code: "GSTR-1", Frequency: engine.FrequencyQuarterly},
	)

	// WHEN: Listing for the owning firm and another firm
	own, err := m.ListComplianceTypes(context.Background(), "firm-1")
	require.NoError(t, err)
	other, err := m.ListComplianceTypes(context.Background(), "firm-2")
	require.NoError(t, err)

	// THEN: Only the owner sees its override
	ids := func(types []engine.ComplianceType) []engine.ComplianceTypeID {
		var out []engine.ComplianceTypeID
		for _, ct := range types {
			out = append(out, ct.ID)
		}
		return out
	}
	assert.ElementsMatch(t, []engine.ComplianceTypeID{"g-itr", "f-gstr1"}, ids(own))
	assert.ElementsMatch(t, []engine.ComplianceTypeID{"g-gstr1", "g-itr"}, ids(other))
}
