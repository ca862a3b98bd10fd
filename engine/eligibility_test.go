package engine_test

import (
	"testing"

	"github.com/ledgerly/practice-engine/engine"
	"github.com/stretchr/testify/assert"
)

func TestEligibility_Category(t *testing.T) {
	f := engine.NewEligibilityFilter(nil)

	assert.Equal(t, "GST", f.Category("GSTR-1"))
	assert.Equal(t, "GST", f.Category("gstr-3b"))
	assert.Equal(t, "GST", f.Category(" GSTR-9 "))
	assert.Equal(t, "TDS", f.Category("24Q"))
	assert.Equal(t, "TDS", f.Category("26Q"))
	assert.Equal(t, "TDS", f.Category("27Q"))

	// Unmapped codes are their own category
	assert.Equal(t, "PF", f.Category("PF"))
	assert.Equal(t, "ESI", f.Category("esi"))
}

func TestEligibility_Overrides(t *testing.T) {
	f := engine.NewEligibilityFilter(map[string]string{
		"pt":  "payroll",
		"ITR": "ITR", // firm tracks ITR as its own work type
	})

	assert.Equal(t, "PAYROLL", f.Category("PT"))
	assert.Equal(t, "ITR", f.Category("ITR"))
	assert.Equal(t, "GST", f.Category("GSTR-1"), "defaults survive")
}

func TestEligibility_IsEligible(t *testing.T) {
	f := engine.NewEligibilityFilter(nil)
	gstOnly := engine.Client{ID: "c1", Name: "Acme Pvt Ltd", WorkTypes: []string{"gst"}}
	both := engine.Client{ID: "c2", Name: "Both Ltd", WorkTypes: []string{"GST", "TDS"}}
	none := engine.Client{ID: "c3", Name: "Dormant LLP"}

	assert.True(t, f.IsEligible(gstOnly, monthly("GSTR-3B", 20)))
	assert.False(t, f.IsEligible(gstOnly, quarterly("26Q", 31)))
	assert.True(t, f.IsEligible(both, quarterly("26Q", 31)))
	assert.False(t, f.IsEligible(none, monthly("GSTR-3B", 20)))

	// Unmapped code: client must declare the code itself
	pf := monthly("PF", 15)
	assert.False(t, f.IsEligible(both, pf))
	assert.True(t, f.IsEligible(engine.Client{WorkTypes: []string{"PF"}}, pf))
}

func TestEligibility_ExplicitCategoryWins(t *testing.T) {
	f := engine.NewEligibilityFilter(nil)
	lut := engine.ComplianceType{Code: "LUT", Category: "gst", Frequency: engine.FrequencyYearly}

	assert.Equal(t, "GST", f.CategoryOf(lut))
	assert.Equal(t, "LUT", f.Category("LUT"))
	assert.True(t, f.IsEligible(engine.Client{WorkTypes: []string{"GST"}}, lut))
}
