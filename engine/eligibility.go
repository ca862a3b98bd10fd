package engine

// =============================================================================
// CLIENT ELIGIBILITY FILTER
// =============================================================================

// defaultCategories maps specific compliance codes to the work category a
// client must declare. Codes not listed are their own category.
var defaultCategories = map[string]string{
	// GST returns
	"GSTR-1":  "GST",
	"GSTR-3B": "GST",
	"GSTR-4":  "GST",
	"GSTR-9":  "GST",
	"GSTR-9C": "GST",
	"CMP-08":  "GST",
	"IFF":     "GST",
	// TDS / TCS returns and payments
	"24Q":         "TDS",
	"26Q":         "TDS",
	"27Q":         "TDS",
	"27EQ":        "TDS",
	"TDS-PAYMENT": "TDS",
	// Income tax
	"ITR":         "IT",
	"ADVANCE-TAX": "IT",
	"3CD":         "AUDIT",
	"3CA-3CD":     "AUDIT",
	"3CB-3CD":     "AUDIT",
	"TAX-AUDIT":   "AUDIT",
	"3CEB":        "TP",
	// Company law
	"MGT-7":     "ROC",
	"MGT-7A":    "ROC",
	"AOC-4":     "ROC",
	"DIR-3-KYC": "ROC",
}

// EligibilityFilter decides which clients a compliance type applies to.
// The zero value is not usable; build one with NewEligibilityFilter.
type EligibilityFilter struct {
	categories map[string]string
}

// NewEligibilityFilter returns a filter over the default code map extended
// (or overridden) by the firm-specific entries in overrides.
func NewEligibilityFilter(overrides map[string]string) *EligibilityFilter {
	categories := make(map[string]string, len(defaultCategories)+len(overrides))
	for code, cat := range defaultCategories {
		categories[code] = cat
	}
	for code, cat := range overrides {
		categories[normalizeCode(code)] = normalizeCode(cat)
	}
	return &EligibilityFilter{categories: categories}
}

// Category returns the parent category of a compliance code.
func (f *EligibilityFilter) Category(code string) string {
	code = normalizeCode(code)
	if cat, ok := f.categories[code]; ok {
		return cat
	}
	return code
}

// CategoryOf returns the category of a calendar entry. An explicit Category
// on the entry wins over the code map.
func (f *EligibilityFilter) CategoryOf(ct ComplianceType) string {
	if cat := normalizeCode(ct.Category); cat != "" {
		return cat
	}
	return f.Category(ct.Code)
}

// IsEligible reports whether the client's work types include the parent
// category of the compliance type.
func (f *EligibilityFilter) IsEligible(c Client, ct ComplianceType) bool {
	return c.HasWorkType(f.CategoryOf(ct))
}
