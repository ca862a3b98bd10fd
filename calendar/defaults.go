package calendar

import "github.com/ledgerly/practice-engine/engine"

// =============================================================================
// STANDARD CALENDAR
// =============================================================================

// standard is the calendar a new firm starts from. Fees are left at zero;
// firms set their own.
var standard = File{ComplianceTypes: []Entry{
	// GST
	{Code: "GSTR-1", Name: "GSTR-1 Outward Supplies", Frequency: "monthly", DueDay: 11},
	{Code: "GSTR-3B", Name: "GSTR-3B Summary Return", Frequency: "monthly", DueDay: 20},
	{Code: "CMP-08", Name: "CMP-08 Composition Statement", Frequency: "quarterly", DueDay: 18},
	{Code: "GSTR-9", Name: "GSTR-9 Annual Return", Frequency: "yearly"},
	{Code: "GSTR-9C", Name: "GSTR-9C Reconciliation Statement", Frequency: "yearly"},

	// TDS / TCS
	{Code: "TDS-PAYMENT", Name: "TDS Payment", Frequency: "monthly", DueDay: 7},
	{Code: "24Q", Name: "24Q Salary TDS Return", Frequency: "quarterly"},
	{Code: "26Q", Name: "26Q Non-Salary TDS Return", Frequency: "quarterly"},
	{Code: "27Q", Name: "27Q Non-Resident TDS Return", Frequency: "quarterly"},
	{Code: "27EQ", Name: "27EQ TCS Return", Frequency: "quarterly", DueDay: 15},

	// Income tax
	{Code: "ITR", Name: "Income Tax Return", Frequency: "yearly"},
	{Code: "ADVANCE-TAX", Name: "Advance Tax Instalment", Frequency: "as_needed"},
	{Code: "3CD", Name: "Tax Audit Report 3CD", Frequency: "yearly", DueDay: 30},
	{Code: "3CEB", Name: "Transfer Pricing Report 3CEB", Frequency: "yearly"},

	// Company law
	{Code: "MGT-7", Name: "MGT-7 Annual Return", Frequency: "yearly", DueDay: 29},
	{Code: "AOC-4", Name: "AOC-4 Financial Statements", Frequency: "yearly", DueDay: 30},
	{Code: "DIR-3-KYC", Name: "DIR-3 KYC", Frequency: "as_needed"},
}}

// Defaults returns the standard calendar owned by firmID (global when empty).
func Defaults(firmID engine.FirmID) []engine.ComplianceType {
	types, err := standard.Build(firmID)
	if err != nil {
		panic("calendar: invalid standard calendar: " + err.Error())
	}
	return types
}
