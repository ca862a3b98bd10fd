/*
Package calendar loads compliance calendars.

PURPOSE:
  Converts YAML or JSON calendar definitions into engine.ComplianceType
  values, and ships the standard calendar every new firm starts from.
  Partners can keep their firm's calendar in a file under version control
  and seed it without code changes.

FILE FORMAT (YAML):
  compliance_types:
    - code: GSTR-3B
      name: GSTR-3B Monthly Return
      frequency: monthly
      due_day: 20
      fee: 1500
    - code: LUT
      name: Letter of Undertaking
      category: GST
      frequency: yearly

  JSON uses the same field names.

VALIDATION:
  - code and name are required
  - frequency must be monthly, quarterly, yearly or as_needed
  - due_day must be 0 (frequency default) or 1-31
  - fee must be a non-negative decimal
  - codes must be unique (case-insensitive) within one file

IDS:
  Entries without an id get a stable one derived from the scope and code,
  so re-seeding the same file updates rows instead of adding new ones.

SEE ALSO:
  - engine/types.go: ComplianceType
  - defaults.go: Standard calendar
  - store/sqlite/sqlite.go: SaveComplianceTypes
*/
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledgerly/practice-engine/engine"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCalendar wraps every validation failure.
var ErrInvalidCalendar = errors.New("invalid compliance calendar")

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// File is the on-disk representation of a calendar.
type File struct {
	ComplianceTypes []Entry `yaml:"compliance_types" json:"compliance_types"`
}

// Entry is one compliance type in a calendar file.
type Entry struct {
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	Code      string `yaml:"code" json:"code"`
	Name      string `yaml:"name" json:"name"`
	Category  string `yaml:"category,omitempty" json:"category,omitempty"`
	Frequency string `yaml:"frequency" json:"frequency"`
	DueDay    int    `yaml:"due_day,omitempty" json:"due_day,omitempty"`
	Fee       Amount `yaml:"fee,omitempty" json:"fee,omitempty"`
}

// Amount accepts fees written as numbers or strings ("1500", 1500, "1750.50").
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	return a.set(node.Value)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.set(strings.Trim(string(data), `"`))
}

func (a Amount) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("fee %q: %w", s, err)
	}
	a.Decimal = d
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// ParseYAML parses a YAML calendar into compliance types owned by firmID.
// An empty firmID produces global types.
func ParseYAML(data []byte, firmID engine.FirmID) ([]engine.ComplianceType, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
	}
	return f.Build(firmID)
}

// ParseJSON parses a JSON calendar into compliance types owned by firmID.
func ParseJSON(data []byte, firmID engine.FirmID) ([]engine.ComplianceType, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
	}
	return f.Build(firmID)
}

// LoadFile reads a calendar file, choosing the format by extension.
func LoadFile(path string, firmID engine.FirmID) ([]engine.ComplianceType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data, firmID)
	case ".yaml", ".yml":
		return ParseYAML(data, firmID)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidCalendar, filepath.Ext(path))
	}
}

// Build validates every entry and converts the file to compliance types.
func (f File) Build(firmID engine.FirmID) ([]engine.ComplianceType, error) {
	types := make([]engine.ComplianceType, 0, len(f.ComplianceTypes))
	seen := make(map[string]bool, len(f.ComplianceTypes))

	for i, e := range f.ComplianceTypes {
		ct, err := e.toComplianceType(firmID)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidCalendar, i+1, err)
		}
		if seen[ct.Code] {
			return nil, fmt.Errorf("%w: duplicate code %s", ErrInvalidCalendar, ct.Code)
		}
		seen[ct.Code] = true
		types = append(types, ct)
	}
	return types, nil
}

func (e Entry) toComplianceType(firmID engine.FirmID) (engine.ComplianceType, error) {
	code := strings.ToUpper(strings.TrimSpace(e.Code))
	if code == "" {
		return engine.ComplianceType{}, errors.New("code is required")
	}
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return engine.ComplianceType{}, fmt.Errorf("%s: name is required", code)
	}

	freq := engine.Frequency(strings.ToLower(strings.TrimSpace(e.Frequency)))
	if !freq.Valid() {
		return engine.ComplianceType{}, fmt.Errorf("%s: unknown frequency %q", code, e.Frequency)
	}
	if e.DueDay < 0 || e.DueDay > 31 {
		return engine.ComplianceType{}, fmt.Errorf("%s: due_day %d out of range 1-31", code, e.DueDay)
	}
	if e.Fee.IsNegative() {
		return engine.ComplianceType{}, fmt.Errorf("%s: fee must not be negative", code)
	}

	id := engine.ComplianceTypeID(strings.TrimSpace(e.ID))
	if id == "" {
		id = StableID(firmID, code)
	}

	return engine.ComplianceType{
		ID:        id,
		FirmID:    firmID,
		Code:      code,
		Name:      name,
		Category:  strings.ToUpper(strings.TrimSpace(e.Category)),
		Frequency: freq,
		DueDay:    e.DueDay,
		Fee:       e.Fee.Decimal,
	}, nil
}

// StableID derives the ID used for entries that do not name one.
func StableID(firmID engine.FirmID, code string) engine.ComplianceTypeID {
	code = strings.ToLower(strings.TrimSpace(code))
	if firmID == "" {
		return engine.ComplianceTypeID("global:" + code)
	}
	return engine.ComplianceTypeID(string(firmID) + ":" + code)
}

// ToFile converts compliance types back to their file form.
func ToFile(types []engine.ComplianceType) File {
	f := File{ComplianceTypes: make([]Entry, 0, len(types))}
	for _, ct := range types {
		f.ComplianceTypes = append(f.ComplianceTypes, Entry{
			ID:        string(ct.ID),
			Code:      ct.Code,
			Name:      ct.Name,
			Category:  ct.Category,
			Frequency: string(ct.Frequency),
			DueDay:    ct.DueDay,
			Fee:       Amount{ct.Fee},
		})
	}
	return f
}
