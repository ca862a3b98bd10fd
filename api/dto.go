/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers call
  h.decode, which rejects unknown JSON and failed tags with a 400 whose
  details map field names to the failed rule.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/ledgerly/practice-engine/engine"
)

// =============================================================================
// COMPLIANCE CALENDAR
// =============================================================================

// ComplianceTypeDTO represents a calendar entry in API responses.
type ComplianceTypeDTO struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Frequency string `json:"frequency"`
	DueDay    int    `json:"due_day,omitempty"`
	Fee       string `json:"fee"`
	Global    bool   `json:"global"`
}

// SaveComplianceTypeRequest creates or updates a firm calendar entry.
type SaveComplianceTypeRequest struct {
	ID        string `json:"id"`
	Code      string `json:"code" validate:"required,max=32"`
	Name      string `json:"name" validate:"required,max=200"`
	Category  string `json:"category" validate:"max=32"`
	Frequency string `json:"frequency" validate:"required,oneof=monthly quarterly yearly as_needed"`
	DueDay    int    `json:"due_day" validate:"min=0,max=31"`
	Fee       string `json:"fee" validate:"omitempty,numeric"`
}

// =============================================================================
// ROSTERS
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	WorkTypes      []string `json:"work_types"`
	DefaultStaffID string   `json:"default_staff_id,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// CreateClientRequest is the request to create or update a client.
type CreateClientRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" validate:"required,max=200"`
	WorkTypes []string `json:"work_types" validate:"dive,required,max=32"`
}

// StaffDTO represents a staff member in API responses.
type StaffDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateStaffRequest is the request to create or update a staff member.
// IsActive defaults to true.
type CreateStaffRequest struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name" validate:"required,max=200"`
	Role     string `json:"role" validate:"max=64"`
	IsActive *bool  `json:"is_active"`
}

// SetActiveRequest activates or deactivates a staff member.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetDefaultStaffRequest sets a client's default assignee.
type SetDefaultStaffRequest struct {
	StaffID string `json:"staff_id" validate:"required"`
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateTasksRequest is the operator's selection for a run. Period is a
// compact key: "2024-03", "2024-Q3" or "FY2024".
type GenerateTasksRequest struct {
	Period         string   `json:"period" validate:"required"`
	ClientIDs      []string `json:"client_ids" validate:"omitempty,unique,dive,required"` // null = all, [] = none
	ComplianceCode string   `json:"compliance_code"`
	AssignedBy     string   `json:"assigned_by" validate:"required"`
	SkipExisting   bool     `json:"skip_existing"`
}

// PeriodDTO describes a reporting period.
type PeriodDTO struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// SummaryDTO reports the counts of a batch.
type SummaryDTO struct {
	Total      int    `json:"total"`
	Defined    int    `json:"defined"`
	Random     int    `json:"random"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	TotalFees  string `json:"total_fees"`
}

// GenerateTasksResponse is returned by generate and preview.
type GenerateTasksResponse struct {
	RunID   string     `json:"run_id,omitempty"`
	Preview bool       `json:"preview"`
	Period  PeriodDTO  `json:"period"`
	Summary SummaryDTO `json:"summary"`
	Tasks   []TaskDTO  `json:"tasks"`
}

// TaskDTO represents a generated task.
type TaskDTO struct {
	ID               string `json:"id"`
	ClientID         string `json:"client_id"`
	StaffID          string `json:"staff_id"`
	ComplianceTypeID string `json:"compliance_type_id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	DueDate          string `json:"due_date"`
	Status           string `json:"status"`
	Priority         string `json:"priority"`
	Period           string `json:"period"`
	PeriodKey        string `json:"period_key"`
	AssignedBy       string `json:"assigned_by"`
	Assignment       string `json:"assignment,omitempty"`
	Fee              string `json:"fee"`
	CreatedAt        string `json:"created_at"`
}

// RunDTO represents a generation run.
type RunDTO struct {
	ID          string `json:"id"`
	PeriodKey   string `json:"period_key"`
	PeriodLabel string `json:"period_label"`
	Code        string `json:"compliance_code,omitempty"`
	AssignedBy  string `json:"assigned_by,omitempty"`
	Total       int    `json:"total"`
	Defined     int    `json:"defined"`
	Random      int    `json:"random"`
	Skipped     int    `json:"skipped"`
	Duplicates  int    `json:"duplicates"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toComplianceTypeDTO(ct engine.ComplianceType) ComplianceTypeDTO {
	return ComplianceTypeDTO{
		ID:        string(ct.ID),
		Code:      ct.Code,
		Name:      ct.Name,
		Category:  ct.Category,
		Frequency: string(ct.Frequency),
		DueDay:    ct.DueDay,
		Fee:       ct.Fee.StringFixed(2),
		Global:    ct.FirmID == "",
	}
}

func toClientDTO(c engine.Client, defaultStaff engine.StaffID) ClientDTO {
	workTypes := c.WorkTypes
	if workTypes == nil {
		workTypes = []string{}
	}
	return ClientDTO{
		ID:             string(c.ID),
		Name:           c.Name,
		WorkTypes:      workTypes,
		DefaultStaffID: string(defaultStaff),
		CreatedAt:      formatTime(c.CreatedAt),
	}
}

func toStaffDTO(s engine.Staff) StaffDTO {
	return StaffDTO{
		ID:        string(s.ID),
		UserID:    s.UserID,
		Name:      s.Name,
		Role:      s.Role,
		IsActive:  s.IsActive,
		CreatedAt: formatTime(s.CreatedAt),
	}
}

func toTaskDTO(t engine.GeneratedTask) TaskDTO {
	return TaskDTO{
		ID:               string(t.ID),
		ClientID:         string(t.ClientID),
		StaffID:          string(t.StaffID),
		ComplianceTypeID: string(t.ComplianceTypeID),
		Title:            t.Title,
		Description:      t.Description,
		DueDate:          t.DueDate.String(),
		Status:           string(t.Status),
		Priority:         string(t.Priority),
		Period:           t.Period,
		PeriodKey:        t.PeriodKey,
		AssignedBy:       t.AssignedBy,
		Assignment:       string(t.Assignment),
		Fee:              t.Fee.StringFixed(2),
		CreatedAt:        formatTime(t.CreatedAt),
	}
}

func toTaskDTOs(tasks []engine.GeneratedTask) []TaskDTO {
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, toTaskDTO(t))
	}
	return dtos
}

func toPeriodDTO(p engine.Period) PeriodDTO {
	start, end := p.Range()
	return PeriodDTO{
		Type:  string(p.Type),
		Key:   p.Key(),
		Label: p.Label(),
		Start: start.String(),
		End:   end.String(),
	}
}

func toRunDTO(r engine.GenerationRun) RunDTO {
	return RunDTO{
		ID:          r.ID,
		PeriodKey:   r.PeriodKey,
		PeriodLabel: r.PeriodLabel,
		Code:        r.Code,
		AssignedBy:  r.AssignedBy,
		Total:       r.Total,
		Defined:     r.Defined,
		Random:      r.Random,
		Skipped:     r.Skipped,
		Duplicates:  r.Duplicates,
		Status:      string(r.Status),
		Error:       r.Error,
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
