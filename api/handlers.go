/*
handlers.go - HTTP API handlers for the practice engine

PURPOSE:
  Exposes roster management, the compliance calendar and task generation
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the store and the generator.

ENDPOINTS (prefix /api/firms/{firmID}):
  Compliance calendar:
    GET    /compliance-types            Firm and global entries
    POST   /compliance-types            Create/update a firm entry
    POST   /compliance-types/defaults   Seed the standard calendar
    POST   /compliance-types/import     Import a YAML or JSON calendar
    DELETE /compliance-types/{id}       Remove a firm entry

  Clients:
    GET    /clients                     List clients
    POST   /clients                     Create/update client
    GET    /clients/{id}                Client with default staff
    DELETE /clients/{id}                Remove client
    PUT    /clients/{id}/staff          Set default staff
    DELETE /clients/{id}/staff          Clear default staff

  Staff:
    GET    /staff                       List staff
    POST   /staff                       Create/update staff member
    GET    /staff/{id}                  Staff member
    PUT    /staff/{id}/active           Activate/deactivate

  Tasks:
    GET    /tasks                       List (?period=&staff_id=&client_id=&limit=)
    POST   /tasks/generate              Generate and persist a batch
    POST   /tasks/preview               Build a batch without persisting

  Runs:
    GET    /runs                        Generation history (?limit=)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, bad period or selection
  - 404: Firm record not found
  - 409: Duplicate code, generation already running
  - 502: A storage collaborator failed during generation
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - engine/generator.go: Generation runs
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ledgerly/practice-engine/calendar"
	"github.com/ledgerly/practice-engine/engine"
	"github.com/ledgerly/practice-engine/store/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes    = 1 << 20
	defaultRunLimit = 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Generator *engine.Generator
	Logger    logrus.FieldLogger

	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, generator *engine.Generator, logger logrus.FieldLogger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Store:     store,
		Generator: generator,
		Logger:    logger,
		validate:  v,
	}
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// COMPLIANCE CALENDAR ENDPOINTS
// =============================================================================

// ListComplianceTypes returns the firm's calendar plus global entries.
// GET /api/firms/{firmID}/compliance-types
func (h *Handler) ListComplianceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListComplianceTypes(r.Context(), firmID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list compliance types", err)
		return
	}

	dtos := make([]ComplianceTypeDTO, 0, len(types))
	for _, ct := range types {
		dtos = append(dtos, toComplianceTypeDTO(ct))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveComplianceType creates or updates a firm calendar entry.
// POST /api/firms/{firmID}/compliance-types
func (h *Handler) SaveComplianceType(w http.ResponseWriter, r *http.Request) {
	var req SaveComplianceTypeRequest
	if !h.decode(w, r, &req) {
		return
	}

	fee := decimal.Zero
	if req.Fee != "" {
		var err error
		if fee, err = decimal.NewFromString(req.Fee); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid fee", err)
			return
		}
	}

	types, err := calendar.File{ComplianceTypes: []calendar.Entry{{
		ID:        req.ID,
		Code:      req.Code,
		Name:      req.Name,
		Category:  req.Category,
		Frequency: req.Frequency,
		DueDay:    req.DueDay,
		Fee:       calendar.Amount{Decimal: fee},
	}}}.Build(firmID(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid compliance type", err)
		return
	}

	if err := h.Store.SaveComplianceType(r.Context(), types[0]); err != nil {
		h.writeStoreError(w, "Failed to save compliance type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toComplianceTypeDTO(types[0]))
}

// SeedDefaultCalendar copies the standard calendar into the firm's scope.
// Re-seeding updates the same rows.
// POST /api/firms/{firmID}/compliance-types/defaults
func (h *Handler) SeedDefaultCalendar(w http.ResponseWriter, r *http.Request) {
	h.saveCalendar(w, r, calendar.Defaults(firmID(r)))
}

// ImportCalendar imports a calendar file. YAML is selected by a Content-Type
// containing "yaml"; anything else is parsed as JSON.
// POST /api/firms/{firmID}/compliance-types/import
func (h *Handler) ImportCalendar(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read calendar", err)
		return
	}

	var types []engine.ComplianceType
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		types, err = calendar.ParseYAML(body, firmID(r))
	} else {
		types, err = calendar.ParseJSON(body, firmID(r))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid calendar", err)
		return
	}

	h.saveCalendar(w, r, types)
}

func (h *Handler) saveCalendar(w http.ResponseWriter, r *http.Request, types []engine.ComplianceType) {
	if err := h.Store.SaveComplianceTypes(r.Context(), types); err != nil {
		h.writeStoreError(w, "Failed to save calendar", err)
		return
	}

	dtos := make([]ComplianceTypeDTO, 0, len(types))
	for _, ct := range types {
		dtos = append(dtos, toComplianceTypeDTO(ct))
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// DeleteComplianceType removes a firm calendar entry. Global entries cannot
// be removed through a firm.
// DELETE /api/firms/{firmID}/compliance-types/{id}
func (h *Handler) DeleteComplianceType(w http.ResponseWriter, r *http.Request) {
	id := engine.ComplianceTypeID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteComplianceType(r.Context(), firmID(r), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete compliance type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLIENT ENDPOINTS
// =============================================================================

// ListClients returns the firm's clients with their default staff.
// GET /api/firms/{firmID}/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firm := firmID(r)

	clients, err := h.Store.ListClients(ctx, firm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}
	defaults, err := h.defaultStaff(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load client relations", err)
		return
	}

	dtos := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, toClientDTO(c, defaults[c.ID]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveClient creates or updates a client. A missing ID is generated.
// POST /api/firms/{firmID}/clients
func (h *Handler) SaveClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx := r.Context()
	client := engine.Client{
		ID:        engine.ClientID(req.ID),
		FirmID:    firmID(r),
		Name:      strings.TrimSpace(req.Name),
		WorkTypes: normalizeWorkTypes(req.WorkTypes),
	}
	if err := h.Store.SaveClient(ctx, client); err != nil {
		h.writeStoreError(w, "Failed to save client", err)
		return
	}

	saved, err := h.Store.GetClient(ctx, client.FirmID, client.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load saved client", err)
		return
	}
	defaults, err := h.defaultStaff(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load client relations", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*saved, defaults[saved.ID]))
}

// GetClient returns a single client.
// GET /api/firms/{firmID}/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	defaults, err := h.defaultStaff(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load client relations", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client, defaults[client.ID]))
}

// DeleteClient removes a client and its default staff relation. Tasks
// already generated for the client are kept.
// DELETE /api/firms/{firmID}/clients/{id}
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := engine.ClientID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteClient(r.Context(), firmID(r), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultStaff makes a staff member the client's default assignee,
// replacing any previous one.
// PUT /api/firms/{firmID}/clients/{id}/staff
func (h *Handler) SetDefaultStaff(w http.ResponseWriter, r *http.Request) {
	var req SetDefaultStaffRequest
	if !h.decode(w, r, &req) {
		return
	}

	client, ok := h.loadClient(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	staff, err := h.Store.GetStaff(ctx, client.FirmID, engine.StaffID(req.StaffID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get staff", err)
		return
	}
	if staff == nil {
		writeError(w, http.StatusNotFound, "Staff not found", engine.ErrStaffNotFound)
		return
	}

	rel := engine.ClientStaffRelation{ClientID: client.ID, StaffID: staff.ID}
	if err := h.Store.SaveRelation(ctx, client.FirmID, rel); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save relation", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client, staff.ID))
}

// ClearDefaultStaff removes the client's default assignee; the client's
// future tasks are assigned at random.
// DELETE /api/firms/{firmID}/clients/{id}/staff
func (h *Handler) ClearDefaultStaff(w http.ResponseWriter, r *http.Request) {
	id := engine.ClientID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteRelation(r.Context(), firmID(r), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete relation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadClient(w http.ResponseWriter, r *http.Request) (*engine.Client, bool) {
	id := engine.ClientID(chi.URLParam(r, "id"))
	client, err := h.Store.GetClient(r.Context(), firmID(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return nil, false
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", engine.ErrClientNotFound)
		return nil, false
	}
	return client, true
}

func (h *Handler) defaultStaff(r *http.Request) (map[engine.ClientID]engine.StaffID, error) {
	relations, err := h.Store.GetClientStaffRelations(r.Context(), firmID(r))
	if err != nil {
		return nil, err
	}
	defaults := make(map[engine.ClientID]engine.StaffID, len(relations))
	for _, rel := range relations {
		defaults[rel.ClientID] = rel.StaffID
	}
	return defaults, nil
}

// =============================================================================
// STAFF ENDPOINTS
// =============================================================================

// ListStaff returns the firm's roster, active or not.
// GET /api/firms/{firmID}/staff
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Store.ListStaff(r.Context(), firmID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list staff", err)
		return
	}

	dtos := make([]StaffDTO, 0, len(staff))
	for _, s := range staff {
		dtos = append(dtos, toStaffDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveStaff creates or updates a staff member.
// POST /api/firms/{firmID}/staff
func (h *Handler) SaveStaff(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	ctx := r.Context()
	staff := engine.Staff{
		ID:       engine.StaffID(req.ID),
		FirmID:   firmID(r),
		UserID:   req.UserID,
		Name:     strings.TrimSpace(req.Name),
		Role:     req.Role,
		IsActive: active,
	}
	if err := h.Store.SaveStaff(ctx, staff); err != nil {
		h.writeStoreError(w, "Failed to save staff", err)
		return
	}

	saved, err := h.Store.GetStaff(ctx, staff.FirmID, staff.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load saved staff", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaffDTO(*saved))
}

// GetStaff returns a single staff member.
// GET /api/firms/{firmID}/staff/{id}
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	id := engine.StaffID(chi.URLParam(r, "id"))
	staff, err := h.Store.GetStaff(r.Context(), firmID(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get staff", err)
		return
	}
	if staff == nil {
		writeError(w, http.StatusNotFound, "Staff not found", engine.ErrStaffNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toStaffDTO(*staff))
}

// SetStaffActive activates or deactivates a staff member. Inactive staff are
// never picked by generation, even as a client's default.
// PUT /api/firms/{firmID}/staff/{id}/active
func (h *Handler) SetStaffActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	firm := firmID(r)
	id := engine.StaffID(chi.URLParam(r, "id"))
	if err := h.Store.SetStaffActive(ctx, firm, id, *req.Active); err != nil {
		h.writeStoreError(w, "Failed to update staff", err)
		return
	}

	staff, err := h.Store.GetStaff(ctx, firm, id)
	if err != nil || staff == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load staff", err)
		return
	}
	writeJSON(w, http.StatusOK, toStaffDTO(*staff))
}

// =============================================================================
// TASK ENDPOINTS
// =============================================================================

// ListTasks returns generated tasks ordered by due date.
// GET /api/firms/{firmID}/tasks?period=2024-03&staff_id=&client_id=&limit=
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sqlite.TaskFilter{
		ClientID: engine.ClientID(q.Get("client_id")),
		StaffID:  engine.StaffID(q.Get("staff_id")),
	}
	if raw := q.Get("period"); raw != "" {
		p, err := engine.ParsePeriod(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return
		}
		filter.PeriodKey = p.Key()
	}
	limit, err := parseLimit(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	filter.Limit = limit

	tasks, err := h.Store.ListTasks(r.Context(), firmID(r), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTOs(tasks))
}

// GenerateTasks generates and persists the batch for a period.
// POST /api/firms/{firmID}/tasks/generate
func (h *Handler) GenerateTasks(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, false)
}

// PreviewTasks builds the batch for a period without persisting it.
// POST /api/firms/{firmID}/tasks/preview
func (h *Handler) PreviewTasks(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, true)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request, preview bool) {
	var req GenerateTasksRequest
	if !h.decode(w, r, &req) {
		return
	}

	period, err := engine.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var clientIDs []engine.ClientID
	if req.ClientIDs != nil {
		clientIDs = make([]engine.ClientID, 0, len(req.ClientIDs))
		for _, id := range req.ClientIDs {
			clientIDs = append(clientIDs, engine.ClientID(id))
		}
	}
	genReq := engine.GenerateRequest{
		FirmID:         firmID(r),
		Period:         period,
		ClientIDs:      clientIDs,
		ComplianceCode: req.ComplianceCode,
		AssignedBy:     req.AssignedBy,
		SkipExisting:   req.SkipExisting,
	}

	var result *engine.Result
	if preview {
		result, err = h.Generator.Preview(r.Context(), genReq)
	} else {
		result, err = h.Generator.Generate(r.Context(), genReq)
	}
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	status := http.StatusCreated
	if preview {
		status = http.StatusOK
	}
	batch := result.Batch
	writeJSON(w, status, GenerateTasksResponse{
		RunID:   result.RunID,
		Preview: preview,
		Period:  toPeriodDTO(batch.Period),
		Summary: SummaryDTO{
			Total:      batch.Summary.Total,
			Defined:    batch.Summary.Defined,
			Random:     batch.Summary.Random,
			Skipped:    batch.Summary.Skipped,
			Duplicates: batch.Summary.Duplicates,
			TotalFees:  batch.Summary.TotalFees.StringFixed(2),
		},
		Tasks: toTaskDTOs(batch.Tasks),
	})
}

// =============================================================================
// RUN ENDPOINTS
// =============================================================================

// ListRuns returns the firm's generation runs, newest first.
// GET /api/firms/{firmID}/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.Store.ListRuns(r.Context(), firmID(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func firmID(r *http.Request) engine.FirmID {
	return engine.FirmID(chi.URLParam(r, "firmID"))
}

// decode reads and validates a JSON body, writing the 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: validationDetails(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func validationDetails(verrs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func parseLimit(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func normalizeWorkTypes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, wt := range in {
		wt = strings.ToUpper(strings.TrimSpace(wt))
		if wt == "" || seen[wt] {
			continue
		}
		seen[wt] = true
		out = append(out, wt)
	}
	return out
}

// writeGenerationError maps engine error categories to HTTP statuses.
func writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsInputError(err):
		writeError(w, http.StatusBadRequest, "Invalid generation request", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Selection not found", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Generation already in progress", err)
	case errors.Is(err, engine.ErrCollaborator):
		writeError(w, http.StatusBadGateway, "Storage failure during generation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to generate tasks", err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, sqlite.ErrConflict):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.logger().WithError(err).WithField("module", "api").Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
