/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Roster and calendar management
- Generation, preview and run history end to end on SQLite
- Error status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ledgerly/practice-engine/engine"
	"github.com/ledgerly/practice-engine/lock"
	"github.com/ledgerly/practice-engine/store/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	store  *sqlite.Store
	locker *lock.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	locker := lock.NewMemory()
	gen := &engine.Generator{
		Compliance: store,
		Rosters:    store,
		Relations:  store,
		Tasks:      store,
		Runs:       store,
		Locker:     locker,
		Builder: &engine.BatchBuilder{
			Eligibility: engine.NewEligibilityFilter(nil),
			Rand:        rand.New(rand.NewSource(1)),
		},
		Logger: logger,
	}

	h := NewHandler(store, gen, logger)
	return &testServer{router: NewRouter(h, nil), store: store, locker: locker}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedFirm creates the standard calendar, two clients and two staff members
// for firm-1. Acme's default assignee is s2.
func (s *testServer) seedFirm(t *testing.T) {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/firms/firm-1/compliance-types/defaults", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/firms/firm-1/compliance-types", SaveComplianceTypeRequest{
		Code: "GSTR-3B", Name: "GSTR-3B", Frequency: "monthly", DueDay: 20, Fee: "1500",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, c := range []CreateClientRequest{
		{ID: "acme", Name: "Acme Pvt Ltd", WorkTypes: []string{"gst"}},
		{ID: "beta", Name: "Beta Traders", WorkTypes: []string{"GST", "TDS"}},
	} {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/clients", c)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	for _, st := range []CreateStaffRequest{
		{ID: "s1", Name: "Asha", Role: "manager"},
		{ID: "s2", Name: "Bala", Role: "article"},
	} {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/staff", st)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPut, "/api/firms/firm-1/clients/acme/staff", SetDefaultStaffRequest{StaffID: "s2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerateTasks_SingleCode(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	// GIVEN: Acme (GST, default s2) and Beta (GST+TDS, no default)
	// WHEN: Generating GSTR-3B for March 2024
	rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", GenerateTasksRequest{
		Period:         "2024-03",
		ComplianceCode: "GSTR-3B",
		AssignedBy:     "partner-1",
	})

	// THEN: One task per client, due 2024-04-20, Acme's assigned to s2
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[GenerateTasksResponse](t, rec)

	assert.NotEmpty(t, resp.RunID)
	assert.False(t, resp.Preview)
	assert.Equal(t, "March 2024", resp.Period.Label)
	assert.Equal(t, "2024-03-01", resp.Period.Start)
	assert.Equal(t, "2024-03-31", resp.Period.End)
	assert.Equal(t, 2, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Defined)
	assert.Equal(t, 1, resp.Summary.Random)
	assert.Equal(t, "3000.00", resp.Summary.TotalFees)

	require.Len(t, resp.Tasks, 2)
	for _, task := range resp.Tasks {
		assert.Equal(t, "GSTR-3B - March 2024", task.Title)
		assert.Equal(t, "2024-04-20", task.DueDate)
		assert.Equal(t, "assigned", task.Status)
		assert.Equal(t, "medium", task.Priority)
		assert.Equal(t, "partner-1", task.AssignedBy)
		if task.ClientID == "acme" {
			assert.Equal(t, "s2", task.StaffID)
			assert.Equal(t, "GSTR-3B for Acme Pvt Ltd", task.Description)
		}
	}

	// Persisted and listed
	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/tasks?period=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]TaskDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/tasks?staff_id=s2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[[]TaskDTO](t, rec))

	// Recorded
	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeBody[[]RunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
	assert.Equal(t, "succeeded", runs[0].Status)
	assert.Equal(t, "GSTR-3B", runs[0].Code)
}

func TestGenerateTasks_QuarterUsesEligibility(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", GenerateTasksRequest{
		Period:     "2024-Q3",
		AssignedBy: "partner-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[GenerateTasksResponse](t, rec)

	// Only Beta declares TDS; Acme and Beta both get CMP-08 (GST category)
	byClient := map[string][]string{}
	for _, task := range resp.Tasks {
		byClient[task.ClientID] = append(byClient[task.ClientID], task.ComplianceTypeID)
		if strings.HasPrefix(task.Title, "27Q") {
			assert.Equal(t, "2025-01-31", task.DueDate)
		}
	}
	assert.ElementsMatch(t, []string{"firm-1:cmp-08"}, byClient["acme"])
	assert.ElementsMatch(t, []string{"firm-1:cmp-08", "firm-1:24q", "firm-1:26q", "firm-1:27q", "firm-1:27eq"}, byClient["beta"])
	assert.Equal(t, "Q3 FY 2024-25", resp.Period.Label)
}

func TestPreviewTasks_DoesNotPersist(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/preview", GenerateTasksRequest{
		Period:     "2024-03",
		AssignedBy: "partner-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[GenerateTasksResponse](t, rec)
	assert.True(t, resp.Preview)
	assert.Empty(t, resp.RunID)
	assert.NotEmpty(t, resp.Tasks)

	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/tasks", nil)
	assert.Empty(t, decodeBody[[]TaskDTO](t, rec))
	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/runs", nil)
	assert.Empty(t, decodeBody[[]RunDTO](t, rec))
}

func TestGenerateTasks_RerunDuplicatesUnlessSkipped(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)
	req := GenerateTasksRequest{Period: "2024-03", ComplianceCode: "GSTR-3B", AssignedBy: "partner-1"}

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", req).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", req).Code)

	rec := s.do(t, http.MethodGet, "/api/firms/firm-1/tasks?period=2024-03", nil)
	assert.Len(t, decodeBody[[]TaskDTO](t, rec), 4, "plain re-run stores a second batch")

	req.SkipExisting = true
	rec = s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[GenerateTasksResponse](t, rec)
	assert.Equal(t, 0, resp.Summary.Total)
	assert.Equal(t, 2, resp.Summary.Duplicates)
	assert.Empty(t, resp.Tasks)
}

func TestGenerateTasks_Errors(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing assigned_by", GenerateTasksRequest{Period: "2024-03"}, http.StatusBadRequest},
		{"bad period", GenerateTasksRequest{Period: "2024-13", AssignedBy: "p"}, http.StatusBadRequest},
		{"unknown field", `{"period":"2024-03","assigned_by":"p","extra":1}`, http.StatusBadRequest},
		{"frequency mismatch", GenerateTasksRequest{Period: "2024-03", ComplianceCode: "GSTR-9", AssignedBy: "p"}, http.StatusBadRequest},
		{"unknown code", GenerateTasksRequest{Period: "2024-03", ComplianceCode: "NOPE", AssignedBy: "p"}, http.StatusNotFound},
		{"unknown client", GenerateTasksRequest{Period: "2024-03", ClientIDs: []string{"ghost"}, AssignedBy: "p"}, http.StatusNotFound},
		{"empty client selection", `{"period":"2024-03","assigned_by":"p","client_ids":[]}`, http.StatusBadRequest},
		{"repeated client", GenerateTasksRequest{Period: "2024-03", ClientIDs: []string{"acme", "acme"}, AssignedBy: "p"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}

	t.Run("validation details name the field", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", GenerateTasksRequest{Period: "2024-03"})
		var resp struct {
			Details map[string]string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "required", resp.Details["assigned_by"])
	})

	t.Run("no clients", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/firms/empty-firm/tasks/generate", GenerateTasksRequest{Period: "2024-03", AssignedBy: "p"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), engine.ErrNoClientsSelected.Error())
	})

	t.Run("no active staff", func(t *testing.T) {
		for _, id := range []string{"s1", "s2"} {
			rec := s.do(t, http.MethodPut, "/api/firms/firm-1/staff/"+id+"/active", `{"active":false}`)
			require.Equal(t, http.StatusOK, rec.Code)
		}
		t.Cleanup(func() {
			for _, id := range []string{"s1", "s2"} {
				s.do(t, http.MethodPut, "/api/firms/firm-1/staff/"+id+"/active", `{"active":true}`)
			}
		})

		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", GenerateTasksRequest{Period: "2024-03", AssignedBy: "p"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), engine.ErrNoActiveStaff.Error())
	})
}

func TestGenerateTasks_InProgress(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	// GIVEN: Another run holds the March lock
	unlock, err := s.locker.Lock(context.Background(), "generate:firm-1:2024-03")
	require.NoError(t, err)

	// WHEN: Generating March
	rec := s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", GenerateTasksRequest{Period: "2024-03", AssignedBy: "p"})

	// THEN: 409 and nothing stored; preview still works
	assert.Equal(t, http.StatusConflict, rec.Code)
	tasks, err := s.store.ListTasks(context.Background(), "firm-1", sqlite.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	rec = s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/preview", GenerateTasksRequest{Period: "2024-03", AssignedBy: "p"})
	assert.Equal(t, http.StatusOK, rec.Code)

	unlock()
	rec = s.do(t, http.MethodPost, "/api/firms/firm-1/tasks/generate", GenerateTasksRequest{Period: "2024-03", AssignedBy: "p"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

// =============================================================================
// ROSTERS AND CALENDAR
// =============================================================================

func TestClients(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	rec := s.do(t, http.MethodGet, "/api/firms/firm-1/clients/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acme := decodeBody[ClientDTO](t, rec)
	assert.Equal(t, []string{"GST"}, acme.WorkTypes)
	assert.Equal(t, "s2", acme.DefaultStaffID)
	assert.NotEmpty(t, acme.CreatedAt)

	// Generated ID
	rec = s.do(t, http.MethodPost, "/api/firms/firm-1/clients", CreateClientRequest{Name: "Gamma", WorkTypes: []string{" tds ", "TDS"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	gamma := decodeBody[ClientDTO](t, rec)
	assert.NotEmpty(t, gamma.ID)
	assert.Equal(t, []string{"TDS"}, gamma.WorkTypes)

	// Relation to unknown staff
	rec = s.do(t, http.MethodPut, "/api/firms/firm-1/clients/acme/staff", SetDefaultStaffRequest{StaffID: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Clear relation
	rec = s.do(t, http.MethodDelete, "/api/firms/firm-1/clients/acme/staff", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/clients/acme", nil)
	assert.Empty(t, decodeBody[ClientDTO](t, rec).DefaultStaffID)

	// Other firm cannot see the client
	rec = s.do(t, http.MethodGet, "/api/firms/firm-2/clients/acme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// ...nor overwrite it by reusing its ID
	rec = s.do(t, http.MethodPost, "/api/firms/firm-2/clients", CreateClientRequest{ID: "acme", Name: "x", WorkTypes: []string{}})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/firms/firm-2/staff", CreateStaffRequest{ID: "s1", Name: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/clients/acme", nil)
	assert.Equal(t, "Acme Pvt Ltd", decodeBody[ClientDTO](t, rec).Name)

	rec = s.do(t, http.MethodDelete, "/api/firms/firm-1/clients/acme", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/clients", nil)
	assert.Len(t, decodeBody[[]ClientDTO](t, rec), 2)

	rec = s.do(t, http.MethodPost, "/api/firms/firm-1/clients", CreateClientRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaff(t *testing.T) {
	s := newTestServer(t)
	s.seedFirm(t)

	rec := s.do(t, http.MethodPut, "/api/firms/firm-1/staff/s1/active", `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[StaffDTO](t, rec).IsActive)

	rec = s.do(t, http.MethodPut, "/api/firms/firm-1/staff/ghost/active", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/firms/firm-1/staff/s1/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/staff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	staff := decodeBody[[]StaffDTO](t, rec)
	require.Len(t, staff, 2)
	assert.Equal(t, "Asha", staff[0].Name)
	assert.False(t, staff[0].IsActive)
	assert.True(t, staff[1].IsActive)

	rec = s.do(t, http.MethodGet, "/api/firms/firm-1/staff/s2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "article", decodeBody[StaffDTO](t, rec).Role)
}

func TestComplianceTypes(t *testing.T) {
	s := newTestServer(t)

	t.Run("invalid frequency", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/compliance-types", SaveComplianceTypeRequest{
			Code: "PF", Name: "Provident Fund", Frequency: "weekly",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("save and list", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/compliance-types", SaveComplianceTypeRequest{
			Code: "pf", Name: "Provident Fund", Frequency: "monthly", DueDay: 15, Fee: "499.5",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ct := decodeBody[ComplianceTypeDTO](t, rec)
		assert.Equal(t, "PF", ct.Code)
		assert.Equal(t, "499.50", ct.Fee)
		assert.False(t, ct.Global)

		rec = s.do(t, http.MethodGet, "/api/firms/firm-1/compliance-types", nil)
		assert.Len(t, decodeBody[[]ComplianceTypeDTO](t, rec), 1)
	})

	t.Run("duplicate code under another id", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/compliance-types", SaveComplianceTypeRequest{
			ID: "pf-2", Code: "PF", Name: "PF again", Frequency: "monthly",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("import yaml", func(t *testing.T) {
		body := "compliance_types:\n  - code: ESI\n    name: ESI Return\n    frequency: monthly\n    due_day: 15\n"
		req := httptest.NewRequest(http.MethodPost, "/api/firms/firm-1/compliance-types/import", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/yaml")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "firm-1:esi", decodeBody[[]ComplianceTypeDTO](t, rec)[0].ID)
	})

	t.Run("import invalid json", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/firms/firm-1/compliance-types/import",
			`{"compliance_types":[{"code":"X","name":"X","frequency":"monthly","due_day":40}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/firms/firm-1/compliance-types/firm-1:esi", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = s.do(t, http.MethodGet, "/api/firms/firm-1/compliance-types", nil)
		assert.Len(t, decodeBody[[]ComplianceTypeDTO](t, rec), 1)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
