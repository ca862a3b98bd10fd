// Package store provides in-memory collaborator implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerly/practice-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every engine collaborator interface.
type Memory struct {
	mu         sync.RWMutex
	compliance []engine.ComplianceType
	clients    map[engine.FirmID][]engine.Client
	staff      map[engine.FirmID][]engine.Staff
	relations  map[engine.FirmID]map[engine.ClientID]engine.StaffID
	tasks      []engine.GeneratedTask
	runs       []engine.GenerationRun
}

func NewMemory() *Memory {
	return &Memory{
		clients:   make(map[engine.FirmID][]engine.Client),
		staff:     make(map[engine.FirmID][]engine.Staff),
		relations: make(map[engine.FirmID]map[engine.ClientID]engine.StaffID),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) AddComplianceTypes(types ...engine.ComplianceType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compliance = append(m.compliance, types...)
}

func (m *Memory) AddClients(firmID engine.FirmID, clients ...engine.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clients {
		c.FirmID = firmID
		m.clients[firmID] = append(m.clients[firmID], c)
	}
}

func (m *Memory) AddStaff(firmID engine.FirmID, staff ...engine.Staff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range staff {
		s.FirmID = firmID
		m.staff[firmID] = append(m.staff[firmID], s)
	}
}

// SetRelation replaces the client's default staff member.
func (m *Memory) SetRelation(firmID engine.FirmID, rel engine.ClientStaffRelation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relations[firmID] == nil {
		m.relations[firmID] = make(map[engine.ClientID]engine.StaffID)
	}
	m.relations[firmID][rel.ClientID] = rel.StaffID
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// ListComplianceTypes returns the firm's types and the global types they do
// not shadow by code.
func (m *Memory) ListComplianceTypes(_ context.Context, firmID engine.FirmID) ([]engine.ComplianceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	own := make(map[string]bool)
	for _, ct := range m.compliance {
		if ct.FirmID != "" && ct.FirmID == firmID {
			own[ct.Code] = true
		}
	}
	var result []engine.ComplianceType
	for _, ct := range m.compliance {
		switch {
		case ct.FirmID == "" && !own[ct.Code], ct.FirmID != "" && ct.FirmID == firmID:
			result = append(result, ct)
		}
	}
	return result, nil
}

func (m *Memory) ListClients(_ context.Context, firmID engine.FirmID) ([]engine.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.Client(nil), m.clients[firmID]...), nil
}

func (m *Memory) GetClients(_ context.Context, firmID engine.FirmID, ids []engine.ClientID) ([]engine.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := make(map[engine.ClientID]engine.Client, len(m.clients[firmID]))
	for _, c := range m.clients[firmID] {
		byID[c.ID] = c
	}
	result := make([]engine.Client, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
		}
		result = append(result, c)
	}
	return result, nil
}

func (m *Memory) ListStaff(_ context.Context, firmID engine.FirmID) ([]engine.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.Staff(nil), m.staff[firmID]...), nil
}

func (m *Memory) GetClientStaffRelations(_ context.Context, firmID engine.FirmID) ([]engine.ClientStaffRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]engine.ClientStaffRelation, 0, len(m.relations[firmID]))
	for clientID, staffID := range m.relations[firmID] {
		result = append(result, engine.ClientStaffRelation{ClientID: clientID, StaffID: staffID})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result, nil
}

func (m *Memory) CreateBulkTasks(_ context.Context, tasks []engine.GeneratedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, tasks...)
	return nil
}

func (m *Memory) ExistingTaskKeys(_ context.Context, firmID engine.FirmID, periodKey string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make(map[string]bool)
	for _, t := range m.tasks {
		if t.FirmID == firmID && t.PeriodKey == periodKey {
			keys[t.NaturalKey()] = true
		}
	}
	return keys, nil
}

// Tasks returns every stored task in insertion order.
func (m *Memory) Tasks() []engine.GeneratedTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.GeneratedTask(nil), m.tasks...)
}

func (m *Memory) SaveRun(_ context.Context, run engine.GenerationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// ListRuns returns the firm's runs, newest first.
func (m *Memory) ListRuns(_ context.Context, firmID engine.FirmID, limit int) ([]engine.GenerationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.GenerationRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].FirmID != firmID {
			continue
		}
		result = append(result, m.runs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
