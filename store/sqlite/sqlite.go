/*
Package sqlite provides a SQLite-backed implementation of the engine collaborators.

PURPOSE:
  Implements every persistence interface the generation engine reads from or
  writes to, plus the roster/calendar management the API exposes.

INTERFACES IMPLEMENTED:
  engine.ComplianceStore: Compliance calendar
  engine.RosterStore:     Clients and staff
  engine.RelationStore:   Client -> default staff
  engine.TaskStore:       Bulk task creation
  engine.RunLog:          Generation run history

KEY TABLES:
  compliance_types:        Firm and global (firm_id = '') calendar entries
  clients:                 Clients with their declared work types (JSON)
  staff:                   Staff roster with an active flag
  client_staff_relations:  At most one default staff per client (client_id PK)
  tasks:                   Generated tasks
  generation_runs:         Audit trail of generation runs

DUPLICATES:
  tasks has no unique constraint on (client, compliance type, period).
  Generating the same period twice stores two batches; callers that want
  top-up semantics check ExistingTaskKeys first.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection so every query sees the same database.

USAGE:
  store, err := sqlite.New("./data/practice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledgerly/practice-engine/engine"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// ErrConflict is returned when a write collides with an existing row.
var ErrConflict = errors.New("record already exists")

// runTimeLayout is fixed width so run timestamps sort correctly as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time checks
var (
	_ engine.ComplianceStore = (*Store)(nil)
	_ engine.RosterStore     = (*Store)(nil)
	_ engine.RelationStore   = (*Store)(nil)
	_ engine.TaskStore       = (*Store)(nil)
	_ engine.RunLog          = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Compliance calendar (firm_id = '' for global entries)
	CREATE TABLE IF NOT EXISTS compliance_types (
		id TEXT PRIMARY KEY,
		firm_id TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL,
		due_day INTEGER NOT NULL DEFAULT 0,
		fee TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_compliance_types_firm_code
		ON compliance_types(firm_id, code);

	-- Clients
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		firm_id TEXT NOT NULL,
		name TEXT NOT NULL,
		work_types_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_firm
		ON clients(firm_id);

	-- Staff
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		firm_id TEXT NOT NULL,
		user_id TEXT,
		name TEXT NOT NULL,
		role TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staff_firm_active
		ON staff(firm_id, is_active);

	-- Default assignee per client
	CREATE TABLE IF NOT EXISTS client_staff_relations (
		client_id TEXT PRIMARY KEY,
		firm_id TEXT NOT NULL,
		staff_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relations_firm
		ON client_staff_relations(firm_id);

	-- Generated tasks (no uniqueness on client/compliance/period)
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		firm_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		staff_id TEXT NOT NULL,
		compliance_type_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		period TEXT NOT NULL,
		period_key TEXT NOT NULL,
		assigned_by TEXT,
		assignment TEXT,
		fee TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_firm_period
		ON tasks(firm_id, period_key);
	CREATE INDEX IF NOT EXISTS idx_tasks_staff
		ON tasks(staff_id, due_date);
	CREATE INDEX IF NOT EXISTS idx_tasks_client
		ON tasks(client_id);

	-- Generation runs
	CREATE TABLE IF NOT EXISTS generation_runs (
		id TEXT PRIMARY KEY,
		firm_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		period_label TEXT NOT NULL,
		code TEXT,
		assigned_by TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		defined INTEGER NOT NULL DEFAULT 0,
		random INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_firm_created
		ON generation_runs(firm_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// COMPLIANCE CALENDAR (engine.ComplianceStore interface)
// =============================================================================

// SaveComplianceType inserts or updates a calendar entry.
func (s *Store) SaveComplianceType(ctx context.Context, ct engine.ComplianceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveComplianceType(ctx, s.db, ct)
}

// SaveComplianceTypes stores a whole calendar atomically.
func (s *Store) SaveComplianceTypes(ctx context.Context, types []engine.ComplianceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, ct := range types {
		if err := s.saveComplianceType(ctx, sqlTx, ct); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) saveComplianceType(ctx context.Context, db execer, ct engine.ComplianceType) error {
	query := `
		INSERT INTO compliance_types
		(id, firm_id, code, name, category, frequency, due_day, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category = excluded.category,
			frequency = excluded.frequency,
			due_day = excluded.due_day,
			fee = excluded.fee
		WHERE compliance_types.firm_id = excluded.firm_id
	`

	res, err := db.ExecContext(ctx, query,
		ct.ID, ct.FirmID, ct.Code, ct.Name, ct.Category, ct.Frequency, ct.DueDay,
		ct.Fee.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: compliance code %s already exists", ErrConflict, ct.Code)
		}
		return fmt.Errorf("failed to save compliance type: %w", err)
	}
	return checkUpserted(res, "compliance type", string(ct.ID))
}

// ListComplianceTypes returns the firm's entries plus the global ones it does
// not shadow, ordered by frequency then code.
func (s *Store) ListComplianceTypes(ctx context.Context, firmID engine.FirmID) ([]engine.ComplianceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, firm_id, code, name, category, frequency, due_day, fee
		FROM compliance_types
		WHERE firm_id = ? OR firm_id = ''
		ORDER BY code, firm_id DESC
	`, firmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query compliance types: %w", err)
	}
	defer rows.Close()

	var (
		types []engine.ComplianceType
		seen  = make(map[string]bool)
	)
	for rows.Next() {
		var (
			ct  engine.ComplianceType
			fee string
		)
		if err := rows.Scan(&ct.ID, &ct.FirmID, &ct.Code, &ct.Name, &ct.Category, &ct.Frequency, &ct.DueDay, &fee); err != nil {
			return nil, fmt.Errorf("failed to scan compliance type: %w", err)
		}
		// A firm entry shadows the global entry with the same code.
		if seen[ct.Code] {
			continue
		}
		seen[ct.Code] = true
		ct.Fee = parseDecimal(fee)
		types = append(types, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(types, func(i, j int) bool {
		if types[i].Frequency != types[j].Frequency {
			return types[i].Frequency < types[j].Frequency
		}
		return types[i].Code < types[j].Code
	})
	return types, nil
}

// DeleteComplianceType removes a firm's calendar entry.
func (s *Store) DeleteComplianceType(ctx context.Context, firmID engine.FirmID, id engine.ComplianceTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM compliance_types WHERE id = ? AND firm_id = ?", id, firmID)
	return err
}

// =============================================================================
// CLIENTS (engine.RosterStore interface)
// =============================================================================

// SaveClient inserts or updates a client.
func (s *Store) SaveClient(ctx context.Context, c engine.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workTypes := c.WorkTypes
	if workTypes == nil {
		workTypes = []string{}
	}
	workTypesJSON, _ := json.Marshal(workTypes)

	query := `
		INSERT INTO clients (id, firm_id, name, work_types_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			work_types_json = excluded.work_types_json
		WHERE clients.firm_id = excluded.firm_id
	`

	res, err := s.db.ExecContext(ctx, query,
		c.ID, c.FirmID, c.Name, string(workTypesJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return checkUpserted(res, "client", string(c.ID))
}

// GetClient retrieves a client by ID. Returns nil if not found.
func (s *Store) GetClient(ctx context.Context, firmID engine.FirmID, id engine.ClientID) (*engine.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients, err := s.queryClients(ctx,
		"SELECT id, firm_id, name, work_types_json, created_at FROM clients WHERE firm_id = ? AND id = ?",
		firmID, id)
	if err != nil || len(clients) == 0 {
		return nil, err
	}
	return &clients[0], nil
}

// ListClients returns all clients of a firm ordered by name.
func (s *Store) ListClients(ctx context.Context, firmID engine.FirmID) ([]engine.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClients(ctx,
		"SELECT id, firm_id, name, work_types_json, created_at FROM clients WHERE firm_id = ? ORDER BY name, id",
		firmID)
}

// GetClients returns the requested clients in request order.
func (s *Store) GetClients(ctx context.Context, firmID engine.FirmID, ids []engine.ClientID) ([]engine.Client, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, 0, len(ids)+1)
	args = append(args, firmID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := "SELECT id, firm_id, name, work_types_json, created_at FROM clients WHERE firm_id = ? AND id IN (" +
		placeholders(len(ids)) + ")"

	found, err := s.queryClients(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[engine.ClientID]engine.Client, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	clients := make([]engine.Client, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func (s *Store) queryClients(ctx context.Context, query string, args ...any) ([]engine.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []engine.Client
	for rows.Next() {
		var (
			c             engine.Client
			workTypesJSON string
			createdAt     string
		)
		if err := rows.Scan(&c.ID, &c.FirmID, &c.Name, &workTypesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		if err := json.Unmarshal([]byte(workTypesJSON), &c.WorkTypes); err != nil {
			return nil, fmt.Errorf("client %s has malformed work types: %w", c.ID, err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client and its default staff relation.
func (s *Store) DeleteClient(ctx context.Context, firmID engine.FirmID, id engine.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_staff_relations WHERE client_id = ? AND firm_id = ?", id, firmID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ? AND firm_id = ?", id, firmID)
	return err
}

// =============================================================================
// STAFF (engine.RosterStore interface)
// =============================================================================

// SaveStaff inserts or updates a staff member.
func (s *Store) SaveStaff(ctx context.Context, st engine.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO staff (id, firm_id, user_id, name, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			role = excluded.role,
			is_active = excluded.is_active
		WHERE staff.firm_id = excluded.firm_id
	`

	res, err := s.db.ExecContext(ctx, query,
		st.ID, st.FirmID, nullString(st.UserID), st.Name, nullString(st.Role), st.IsActive,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save staff: %w", err)
	}
	return checkUpserted(res, "staff", string(st.ID))
}

// GetStaff retrieves a staff member by ID. Returns nil if not found.
func (s *Store) GetStaff(ctx context.Context, firmID engine.FirmID, id engine.StaffID) (*engine.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff, err := s.queryStaff(ctx,
		"SELECT id, firm_id, user_id, name, role, is_active, created_at FROM staff WHERE firm_id = ? AND id = ?",
		firmID, id)
	if err != nil || len(staff) == 0 {
		return nil, err
	}
	return &staff[0], nil
}

// ListStaff returns the firm's whole roster, active or not.
func (s *Store) ListStaff(ctx context.Context, firmID engine.FirmID) ([]engine.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStaff(ctx,
		"SELECT id, firm_id, user_id, name, role, is_active, created_at FROM staff WHERE firm_id = ? ORDER BY name, id",
		firmID)
}

// SetStaffActive flips a staff member's active flag.
func (s *Store) SetStaffActive(ctx context.Context, firmID engine.FirmID, id engine.StaffID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE staff SET is_active = ? WHERE id = ? AND firm_id = ?", active, id, firmID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrStaffNotFound, id)
	}
	return nil
}

func (s *Store) queryStaff(ctx context.Context, query string, args ...any) ([]engine.Staff, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var staff []engine.Staff
	for rows.Next() {
		var (
			st        engine.Staff
			userID    sql.NullString
			role      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&st.ID, &st.FirmID, &userID, &st.Name, &role, &st.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		st.UserID = userID.String
		st.Role = role.String
		st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		staff = append(staff, st)
	}
	return staff, rows.Err()
}

// =============================================================================
// CLIENT-STAFF RELATIONS (engine.RelationStore interface)
// =============================================================================

// SaveRelation sets the client's default staff member, replacing any
// previous one.
func (s *Store) SaveRelation(ctx context.Context, firmID engine.FirmID, rel engine.ClientStaffRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO client_staff_relations (client_id, firm_id, staff_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			staff_id = excluded.staff_id
	`

	_, err := s.db.ExecContext(ctx, query,
		rel.ClientID, firmID, rel.StaffID,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteRelation removes the client's default staff member.
func (s *Store) DeleteRelation(ctx context.Context, firmID engine.FirmID, clientID engine.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM client_staff_relations WHERE client_id = ? AND firm_id = ?", clientID, firmID)
	return err
}

// GetClientStaffRelations returns the firm's relation table.
func (s *Store) GetClientStaffRelations(ctx context.Context, firmID engine.FirmID) ([]engine.ClientStaffRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT client_id, staff_id FROM client_staff_relations WHERE firm_id = ? ORDER BY client_id",
		firmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var relations []engine.ClientStaffRelation
	for rows.Next() {
		var rel engine.ClientStaffRelation
		if err := rows.Scan(&rel.ClientID, &rel.StaffID); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

// =============================================================================
// TASKS (engine.TaskStore interface)
// =============================================================================

// CreateBulkTasks inserts a batch in one database transaction.
func (s *Store) CreateBulkTasks(ctx context.Context, tasks []engine.GeneratedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx, `
		INSERT INTO tasks
		(id, firm_id, client_id, staff_id, compliance_type_id, title, description, due_date,
		 status, priority, period, period_key, assigned_by, assignment, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare task insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.FirmID, t.ClientID, t.StaffID, t.ComplianceTypeID,
			t.Title, t.Description, t.DueDate.String(),
			t.Status, t.Priority, t.Period, t.PeriodKey,
			nullString(t.AssignedBy), nullString(string(t.Assignment)),
			t.Fee.String(),
			createdAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: task id %s", ErrConflict, t.ID)
			}
			return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
		}
	}

	return sqlTx.Commit()
}

// ExistingTaskKeys returns the natural keys stored for a firm and period.
func (s *Store) ExistingTaskKeys(ctx context.Context, firmID engine.FirmID, periodKey string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT client_id, compliance_type_id FROM tasks WHERE firm_id = ? AND period_key = ?",
		firmID, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query task keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var (
			clientID engine.ClientID
			ctID     engine.ComplianceTypeID
		)
		if err := rows.Scan(&clientID, &ctID); err != nil {
			return nil, err
		}
		keys[engine.TaskKey(clientID, ctID, periodKey)] = true
	}
	return keys, rows.Err()
}

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	PeriodKey string
	ClientID  engine.ClientID
	StaffID   engine.StaffID
	Limit     int
}

// ListTasks returns the firm's tasks ordered by due date.
func (s *Store) ListTasks(ctx context.Context, firmID engine.FirmID, f TaskFilter) ([]engine.GeneratedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, firm_id, client_id, staff_id, compliance_type_id, title, description, due_date,
		       status, priority, period, period_key, assigned_by, assignment, fee, created_at
		FROM tasks
		WHERE firm_id = ?`
	args := []any{firmID}
	if f.PeriodKey != "" {
		query += " AND period_key = ?"
		args = append(args, f.PeriodKey)
	}
	if f.ClientID != "" {
		query += " AND client_id = ?"
		args = append(args, f.ClientID)
	}
	if f.StaffID != "" {
		query += " AND staff_id = ?"
		args = append(args, f.StaffID)
	}
	query += " ORDER BY due_date, client_id, title"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []engine.GeneratedTask
	for rows.Next() {
		var (
			t           engine.GeneratedTask
			description sql.NullString
			dueDate     string
			assignedBy  sql.NullString
			assignment  sql.NullString
			fee         string
			createdAt   string
		)
		err := rows.Scan(
			&t.ID, &t.FirmID, &t.ClientID, &t.StaffID, &t.ComplianceTypeID,
			&t.Title, &description, &dueDate, &t.Status, &t.Priority,
			&t.Period, &t.PeriodKey, &assignedBy, &assignment, &fee, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Description = description.String
		t.DueDate, _ = engine.ParseDate(dueDate)
		t.AssignedBy = assignedBy.String
		t.Assignment = engine.AssignmentKind(assignment.String)
		t.Fee = parseDecimal(fee)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// =============================================================================
// GENERATION RUNS (engine.RunLog interface)
// =============================================================================

// SaveRun records a generation run.
func (s *Store) SaveRun(ctx context.Context, r engine.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO generation_runs
		(id, firm_id, period_key, period_label, code, assigned_by,
		 total, defined, random, skipped, duplicates, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.FirmID, r.PeriodKey, r.PeriodLabel, nullString(r.Code), nullString(r.AssignedBy),
		r.Total, r.Defined, r.Random, r.Skipped, r.Duplicates, r.Status, nullString(r.Error),
		createdAt.UTC().Format(runTimeLayout),
	)
	return err
}

// ListRuns returns the firm's runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, firmID engine.FirmID, limit int) ([]engine.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, firm_id, period_key, period_label, code, assigned_by,
		       total, defined, random, skipped, duplicates, status, error, created_at
		FROM generation_runs
		WHERE firm_id = ?
		ORDER BY created_at DESC`
	args := []any{firmID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []engine.GenerationRun
	for rows.Next() {
		var (
			r          engine.GenerationRun
			code       sql.NullString
			assignedBy sql.NullString
			errMsg     sql.NullString
			createdAt  string
		)
		err := rows.Scan(
			&r.ID, &r.FirmID, &r.PeriodKey, &r.PeriodLabel, &code, &assignedBy,
			&r.Total, &r.Defined, &r.Random, &r.Skipped, &r.Duplicates, &r.Status, &errMsg, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Code = code.String
		r.AssignedBy = assignedBy.String
		r.Error = errMsg.String
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"tasks", "generation_runs", "client_staff_relations", "clients", "staff", "compliance_types"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

// checkUpserted reports ErrConflict when an upsert matched a row owned by
// another firm, which leaves the row untouched.
func checkUpserted(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s belongs to another firm", ErrConflict, kind, id)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
