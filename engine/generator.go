/*
generator.go - Generation runs against the collaborators

PURPOSE:
  Turns an operator's selection into a persisted task batch.

RUN SEQUENCE:
  1. Validate the period
  2. Resolve the client selection (explicit IDs or all clients)
  3. Load staff; fail fast when nobody is active
  4. Select compliance types for the period (or the single pre-selected code)
  5. Take the firm+period lock, if a Locker is configured
  6. Fetch the relation table once
  7. Build the batch (optionally dropping tasks that already exist)
  8. Submit the batch in one bulk call
  9. Record the run

  Steps 1-4 touch only read collaborators and report input errors before any
  relation fetch or insert. Nothing is retried; a failed bulk insert is
  reported as returned, never rolled back here.

DUPLICATES:
  Re-running a period creates the whole batch again unless SkipExisting is
  set, in which case tasks whose (client, compliance type, period) key is
  already stored are dropped and counted in Summary.Duplicates.
*/
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GenerateRequest is the operator's selection for one run.
type GenerateRequest struct {
	FirmID         FirmID
	Period         Period
	ClientIDs      []ClientID // nil = all clients of the firm; empty = none selected
	ComplianceCode string     // empty = every type matching the period
	AssignedBy     string     // acting user, stamped on every task
	SkipExisting   bool
}

// Result is returned for successful runs and previews.
type Result struct {
	RunID string
	Batch *Batch
}

// Generator wires the batch builder to its collaborators.
type Generator struct {
	Compliance ComplianceStore
	Rosters    RosterStore
	Relations  RelationStore
	Tasks      TaskStore
	Runs       RunLog // optional
	Locker     Locker // optional
	Builder    *BatchBuilder
	Logger     logrus.FieldLogger
}

// Generate builds and persists the batch for req.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	return g.run(ctx, req, true)
}

// Preview builds the batch for req without persisting it or recording a run.
func (g *Generator) Preview(ctx context.Context, req GenerateRequest) (*Result, error) {
	return g.run(ctx, req, false)
}

func (g *Generator) run(ctx context.Context, req GenerateRequest, persist bool) (*Result, error) {
	log := g.logger().WithFields(logrus.Fields{
		"module":  "generator",
		"firm_id": req.FirmID,
		"period":  req.Period.Key(),
	})

	if err := req.Period.Validate(); err != nil {
		return nil, err
	}

	clients, err := g.selectClients(ctx, log, req)
	if err != nil {
		return nil, err
	}

	staff, err := g.Rosters.ListStaff(ctx, req.FirmID)
	if err != nil {
		return nil, g.collaboratorFailure(log, "list staff", err)
	}
	if len(ActiveStaff(staff)) == 0 {
		return nil, ErrNoActiveStaff
	}

	calendar, err := g.Compliance.ListComplianceTypes(ctx, req.FirmID)
	if err != nil {
		return nil, g.collaboratorFailure(log, "list compliance types", err)
	}
	types, err := SelectComplianceTypes(calendar, req.Period, req.ComplianceCode)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, ErrNoComplianceTypes
	}

	if persist && g.Locker != nil {
		unlock, err := g.Locker.Lock(ctx, lockKey(req))
		if err != nil {
			if !errors.Is(err, ErrGenerationInProgress) {
				err = g.collaboratorFailure(log, "acquire lock", err)
			}
			return nil, err
		}
		defer unlock()
	}

	relations, err := g.Relations.GetClientStaffRelations(ctx, req.FirmID)
	if err != nil {
		return nil, g.collaboratorFailure(log, "fetch relations", err)
	}

	batch, err := g.builder().Build(BuildInput{
		FirmID:          req.FirmID,
		Clients:         clients,
		ComplianceTypes: types,
		Period:          req.Period,
		Relations:       relations,
		Staff:           staff,
		AssignedBy:      req.AssignedBy,
	})
	if err != nil {
		return nil, err
	}

	if req.SkipExisting {
		existing, err := g.Tasks.ExistingTaskKeys(ctx, req.FirmID, req.Period.Key())
		if err != nil {
			return nil, g.collaboratorFailure(log, "load existing tasks", err)
		}
		batch.DropExisting(existing)
	}

	result := &Result{Batch: batch}
	if !persist {
		return result, nil
	}

	run := GenerationRun{
		ID:          uuid.NewString(),
		FirmID:      req.FirmID,
		PeriodKey:   req.Period.Key(),
		PeriodLabel: req.Period.Label(),
		Code:        req.ComplianceCode,
		AssignedBy:  req.AssignedBy,
		Total:       batch.Summary.Total,
		Defined:     batch.Summary.Defined,
		Random:      batch.Summary.Random,
		Skipped:     batch.Summary.Skipped,
		Duplicates:  batch.Summary.Duplicates,
		Status:      RunSucceeded,
		CreatedAt:   time.Now().UTC(),
	}
	result.RunID = run.ID

	if len(batch.Tasks) > 0 {
		if err := g.Tasks.CreateBulkTasks(ctx, batch.Tasks); err != nil {
			run.Status = RunFailed
			run.Error = err.Error()
			g.recordRun(ctx, log, run)
			return nil, g.collaboratorFailure(log, "create tasks", err)
		}
	}
	g.recordRun(ctx, log, run)

	log.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"total":      run.Total,
		"defined":    run.Defined,
		"random":     run.Random,
		"skipped":    run.Skipped,
		"duplicates": run.Duplicates,
	}).Info("tasks generated")
	return result, nil
}

func (g *Generator) selectClients(ctx context.Context, log logrus.FieldLogger, req GenerateRequest) ([]Client, error) {
	var (
		clients []Client
		err     error
	)
	switch {
	case req.ClientIDs == nil:
		clients, err = g.Rosters.ListClients(ctx, req.FirmID)
		if err != nil {
			return nil, g.collaboratorFailure(log, "list clients", err)
		}
	case len(req.ClientIDs) > 0:
		clients, err = g.Rosters.GetClients(ctx, req.FirmID, uniqueClientIDs(req.ClientIDs))
		if err != nil {
			if errors.Is(err, ErrClientNotFound) {
				return nil, err
			}
			return nil, g.collaboratorFailure(log, "get clients", err)
		}
	}
	if len(clients) == 0 {
		return nil, ErrNoClientsSelected
	}
	return clients, nil
}

// uniqueClientIDs drops repeated IDs, keeping first-seen order.
func uniqueClientIDs(ids []ClientID) []ClientID {
	seen := make(map[ClientID]bool, len(ids))
	out := make([]ClientID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (g *Generator) recordRun(ctx context.Context, log logrus.FieldLogger, run GenerationRun) {
	if g.Runs == nil {
		return
	}
	if err := g.Runs.SaveRun(ctx, run); err != nil {
		log.WithError(err).WithField("run_id", run.ID).Warn("failed to record generation run")
	}
}

func (g *Generator) collaboratorFailure(log logrus.FieldLogger, op string, err error) error {
	log.WithError(err).WithField("op", op).Error("collaborator call failed")
	return &CollaboratorError{Op: op, Err: err}
}

func (g *Generator) builder() *BatchBuilder {
	if g.Builder == nil {
		return &BatchBuilder{}
	}
	return g.Builder
}

func (g *Generator) logger() logrus.FieldLogger {
	if g.Logger == nil {
		return logrus.StandardLogger()
	}
	return g.Logger
}

func lockKey(req GenerateRequest) string {
	return "generate:" + string(req.FirmID) + ":" + req.Period.Key()
}
