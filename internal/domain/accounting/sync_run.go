package accounting

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sync Types
// ---------------------------------------------------------------------------

// EntityType identifies one reconciliation pass.
type EntityType string

const (
	EntityCustomers   EntityType = "customers"
	EntityInvoices    EntityType = "invoices"
	EntityOrders      EntityType = "orders"
	EntityInvoicePush EntityType = "invoice_push"
)

// IsValid returns true if the entity type is known
func (e EntityType) IsValid() bool {
	switch e {
	case EntityCustomers, EntityInvoices, EntityOrders, EntityInvoicePush:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityType
func (e EntityType) String() string {
	return string(e)
}

// Outcome is the result of reconciling one record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// IsTerminal returns true if the run has been sealed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

// String returns the string representation of RunStatus
func (s RunStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Counters
// ---------------------------------------------------------------------------

// EntityCounters aggregates the outcomes of one entity pass.
type EntityCounters struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	// Error is set when the pass stopped before exhausting the remote listing
	Error string
}

// Record adds one outcome to the counters.
func (c *EntityCounters) Record(o Outcome) {
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Processed returns the number of records reconciled, failed ones included.
func (c *EntityCounters) Processed() int {
	return c.Created + c.Updated + c.Skipped + c.Failed
}

// Aborted reports whether the pass stopped early.
func (c *EntityCounters) Aborted() bool {
	return c.Error != ""
}

// ---------------------------------------------------------------------------
// SyncRun
// ---------------------------------------------------------------------------

// SyncRun records one execution of the orchestrator.
type SyncRun struct {
	// ID is the unique identifier of the run
	ID uuid.UUID
	// EntitySet lists the passes this run covers, in execution order
	EntitySet []EntityType
	// StartedAt is when the run entered running
	StartedAt time.Time
	// FinishedAt is set when the run is sealed
	FinishedAt *time.Time
	// Status is the run status
	Status RunStatus
	// Message explains a failed run
	Message string
	// Counters holds per-entity results, one entry per EntitySet member
	Counters map[EntityType]*EntityCounters
}

// NewSyncRun creates a running sync run for the given passes.
func NewSyncRun(entities ...EntityType) *SyncRun {
	run := &SyncRun{
		ID:        uuid.New(),
		EntitySet: entities,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
		Counters:  make(map[EntityType]*EntityCounters, len(entities)),
	}
	for _, e := range entities {
		run.Counters[e] = &EntityCounters{}
	}
	return run
}

// Counter returns the counters for an entity, creating them if absent.
func (r *SyncRun) Counter(e EntityType) *EntityCounters {
	c, ok := r.Counters[e]
	if !ok {
		c = &EntityCounters{}
		r.Counters[e] = c
	}
	return c
}

// Complete seals the run and derives its status from the counters.
// A run is failed when every pass aborted without reconciling a record,
// partial when any record failed or any pass aborted, success otherwise.
func (r *SyncRun) Complete() {
	aborted, processed, failed := 0, 0, 0
	for _, e := range r.EntitySet {
		c := r.Counter(e)
		if c.Aborted() {
			aborted++
		}
		processed += c.Processed()
		failed += c.Failed
	}

	switch {
	case len(r.EntitySet) > 0 && aborted == len(r.EntitySet) && processed == 0:
		r.Status = RunStatusFailed
		if r.Message == "" {
			r.Message = "all entity passes failed"
		}
	case aborted > 0 || failed > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusSuccess
	}
	r.seal()
}

// Fail seals the run as failed before any pass could proceed.
func (r *SyncRun) Fail(message string) {
	r.Status = RunStatusFailed
	r.Message = message
	r.seal()
}

func (r *SyncRun) seal() {
	now := time.Now()
	r.FinishedAt = &now
}

// TotalFailed returns the number of failed records across all passes.
func (r *SyncRun) TotalFailed() int {
	total := 0
	for _, c := range r.Counters {
		total += c.Failed
	}
	return total
}

// Duration returns how long the run took, or zero while running.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err returns a PartialSyncFailure for partial runs and nil otherwise.
func (r *SyncRun) Err() error {
	if r.Status != RunStatusPartial {
		return nil
	}
	return &PartialSyncFailure{RunID: r.ID.String(), Failed: r.TotalFailed()}
}

// ---------------------------------------------------------------------------
// SyncLogEntry
// ---------------------------------------------------------------------------

// SyncLogEntry is the append-only record of one reconciled record.
type SyncLogEntry struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	EntityType  EntityType
	ExternalKey string
	LocalID     *uuid.UUID
	Outcome     Outcome
	Error       string
	AttemptedAt time.Time
}

// NewSyncLogEntry creates a log entry for one record outcome.
func NewSyncLogEntry(runID uuid.UUID, entity EntityType, externalKey string, localID *uuid.UUID, outcome Outcome, err error) *SyncLogEntry {
	entry := &SyncLogEntry{
		ID:          uuid.New(),
		RunID:       runID,
		EntityType:  entity,
		ExternalKey: externalKey,
		LocalID:     localID,
		Outcome:     outcome,
		AttemptedAt: time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

// ---------------------------------------------------------------------------
// SyncState
// ---------------------------------------------------------------------------

// SyncState is the shared "last sync" snapshot.
type SyncState struct {
	LastSyncAt    *time.Time
	LastStatus    RunStatus
	LastRunID     *uuid.UUID
	LastMessage   string
	LastSuccessAt *time.Time
	UpdatedAt     time.Time
}

// RecordRun updates the snapshot from a sealed run.
func (s *SyncState) RecordRun(run *SyncRun) {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	runID := run.ID
	s.LastSyncAt = &finished
	s.LastStatus = run.Status
	s.LastRunID = &runID
	s.LastMessage = run.Message
	if run.Status == RunStatusSuccess {
		started := run.StartedAt
		s.LastSuccessAt = &started
	}
	s.UpdatedAt = finished
}
