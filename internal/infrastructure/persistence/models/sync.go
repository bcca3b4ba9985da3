package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
)

// CounterJSON is the stored form of one entity pass's counters.
type CounterJSON struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// SyncRunModel is the persistence model for one orchestrator run.
type SyncRunModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	EntitySet  []string  `gorm:"type:text;not null;serializer:json"`
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt *time.Time
	Status     string                 `gorm:"type:varchar(20);not null;index"`
	Message    string                 `gorm:"type:text"`
	Counters   map[string]CounterJSON `gorm:"type:text;not null;serializer:json"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun.
func (m *SyncRunModel) ToDomain() *accounting.SyncRun {
	run := &accounting.SyncRun{
		ID:         m.ID,
		EntitySet:  make([]accounting.EntityType, 0, len(m.EntitySet)),
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Status:     accounting.RunStatus(m.Status),
		Message:    m.Message,
		Counters:   make(map[accounting.EntityType]*accounting.EntityCounters, len(m.Counters)),
	}
	for _, e := range m.EntitySet {
		run.EntitySet = append(run.EntitySet, accounting.EntityType(e))
	}
	for e, c := range m.Counters {
		run.Counters[accounting.EntityType(e)] = &accounting.EntityCounters{
			Created: c.Created,
			Updated: c.Updated,
			Skipped: c.Skipped,
			Failed:  c.Failed,
			Error:   c.Error,
		}
	}
	return run
}

// SyncRunModelFromDomain creates a persistence model from a domain SyncRun.
func SyncRunModelFromDomain(run *accounting.SyncRun) *SyncRunModel {
	m := &SyncRunModel{
		ID:         run.ID,
		EntitySet:  make([]string, 0, len(run.EntitySet)),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     run.Status.String(),
		Message:    run.Message,
		Counters:   make(map[string]CounterJSON, len(run.Counters)),
	}
	for _, e := range run.EntitySet {
		m.EntitySet = append(m.EntitySet, e.String())
	}
	for e, c := range run.Counters {
		m.Counters[e.String()] = CounterJSON{
			Created: c.Created,
			Updated: c.Updated,
			Skipped: c.Skipped,
			Failed:  c.Failed,
			Error:   c.Error,
		}
	}
	return m
}

// SyncLogModel is one append-only sync log row. RunID is NULL for pushes
// made outside a run.
type SyncLogModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	RunID       *uuid.UUID `gorm:"type:uuid;index"`
	EntityType  string     `gorm:"type:varchar(20);not null;index"`
	ExternalKey string     `gorm:"type:varchar(100)"`
	LocalID     *uuid.UUID `gorm:"type:uuid"`
	Outcome     string     `gorm:"type:varchar(10);not null"`
	Error       *string    `gorm:"type:text"`
	AttemptedAt time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLogEntry.
func (m *SyncLogModel) ToDomain() accounting.SyncLogEntry {
	e := accounting.SyncLogEntry{
		ID:          m.ID,
		EntityType:  accounting.EntityType(m.EntityType),
		ExternalKey: m.ExternalKey,
		LocalID:     m.LocalID,
		Outcome:     accounting.Outcome(m.Outcome),
		AttemptedAt: m.AttemptedAt,
	}
	if m.RunID != nil {
		e.RunID = *m.RunID
	}
	if m.Error != nil {
		e.Error = *m.Error
	}
	return e
}

// SyncLogModelFromDomain creates a persistence model from a domain SyncLogEntry.
func SyncLogModelFromDomain(e *accounting.SyncLogEntry) *SyncLogModel {
	m := &SyncLogModel{
		ID:          e.ID,
		EntityType:  e.EntityType.String(),
		ExternalKey: e.ExternalKey,
		LocalID:     e.LocalID,
		Outcome:     string(e.Outcome),
		AttemptedAt: e.AttemptedAt,
	}
	if e.RunID != uuid.Nil {
		runID := e.RunID
		m.RunID = &runID
	}
	if e.Error != "" {
		msg := e.Error
		m.Error = &msg
	}
	return m
}

// SyncStateRowID is the primary key of the single sync state row.
const SyncStateRowID = 1

// SyncStateModel is the single "last sync" row.
type SyncStateModel struct {
	ID            int `gorm:"primary_key;autoIncrement:false"`
	LastSyncAt    *time.Time
	LastStatus    string     `gorm:"type:varchar(20)"`
	LastRunID     *uuid.UUID `gorm:"type:uuid"`
	LastMessage   string     `gorm:"type:text"`
	LastSuccessAt *time.Time
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncStateModel) TableName() string {
	return "sync_state"
}

// ToDomain converts the persistence model to a domain SyncState.
func (m *SyncStateModel) ToDomain() *accounting.SyncState {
	return &accounting.SyncState{
		LastSyncAt:    m.LastSyncAt,
		LastStatus:    accounting.RunStatus(m.LastStatus),
		LastRunID:     m.LastRunID,
		LastMessage:   m.LastMessage,
		LastSuccessAt: m.LastSuccessAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// SyncStateModelFromDomain creates the state row from a domain SyncState.
func SyncStateModelFromDomain(s *accounting.SyncState) *SyncStateModel {
	return &SyncStateModel{
		ID:            SyncStateRowID,
		LastSyncAt:    s.LastSyncAt,
		LastStatus:    s.LastStatus.String(),
		LastRunID:     s.LastRunID,
		LastMessage:   s.LastMessage,
		LastSuccessAt: s.LastSuccessAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
