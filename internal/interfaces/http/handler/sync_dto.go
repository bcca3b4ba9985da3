package handler

import (
	"time"

	"github.com/google/uuid"
	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/infrastructure/cache"
	"github.com/printshop/backend/internal/infrastructure/ratelimit"
)

// TriggerSyncRequest selects which passes a run covers
type TriggerSyncRequest struct {
	Type string `json:"type" binding:"required,oneof=all customers invoices orders pending"`
}

// CounterResponse is one pass's counters
type CounterResponse struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// SyncRunResponse summarises one run
type SyncRunResponse struct {
	ID         string                     `json:"id"`
	EntitySet  []string                   `json:"entity_set"`
	Status     string                     `json:"status"`
	Message    string                     `json:"message,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
	DurationMS int64                      `json:"duration_ms"`
	Failed     int                        `json:"failed"`
	Counters   map[string]CounterResponse `json:"counters"`
}

func toSyncRunResponse(run *accounting.SyncRun) SyncRunResponse {
	resp := SyncRunResponse{
		ID:         run.ID.String(),
		EntitySet:  make([]string, 0, len(run.EntitySet)),
		Status:     run.Status.String(),
		Message:    run.Message,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMS: run.Duration().Milliseconds(),
		Failed:     run.TotalFailed(),
		Counters:   make(map[string]CounterResponse, len(run.Counters)),
	}
	for _, e := range run.EntitySet {
		resp.EntitySet = append(resp.EntitySet, e.String())
	}
	for e, c := range run.Counters {
		resp.Counters[e.String()] = CounterResponse{
			Created: c.Created,
			Updated: c.Updated,
			Skipped: c.Skipped,
			Failed:  c.Failed,
			Error:   c.Error,
		}
	}
	return resp
}

// SyncLogResponse is one sync log entry
type SyncLogResponse struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id,omitempty"`
	EntityType  string    `json:"entity_type"`
	ExternalKey string    `json:"external_key"`
	LocalID     string    `json:"local_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

func toSyncLogResponses(entries []accounting.SyncLogEntry) []SyncLogResponse {
	out := make([]SyncLogResponse, 0, len(entries))
	for _, e := range entries {
		r := SyncLogResponse{
			ID:          e.ID.String(),
			EntityType:  e.EntityType.String(),
			ExternalKey: e.ExternalKey,
			Outcome:     string(e.Outcome),
			Error:       e.Error,
			AttemptedAt: e.AttemptedAt,
		}
		if e.RunID != uuid.Nil {
			r.RunID = e.RunID.String()
		}
		if e.LocalID != nil {
			r.LocalID = e.LocalID.String()
		}
		out = append(out, r)
	}
	return out
}

// SyncStateResponse is the last sync snapshot
type SyncStateResponse struct {
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastStatus    string     `json:"last_status,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// SyncStatusResponse is the GET /sync body
type SyncStatusResponse struct {
	Running    bool              `json:"running"`
	Current    *syncapp.RunInfo  `json:"current,omitempty"`
	State      SyncStateResponse `json:"state"`
	RecentLogs []SyncLogResponse `json:"recent_logs"`
}

func toSyncStatusResponse(s *syncapp.SyncStatus) SyncStatusResponse {
	resp := SyncStatusResponse{
		Running:    s.Running,
		Current:    s.Current,
		RecentLogs: toSyncLogResponses(s.RecentLogs),
	}
	if s.State != nil {
		resp.State = SyncStateResponse{
			LastSyncAt:    s.State.LastSyncAt,
			LastStatus:    s.State.LastStatus.String(),
			LastMessage:   s.State.LastMessage,
			LastSuccessAt: s.State.LastSuccessAt,
		}
		if s.State.LastRunID != nil {
			resp.State.LastRunID = s.State.LastRunID.String()
		}
	}
	return resp
}

// PushResultResponse is the outcome of pushing one invoice
type PushResultResponse struct {
	InvoiceID     string `json:"invoice_id"`
	Success       bool   `json:"success"`
	AlreadySynced bool   `json:"already_synced"`
	DocNumber     string `json:"doc_number,omitempty"`
	Message       string `json:"message,omitempty"`
}

func toPushResultResponse(r *syncapp.PushResult) PushResultResponse {
	return PushResultResponse{
		InvoiceID:     r.InvoiceID.String(),
		Success:       r.Success,
		AlreadySynced: r.AlreadySynced,
		DocNumber:     r.DocNumber,
		Message:       r.Message,
	}
}

// RateLimitActionRequest is the POST /rate-limit body
type RateLimitActionRequest struct {
	Action string `json:"action" binding:"required,oneof=reset"`
}

// RateLimitResponse describes the outbound request budget
type RateLimitResponse struct {
	Limit         int       `json:"limit"`
	Used          int       `json:"used"`
	Remaining     int       `json:"remaining"`
	Denied        int64     `json:"denied"`
	WindowSeconds float64   `json:"window_seconds"`
	ResetAt       time.Time `json:"reset_at"`
}

func toRateLimitResponse(s ratelimit.Stats) RateLimitResponse {
	return RateLimitResponse{
		Limit:         s.Limit,
		Used:          s.Used,
		Remaining:     s.Remaining,
		Denied:        s.Denied,
		WindowSeconds: s.Window.Seconds(),
		ResetAt:       s.ResetAt,
	}
}

// CacheItemResponse describes one cached entry
type CacheItemResponse struct {
	Key                 string  `json:"key"`
	AgeSeconds          float64 `json:"age_seconds"`
	TTLRemainingSeconds float64 `json:"ttl_remaining_seconds"`
}

// CacheStatsResponse describes the local cache
type CacheStatsResponse struct {
	Size        int                 `json:"size"`
	MaxSize     int                 `json:"max_size"`
	Utilization float64             `json:"utilization"`
	Hits        int64               `json:"hits"`
	Misses      int64               `json:"misses"`
	Evictions   int64               `json:"evictions"`
	Items       []CacheItemResponse `json:"items"`
}

func toCacheStatsResponse(s cache.Stats) CacheStatsResponse {
	resp := CacheStatsResponse{
		Size:        s.Size,
		MaxSize:     s.MaxSize,
		Utilization: s.Utilization,
		Hits:        s.Hits,
		Misses:      s.Misses,
		Evictions:   s.Evictions,
		Items:       make([]CacheItemResponse, 0, len(s.Items)),
	}
	for _, it := range s.Items {
		resp.Items = append(resp.Items, CacheItemResponse{
			Key:                 it.Key,
			AgeSeconds:          it.Age.Seconds(),
			TTLRemainingSeconds: it.TTLRemaining.Seconds(),
		})
	}
	return resp
}

// CacheClearResponse reports how many entries were dropped
type CacheClearResponse struct {
	Removed int    `json:"removed"`
	Pattern string `json:"pattern,omitempty"`
}
