package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchRecord captures one completed search for the recent-history view.
type SearchRecord struct {
	ID           uuid.UUID `json:"id"`
	Query        string    `json:"query"`
	Languages    []string  `json:"languages,omitempty"`
	Translations []string  `json:"translations,omitempty"`
	ResultCount  int       `json:"result_count"`
	QueryTimeMs  int64     `json:"query_time_ms"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recorder persists search records asynchronously. Record must not block the
// search path; a full queue drops the record.
type Recorder interface {
	Record(rec SearchRecord) error
	Recent(ctx context.Context, limit int) ([]SearchRecord, error)
}

// HealthStatus describes the recorder's processing state.
type HealthStatus struct {
	IsRunning      bool      `json:"is_running"`
	QueueSize      int       `json:"queue_size"`
	ProcessedCount int64     `json:"processed_count"`
	ErrorCount     int64     `json:"error_count"`
	LastProcessed  time.Time `json:"last_processed"`
}
