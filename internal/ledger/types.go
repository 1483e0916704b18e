package ledger

import (
	"context"
	"time"

	"github.com/mvp-joe/project-codex/internal/model"
)

// ChangeRecord is one observed mutation of a resource. Records are immutable
// apart from Processed, which moves from false to true once.
type ChangeRecord struct {
	ID           string             `json:"id"`
	ChangeType   model.ChangeType   `json:"changeType"`
	ResourceType model.ResourceType `json:"resourceType"`
	ResourceID   string             `json:"resourceId"`
	FilePath     string             `json:"filePath"`
	Timestamp    time.Time          `json:"timestamp"`
	Processed    bool               `json:"processed"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

// BatchStatus is the state of a BatchRun.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPending, BatchProcessing, BatchCompleted, BatchFailed:
		return true
	}
	return false
}

// canTransition encodes pending → processing → {completed | failed}.
// Staying in a non-terminal status is allowed so progress can be reported.
func canTransition(from, to BatchStatus) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case BatchPending:
		return to == BatchProcessing
	case BatchProcessing:
		return to == BatchCompleted || to == BatchFailed
	}
	return false
}

// BatchRun is the bookkeeping record of one reindex sweep.
type BatchRun struct {
	ID             string      `json:"id"`
	BatchType      string      `json:"batchType"`
	TotalItems     int         `json:"totalItems"`
	ProcessedItems int         `json:"processedItems"`
	StartTime      time.Time   `json:"startTime"`
	EndTime        *time.Time  `json:"endTime,omitempty"`
	Status         BatchStatus `json:"status"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
}

// DebounceCounter tracks recorded-but-undrained changes for a resource type.
type DebounceCounter struct {
	ResourceType    model.ResourceType `json:"resourceType"`
	LastTriggerTime time.Time          `json:"lastTriggerTime"`
	PendingChanges  int                `json:"pendingChanges"`
}

// Processor applies a batch of pending changes. Returning an error fails the
// batch and leaves every record pending.
type Processor func(ctx context.Context, changes []ChangeRecord) error
