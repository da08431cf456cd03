package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentParse parses an uploaded document's raw grid.
	TaskDocumentParse = "document:parse"
	// TaskCutoffSweep expires stale invite tokens and retries lost parses.
	TaskCutoffSweep = "ordersheet:cutoff"
)

// DocumentParsePayload identifies the document to parse.
type DocumentParsePayload struct {
	DocumentID int64 `json:"document_id"`
}

// NewDocumentParseTask constructs an Asynq task.
func NewDocumentParseTask(payload DocumentParsePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentParse, data), nil
}

// NewCutoffSweepTask constructs the periodic sweep task. It carries no
// payload; the sweep always works from the current clock.
func NewCutoffSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCutoffSweep, nil)
}
