package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meatflow/meatflow/internal/document"
	jobmetrics "github.com/meatflow/meatflow/internal/jobs"
	"github.com/meatflow/meatflow/internal/shared"
)

// DocumentParseJob runs the row parser over uploaded documents off the
// request path.
type DocumentParseJob struct {
	Documents *document.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDocumentParseJob initialises the parse handler.
func NewDocumentParseJob(documents *document.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentParseJob {
	return &DocumentParseJob{Documents: documents, Logger: logger, Metrics: metrics}
}

// Handle executes one parse task.
func (j *DocumentParseJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Documents == nil {
		return errors.New("document parse: handler not configured")
	}
	var payload DocumentParsePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskDocumentParse)
	err := j.Documents.Parse(ctx, payload.DocumentID)
	if errors.Is(err, shared.ErrStaleState) {
		// Duplicate delivery; the document is already parsed.
		j.Logger.Info("document already parsed", slog.Int64("document_id", payload.DocumentID))
		_ = tracker.End(nil)
		return nil
	}
	if err = tracker.End(err); err != nil {
		j.Logger.Error("parse document failed",
			slog.Int64("document_id", payload.DocumentID), slog.Any("error", err))
		return err
	}

	doc, err := j.Documents.Get(ctx, payload.DocumentID)
	if err == nil {
		j.Metrics.AddParsed(string(doc.DocType), len(doc.Lines))
	}
	return nil
}

// InviteExpirer is the slice of the order sheet service the sweep needs.
type InviteExpirer interface {
	ExpireInvites(ctx context.Context, now time.Time) (int, error)
}

// CutoffSweepJob revokes invite tokens past their cutoff and re-enqueues
// documents whose parse task was lost.
type CutoffSweepJob struct {
	Sheets    InviteExpirer
	Documents *document.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewCutoffSweepJob initialises the sweep handler.
func NewCutoffSweepJob(sheets InviteExpirer, documents *document.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CutoffSweepJob {
	return &CutoffSweepJob{
		Sheets:    sheets,
		Documents: documents,
		Logger:    logger,
		Metrics:   metrics,
		clock:     time.Now,
	}
}

// Handle executes one sweep.
func (j *CutoffSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sheets == nil {
		return errors.New("cutoff sweep: handler not configured")
	}

	now := j.clock()
	tracker := j.Metrics.Track(TaskCutoffSweep)

	expired, err := j.Sheets.ExpireInvites(ctx, now)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.AddExpiredInvites(expired)

	if j.Documents != nil {
		requeued, err := j.Documents.ReenqueueUnparsed(ctx, now.Add(-5*time.Minute))
		if err != nil {
			return tracker.End(err)
		}
		if requeued > 0 {
			j.Logger.Info("re-enqueued unparsed documents", slog.Int("count", requeued))
		}
	}
	return tracker.End(nil)
}
