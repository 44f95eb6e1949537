package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/knowledge"
	"github.com/loretree/loretree/pkg/noteid"
)

// Receipt is the audit record appended for every processed event. Receipts
// are JSON lines inside a daily markdown file, one file per UTC day.
type Receipt struct {
	ReceiptID      string        `json:"receipt_id"`
	EventID        string        `json:"event_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Classification string        `json:"classification"`
	Confidence     float64       `json:"confidence"`
	Summary        string        `json:"summary,omitempty"`
	CommitID       string        `json:"commit_id,omitempty"`
	FilesModified  []string      `json:"files_modified,omitempty"`
	Steps          []StepOutcome `json:"steps"`
}

type StepOutcome struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// ReceiptWriter appends receipts through the knowledge store, so receipt
// commits get the same conflict-retry behavior as note commits.
type ReceiptWriter struct {
	store  *knowledge.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewReceiptWriter(store *knowledge.Store, logger *zap.Logger) *ReceiptWriter {
	return &ReceiptWriter{
		store:  store,
		logger: logger.Named("receipt"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append stamps the receipt with an id and timestamp and appends it to the
// current day's receipt file. It returns the receipt commit id.
func (w *ReceiptWriter) Append(ctx context.Context, r Receipt) (string, error) {
	r.ReceiptID = noteid.NewReceiptID()
	r.Timestamp = w.now()

	line, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}

	path := knowledge.ReceiptPath(r.Timestamp)
	result, err := w.store.AppendToFile(ctx, path, string(line), fmt.Sprintf("Append receipt for %s", r.EventID))
	if err != nil {
		return "", fmt.Errorf("append receipt: %w", err)
	}

	w.logger.Info("receipt_appended",
		zap.String("event_id", r.EventID),
		zap.String("receipt_id", r.ReceiptID),
		zap.String("commit_id", result.CommitID),
	)
	return result.CommitID, nil
}
