package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/ledgerimport"
)

const (
	// QueueLedger is the queue name for ledger import jobs.
	QueueLedger = "ledger"
	// TaskLedgerImport is the task type for one uploaded export file.
	TaskLedgerImport = "ledger:import"
)

// NewLedgerImportTask builds the asynq task for an import job. Import tasks
// carry MaxRetry(0): blindly re-running a large bulk import risks duplicate
// entries beyond what batch-scoped duplicate detection catches, so recovery
// is the manual retry operation instead.
func NewLedgerImportTask(job ledgerimport.ImportJob) (*asynq.Task, []asynq.Option, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueLedger), asynq.MaxRetry(0)}
	return asynq.NewTask(TaskLedgerImport, data), opts, nil
}
