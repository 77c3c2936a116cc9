package models

const (
	BatchSuccess = "success"
	BatchPartial = "partial"
	BatchFailure = "failure"
)

// BatchResult reports per-item outcomes of a batch operation. Status is
// success when every item succeeded, partial when some did and failure
// when none did.
type BatchResult struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
	Status  string   `json:"status"`
}

func NewBatchResult(deleted, failed []string) BatchResult {
	if deleted == nil {
		deleted = []string{}
	}
	if failed == nil {
		failed = []string{}
	}

	status := BatchFailure
	switch {
	case len(deleted) > 0 && len(failed) == 0:
		status = BatchSuccess
	case len(deleted) > 0:
		status = BatchPartial
	}
	return BatchResult{Deleted: deleted, Failed: failed, Status: status}
}
