package model

// Student task approval statuses. Rows are created as "submitted" by the
// validation workflow; the distribution processor flips them to "approved"
// once the ledger payment has settled. The reconciler projects over
// "approved" rows only.
const (
	TaskStatusSubmitted = "submitted"
	TaskStatusApproved  = "approved"
)

// StudentTask links a student to a completed task and carries the settlement
// status for it.
type StudentTask struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
}

// ReconcileResult is the derived view of one student: token balance and
// completed-task count recomputed from the approved task rows.
type ReconcileResult struct {
	Balance        string `json:"balance"` // decimal token amount
	CompletedCount int    `json:"completedCount"`
}
