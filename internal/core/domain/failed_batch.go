package domain

// FailedBatch records a batch that exhausted its retry budget, kept for
// operator diagnosis.
type FailedBatch struct {
	ID           string  `json:"id"`
	BlockNumbers []int64 `json:"block_numbers"`
	Attempts     int     `json:"attempts"`
	Error        string  `json:"error_msg"`
	FailedAt     int64   `json:"failed_at"`
}
