package state

// RecordState is the persisted last-known state for one managed record.
// Only the scheduler mutates it, after an outcome is produced.
type RecordState struct {
	IP           string `json:"ip"` // last successfully applied address
	LastAttempt  int64  `json:"lastAttempt"`
	BackoffLevel int    `json:"backoffLevel"`
}
