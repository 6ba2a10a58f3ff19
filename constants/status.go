package constants

// ValidationStatus is the per-field verdict of the validator.
type ValidationStatus string

// Stable values (exported as-is in CSV/XLSX and the SQL sink).
const (
	StatusValid   ValidationStatus = "VALID"
	StatusInvalid ValidationStatus = "INVALID"
	StatusUnknown ValidationStatus = "UNKNOWN" // not validated, or optional and absent
)

// Tier is an ordered confidence level assigned by the validator.
type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// OutcomeStatus is the terminal state of one document in a batch.
type OutcomeStatus string

const (
	OutcomeExtracted OutcomeStatus = "EXTRACTED" // record produced (possibly low trust)
	OutcomeFailed    OutcomeStatus = "FAILED"    // no strategy produced text
	OutcomeCancelled OutcomeStatus = "CANCELLED" // caller abandoned the batch
)

// JobStatus tracks a document submitted to the daemon's background queue.
type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)
