package finetuning

// Training data schemas supported for preparation and validation.
const (
	SchemaChat       = "chat"
	SchemaCompletion = "completion"
)

// Job status values reported by the remote fine-tuning service. The
// client never mutates job state locally; these are observed values only.
const (
	JobStatusQueued          = "queued"
	JobStatusValidatingFiles = "validating_files"
	JobStatusRunning         = "running"
	JobStatusSucceeded       = "succeeded"
	JobStatusFailed          = "failed"
	JobStatusCancelled       = "cancelled"
)

// CancellableJobStatuses are the only legal source states for a cancel
// request; the tool layer rejects cancels from any other state up front.
var CancellableJobStatuses = map[string]bool{
	JobStatusQueued:          true,
	JobStatusRunning:         true,
	JobStatusValidatingFiles: true,
}

// ValidationResult reports the line-by-line validation of a training
// data file. Valid is true exactly when FormatErrors is zero.
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	FilePath     string   `json:"file_path,omitempty"`
	LineCount    int      `json:"line_count"`
	FormatErrors int      `json:"format_errors"`
	Issues       []string `json:"issues"`
	Error        string   `json:"error,omitempty"`
}

// StartJobParams carries the caller-facing parameters for starting a
// fine-tuning job through a provider.
type StartJobParams struct {
	TrainingFileID   string
	Model            string
	ValidationFileID string
	Hyperparameters  map[string]any
	Suffix           string
}
