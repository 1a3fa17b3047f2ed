package model

import "time"

// RunStatus is the ledger state of an extract run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ExtractRun is one ledger entry describing an extract invocation.
type ExtractRun struct {
	ID          string     `json:"id"`
	Market      string     `json:"market"`
	ExtractName string     `json:"extract_name"`
	ClassID     string     `json:"class_id"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Filename    string     `json:"filename"`
	Status      RunStatus  `json:"status"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []string   `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
