package pages

import (
	"time"

	"srdash/artifacts"
	"srdash/simulation"
)

// TaskStatus is the lifecycle of an UploadTask. A task leaves pending
// exactly once.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskResolved  TaskStatus = "resolved"
	TaskRejected  TaskStatus = "rejected"
	TaskDiscarded TaskStatus = "discarded"
)

// UploadTask is one real backend request.
type UploadTask struct {
	ID        string     `json:"id"`
	Endpoint  string     `json:"endpoint"`
	Scale     int        `json:"scale,omitempty"`
	InputName string     `json:"inputName,omitempty"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	// ScaleEcho and ElapsedSeconds are set once resolved.
	ScaleEcho      int       `json:"scaleEcho,omitempty"`
	ElapsedSeconds float64   `json:"elapsedSeconds,omitempty"`
	OutputID       string    `json:"outputId,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt,omitempty"`
}

// UploadMetrics is the before/after panel of a resolved task.
type UploadMetrics struct {
	ScaleFactor      int     `json:"scaleFactor"`
	TimeSeconds      float64 `json:"timeSeconds"`
	ResolutionBefore string  `json:"resolutionBefore"`
	ResolutionAfter  string  `json:"resolutionAfter"`
}

// Processing steps shown while an upload task is pending.
var StepLabels = []string{
	"Uploading image",
	"Running model…",
	"Preparing output (30–60 s on CPU)",
}

// State is a point-in-time view of a page.
type State struct {
	Name  Name   `json:"name"`
	Title string `json:"title"`

	Simulation *simulation.Snapshot `json:"simulation,omitempty"`

	Input  *artifacts.Artifact `json:"input,omitempty"`
	Output *artifacts.Artifact `json:"output,omitempty"`
	Task   *UploadTask         `json:"task,omitempty"`

	Processing bool   `json:"processing"`
	Step       int    `json:"step"`
	StepLabel  string `json:"stepLabel,omitempty"`
	// Error is the inline message of the last rejected upload or task.
	Error   string         `json:"error,omitempty"`
	Metrics *UploadMetrics `json:"metrics,omitempty"`

	LogCount int `json:"logCount"`
}
