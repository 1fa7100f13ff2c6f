package pages

import "time"

// EnhancementRecord is the audit entry written for every settled upload
// task.
type EnhancementRecord struct {
	TaskID           string    `json:"taskId"`
	Page             string    `json:"page"`
	Endpoint         string    `json:"endpoint"`
	Scale            int       `json:"scale,omitempty"`
	InputName        string    `json:"inputName,omitempty"`
	InputBytes       int64     `json:"inputBytes"`
	InputResolution  string    `json:"inputResolution,omitempty"`
	OutputBytes      int64     `json:"outputBytes,omitempty"`
	OutputResolution string    `json:"outputResolution,omitempty"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
	ElapsedSeconds   float64   `json:"elapsedSeconds"`
	CreatedAt        time.Time `json:"createdAt"`
}

// HistoryRecorder persists enhancement records. RecordEnhancement must not
// block for long; implementations queue the write.
type HistoryRecorder interface {
	RecordEnhancement(rec EnhancementRecord)
}
