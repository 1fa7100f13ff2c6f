package simulation

// Snapshot is a point-in-time copy of a scheduler's state.
type Snapshot struct {
	Pipeline   string `json:"pipeline"`
	RunID      string `json:"runId,omitempty"`
	Status     Status `json:"status"`
	StatusText string `json:"statusText"`
	Epoch      int    `json:"epoch"`
	// ActiveStage is empty when no stage is active. A paused run keeps
	// the stage it stopped on.
	ActiveStage   string `json:"activeStage,omitempty"`
	StageIndex    int    `json:"stageIndex"`
	SubStageIndex int    `json:"subStageIndex"`
	SubStage      string `json:"subStage,omitempty"`

	Current       Values        `json:"current"`
	RealnessScore float64       `json:"realnessScore"`
	Final         *FinalMetrics `json:"final,omitempty"`

	LogCount      int `json:"logCount"`
	PointCount    int `json:"pointCount"`
	PendingTimers int `json:"pendingTimers"`
	// Advances counts stage activations over the scheduler's lifetime.
	Advances uint64 `json:"advances"`
	// StaleCallbacks counts callbacks that fired after their run was
	// paused, reset or superseded and were ignored.
	StaleCallbacks uint64 `json:"staleCallbacks"`
	// Version increases with every change; consumers drop older snapshots.
	Version uint64 `json:"version"`
}

func (s *Scheduler) snapshotLocked() Snapshot {
	snap := Snapshot{
		Pipeline:       s.pipeline.Name,
		RunID:          s.runID,
		Status:         s.status,
		StatusText:     s.statusTextLocked(),
		Epoch:          s.epoch,
		StageIndex:     s.stageIndex,
		SubStageIndex:  s.subStage,
		Current:        s.current,
		RealnessScore:  s.score,
		LogCount:       s.logs.Len(),
		PointCount:     s.metrics.Generator.Len(),
		PendingTimers:  len(s.timers),
		Advances:       s.advances,
		StaleCallbacks: s.stale,
		Version:        s.version,
	}
	if s.stageIndex >= 0 {
		st := s.pipeline.Stages[s.stageIndex]
		snap.ActiveStage = st.ID
		if s.subStage >= 0 && s.subStage < len(st.SubStages) {
			snap.SubStage = st.SubStages[s.subStage]
		}
	}
	if s.final != nil {
		f := *s.final
		snap.Final = &f
	}
	return snap
}

func (s *Scheduler) statusTextLocked() string {
	switch s.status {
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Complete"
	case StatusRunning:
		if s.stageIndex >= 0 {
			return s.pipeline.Stages[s.stageIndex].Status
		}
		return "Running"
	default:
		return ""
	}
}
