package simulation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Errors returned by illegal transitions.
var (
	ErrAlreadyRunning    = errors.New("simulation already running")
	ErrNotRunning        = errors.New("simulation not running")
	ErrNotPaused         = errors.New("simulation not paused")
	ErrResumeUnsupported = errors.New("pipeline does not support resume")
	ErrClosed            = errors.New("scheduler closed")
)

// NoResolution is reported when no output image is known.
const NoResolution = "—"

// FinalMetrics summarizes a completed run.
type FinalMetrics struct {
	ProcessingTimeSeconds float64 `json:"processingTimeSeconds"`
	ScaleFactor           int     `json:"scaleFactor,omitempty"`
	OutputResolution      string  `json:"outputResolution"`
	Epochs                int     `json:"epochs,omitempty"`
}

// Options configures a Scheduler. Every field is optional.
type Options struct {
	Clock   Clock
	Sampler Sampler
	// IDs numbers log entries. Sharing one generator between schedulers
	// keeps ids unique across them.
	IDs    IDGenerator
	RunIDs func() string
	Logger *zap.Logger
	// OnChange receives a snapshot after every state change. It is called
	// outside the scheduler lock, possibly from a timer goroutine, and must
	// not block for long.
	OnChange func(Snapshot)
}

// Scheduler runs one Pipeline as a state machine driven by delayed
// callbacks.
//
// All mutations happen under one mutex. Every callback is bound to the run
// token current when it was scheduled; Pause, Resume, Reset and Start mint a
// new token and stop all pending timers, so a callback that fires late finds
// a stale token and does nothing.
type Scheduler struct {
	mu       sync.Mutex
	pipeline *Pipeline
	clock    Clock
	gen      *Generator
	logs     *LogStream
	metrics  MetricSet
	runIDs   func() string
	logger   *zap.Logger
	onChange func(Snapshot)

	status     Status
	epoch      int
	stageIndex int
	subStage   int
	current    Values
	score      float64
	resolution string
	final      *FinalMetrics

	token     uint64
	runID     string
	startedAt time.Time
	timers    map[uint64]Timer
	nextTimer uint64

	version  uint64
	advances uint64
	stale    uint64
	closed   bool
}

// NewScheduler creates an idle scheduler for p. p must have been validated.
func NewScheduler(p *Pipeline, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.RunIDs == nil {
		opts.RunIDs = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Scheduler{
		pipeline:   p,
		clock:      opts.Clock,
		gen:        NewGenerator(p.Metrics, opts.Sampler),
		logs:       NewLogStream(p.LogLimit, opts.IDs, opts.Clock),
		metrics:    NewMetricSet(p.Window),
		runIDs:     opts.RunIDs,
		logger:     opts.Logger.With(zap.String("pipeline", p.Name)),
		onChange:   opts.OnChange,
		timers:     make(map[uint64]Timer),
		status:     StatusIdle,
		stageIndex: -1,
		subStage:   -1,
		current:    p.Metrics.Initial,
	}
	return s
}

// Pipeline returns the pipeline this scheduler runs.
func (s *Scheduler) Pipeline() *Pipeline { return s.pipeline }

// Logs returns the run's log stream.
func (s *Scheduler) Logs() *LogStream { return s.logs }

// Start begins a new run from a clean state.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status == StatusRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.clearLocked()
	s.runID = s.runIDs()
	s.status = StatusRunning
	s.startedAt = s.clock.Now()
	if msg := s.pipeline.StartMessage; msg != "" {
		s.logs.Append(LevelInfo, msg)
	}
	s.beginPassLocked(s.pipeline.InitialDelay)
	s.logger.Debug("simulation started", zap.String("run_id", s.runID))
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Pause cancels every pending callback and freezes the run. Stage, epoch
// and metric data are kept.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}

	s.stopTimersLocked()
	s.status = StatusPaused
	if msg := s.pipeline.PauseMessage; msg != "" {
		s.logs.Append(LevelInfo, msg)
	}
	s.logger.Debug("simulation paused", zap.String("run_id", s.runID), zap.Int("epoch", s.epoch))
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Resume continues a paused epoch-loop run from its preserved epoch and
// metric history, starting the next pass at the first stage.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if !s.pipeline.Resumable() {
		s.mu.Unlock()
		return ErrResumeUnsupported
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status != StatusPaused {
		s.mu.Unlock()
		return ErrNotPaused
	}

	s.stopTimersLocked()
	s.status = StatusRunning
	s.stageIndex, s.subStage = -1, -1
	if msg := s.pipeline.ResumeMessage; msg != "" {
		s.logs.Append(LevelInfo, msg)
	}
	s.beginPassLocked(s.pipeline.InitialDelay)
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Reset cancels all pending callbacks and returns to idle with no epoch,
// stage, metrics or logs. It is valid in every state.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.clearLocked()
	s.status = StatusIdle
	s.runID = ""
	s.resolution = ""
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Close stops every timer for good. Start and Resume fail afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimersLocked()
	if s.status == StatusRunning {
		s.status = StatusPaused
	}
	s.closed = true
}

// SetOutputResolution records the resolution of the real output image so
// the final metrics of a one-shot run report it.
func (s *Scheduler) SetOutputResolution(res string) {
	s.mu.Lock()
	s.resolution = res
	if s.final != nil {
		s.final.OutputResolution = s.resolutionLocked()
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Snapshot returns a copy of the current state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Metrics returns a copy of the recorded series.
func (s *Scheduler) Metrics() SeriesView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.View()
}

// PendingTimers returns the number of callbacks scheduled for the active run.
func (s *Scheduler) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// clearLocked drops every pending callback and all derived run data.
func (s *Scheduler) clearLocked() {
	s.stopTimersLocked()
	s.logs.Clear()
	s.metrics.Clear()
	s.epoch = 0
	s.stageIndex, s.subStage = -1, -1
	s.current = s.pipeline.Metrics.Initial
	s.score = 0
	s.final = nil
}

// stopTimersLocked cancels every pending callback and invalidates any that
// already fired but have not yet acquired the lock.
func (s *Scheduler) stopTimersLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[uint64]Timer)
	s.token++
}

// scheduleLocked runs fn after d if the run it belongs to is still active
// and running at that point.
func (s *Scheduler) scheduleLocked(d time.Duration, fn func()) {
	token := s.token
	id := s.nextTimer
	s.nextTimer++

	s.timers[id] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		if token != s.token || s.status != StatusRunning {
			s.stale++
			s.mu.Unlock()
			return
		}
		fn()
		snap := s.changedLocked()
		s.mu.Unlock()

		s.notify(snap)
	})
}

func (s *Scheduler) beginPassLocked(delay time.Duration) {
	s.scheduleLocked(delay, func() { s.advanceLocked(0) })
	if s.pipeline.DriftInterval > 0 {
		s.scheduleLocked(s.pipeline.DriftInterval, s.driftLocked)
	}
}

// advanceLocked activates stage i, or finishes the pass when i is past the
// last stage.
func (s *Scheduler) advanceLocked(i int) {
	stages := s.pipeline.Stages
	if i >= len(stages) {
		s.finishPassLocked()
		return
	}

	s.advances++
	st := stages[i]
	s.stageIndex = i
	s.subStage = -1
	if len(st.SubStages) > 0 {
		s.subStage = 0
	}
	if st.DrawsScore {
		s.score = s.gen.Score()
	}
	if st.Message != "" {
		s.logs.Append(st.Level, st.Message)
	}

	for k := 1; k < len(st.SubStages); k++ {
		s.scheduleLocked(time.Duration(k)*st.SubStageInterval, func() {
			if s.stageIndex == i {
				s.subStage = k
			}
		})
	}
	s.scheduleLocked(st.Duration(), func() { s.advanceLocked(i + 1) })
}

func (s *Scheduler) finishPassLocked() {
	s.stageIndex, s.subStage = -1, -1
	p := s.pipeline

	if p.Mode == ModeOneShot {
		s.completeLocked()
		return
	}

	s.epoch++
	s.current = s.gen.Next(s.current)
	s.appendPointLocked()
	if !s.passDrawsScore() {
		s.score = s.gen.Score()
	}
	if p.EpochMessage != "" {
		s.logs.Append(LevelSuccess, expand(p.EpochMessage, s.epoch, s.score))
	}
	for _, h := range p.Hooks {
		if !h.Matches(s.epoch) {
			continue
		}
		for _, msg := range h.Messages {
			s.logs.Append(LevelInfo, expand(msg, s.epoch, s.score))
		}
	}

	if p.MaxEpochs > 0 && s.epoch >= p.MaxEpochs {
		s.completeLocked()
		return
	}
	s.scheduleLocked(p.EpochDelay, func() { s.advanceLocked(0) })
}

func (s *Scheduler) completeLocked() {
	s.stopTimersLocked()
	s.status = StatusCompleted
	s.final = &FinalMetrics{
		ProcessingTimeSeconds: s.clock.Now().Sub(s.startedAt).Seconds(),
		ScaleFactor:           s.pipeline.ScaleFactor,
		OutputResolution:      s.resolutionLocked(),
		Epochs:                s.epoch,
	}
	if msg := s.pipeline.CompleteMessage; msg != "" {
		s.logs.Append(LevelSuccess, msg)
	}
	s.logger.Debug("simulation completed",
		zap.String("run_id", s.runID),
		zap.Float64("elapsed_seconds", s.final.ProcessingTimeSeconds))
}

func (s *Scheduler) appendPointLocked() {
	for _, add := range []struct {
		series *Series
		value  float64
	}{
		{s.metrics.Generator, s.current.Generator},
		{s.metrics.Discriminator, s.current.Discriminator},
	} {
		if err := add.series.Append(Point{Epoch: s.epoch, Value: add.value}); err != nil {
			s.logger.Warn("metric point dropped", zap.Error(err))
		}
	}
	if s.pipeline.TrackPSNR {
		if err := s.metrics.PSNR.Append(Point{Epoch: s.epoch, Value: s.current.PSNR}); err != nil {
			s.logger.Warn("metric point dropped", zap.Error(err))
		}
	}
}

// driftLocked nudges the displayed losses and reschedules itself. It never
// touches the recorded series.
func (s *Scheduler) driftLocked() {
	s.current = s.gen.Drift(s.current)
	s.scheduleLocked(s.pipeline.DriftInterval, s.driftLocked)
}

func (s *Scheduler) passDrawsScore() bool {
	for _, st := range s.pipeline.Stages {
		if st.DrawsScore {
			return true
		}
	}
	return false
}

func (s *Scheduler) resolutionLocked() string {
	if s.resolution == "" {
		return NoResolution
	}
	return s.resolution
}

func (s *Scheduler) changedLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Scheduler) notify(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
