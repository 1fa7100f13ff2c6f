// Package pages holds the dashboard's page workspaces. Each workspace owns
// a log stream, optionally a simulation scheduler, and the page's current
// input image and upload task.
package pages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"srdash/artifacts"
	"srdash/enhance"
	"srdash/simulation"
)

// Name identifies a page.
type Name string

const (
	ModelPipeline   Name = "model-pipeline"
	GANArchitecture Name = "gan-architecture"
	Training        Name = "training"
	Upload          Name = "upload"
)

// Endpoints used for real inference.
const (
	EndpointEnhance      = "/enhance"
	EndpointSuperResolve = "/super-resolve"
)

// StepInterval is how often the processing indicator moves forward.
const StepInterval = 600 * time.Millisecond

// Errors returned by workspace operations.
var (
	ErrNoSimulation = errors.New("page has no simulation")
	ErrNoUpload     = errors.New("page does not accept uploads")
	ErrNoInput      = errors.New("no image selected")
	ErrTaskPending  = errors.New("an enhancement request is already in flight")
	ErrNoPreview    = errors.New("page has no preview series")
	ErrClosed       = errors.New("page closed")
)

// Enhancer performs the backend calls. *enhance.Client implements it.
type Enhancer interface {
	Enhance(ctx context.Context, u enhance.Upload, scale int) (*enhance.Result, error)
	SuperResolve(ctx context.Context, u enhance.Upload) (*enhance.Result, error)
}

// Workspace is one page of the dashboard.
//
// Lock order: the workspace lock is never held while calling into the
// scheduler, because scheduler notifications re-enter the workspace.
type Workspace struct {
	mu sync.Mutex

	name     Name
	title    string
	endpoint string
	sched    *simulation.Scheduler
	logs     *simulation.LogStream
	preview  *simulation.Pipeline

	store     *artifacts.Store
	enhancer  Enhancer
	history   HistoryRecorder
	clock     simulation.Clock
	logger    *zap.Logger
	seed      uint64
	maxUpload int64
	onChange  func(State)

	input   *artifacts.Artifact
	output  *artifacts.Artifact
	task    *UploadTask
	cancel  context.CancelFunc
	taskGen uint64
	metrics *UploadMetrics
	errMsg  string

	processing bool
	step       int
	stepTimer  simulation.Timer

	previewSeries *simulation.SeriesView

	closed bool
	wg     sync.WaitGroup
}

// Name returns the page name.
func (w *Workspace) Name() Name { return w.name }

// Title returns the page title.
func (w *Workspace) Title() string { return w.title }

// Scheduler returns the page's scheduler, or nil.
func (w *Workspace) Scheduler() *simulation.Scheduler { return w.sched }

// Logs returns the page's log stream.
func (w *Workspace) Logs() *simulation.LogStream { return w.logs }

// AcceptsUploads reports whether the page runs real inference.
func (w *Workspace) AcceptsUploads() bool { return w.endpoint != "" }

// Start begins a simulation run.
func (w *Workspace) Start() error {
	if w.sched == nil {
		return ErrNoSimulation
	}
	return w.sched.Start()
}

// Pause freezes the simulation.
func (w *Workspace) Pause() error {
	if w.sched == nil {
		return ErrNoSimulation
	}
	return w.sched.Pause()
}

// Resume continues a paused epoch-loop simulation.
func (w *Workspace) Resume() error {
	if w.sched == nil {
		return ErrNoSimulation
	}
	return w.sched.Resume()
}

// Reset returns the simulation to idle and clears its logs and series.
func (w *Workspace) Reset() error {
	if w.sched == nil {
		return ErrNoSimulation
	}
	w.sched.Reset()
	return nil
}

// ClearLogs empties the page's log stream.
func (w *Workspace) ClearLogs() {
	w.logs.Clear()
	w.emit()
}

// Metrics returns the recorded series, empty for pages without a
// simulation.
func (w *Workspace) Metrics() simulation.SeriesView {
	if w.sched == nil {
		return simulation.SeriesView{}
	}
	return w.sched.Metrics()
}

// PreviewSeries returns the synthetic history shown before a run has
// data. It is generated once per workspace so the idle chart is stable.
func (w *Workspace) PreviewSeries() (simulation.SeriesView, error) {
	if w.preview == nil || w.preview.Preview == nil {
		return simulation.SeriesView{}, ErrNoPreview
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.previewSeries == nil {
		p := w.preview.Preview
		view := simulation.GenerateHistory(p.Metrics, simulation.NewSampler(w.seed), p.Epochs)
		w.previewSeries = &view
	}
	return *w.previewSeries, nil
}

// SelectFile validates u and makes it the page's input. Any in-flight
// request for the previous input is cancelled and its result discarded;
// the previous preview and output are released before the new preview is
// stored. A rejected file leaves an inline error and no log entry.
func (w *Workspace) SelectFile(u enhance.Upload) (artifacts.Artifact, error) {
	if !w.AcceptsUploads() {
		return artifacts.Artifact{}, ErrNoUpload
	}
	if err := enhance.ValidateUpload(&u, w.maxUpload); err != nil {
		w.mu.Lock()
		w.errMsg = err.Error()
		w.mu.Unlock()
		w.emit()
		return artifacts.Artifact{}, err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return artifacts.Artifact{}, ErrClosed
	}
	w.discardLocked()
	w.releaseLocked()

	a, err := w.store.Put(artifacts.KindPreview, u.Name, u.ContentType, u.Data)
	if err != nil {
		w.mu.Unlock()
		return artifacts.Artifact{}, fmt.Errorf("store preview: %w", err)
	}
	w.input = &a
	w.mu.Unlock()

	w.logger.Debug("input selected",
		zap.String("artifact_id", a.ID),
		zap.String("name", u.Name),
		zap.Int("size_bytes", a.Size))
	w.emit()
	return a, nil
}

// ClearFile drops the input, the output and any in-flight request.
func (w *Workspace) ClearFile() {
	w.mu.Lock()
	w.discardLocked()
	w.releaseLocked()
	w.mu.Unlock()
	w.emit()
}

// Process submits the current input to the backend. The upload page calls
// /enhance with scale; the model-pipeline page calls /super-resolve and
// ignores scale. The returned task resolves or rejects asynchronously,
// appending exactly one SUCCESS or ERROR entry to the log.
func (w *Workspace) Process(scale int) (UploadTask, error) {
	if !w.AcceptsUploads() {
		return UploadTask{}, ErrNoUpload
	}
	if w.endpoint == EndpointEnhance {
		if err := enhance.ValidateScale(scale); err != nil {
			return UploadTask{}, err
		}
	} else {
		scale = 0
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return UploadTask{}, ErrClosed
	}
	if w.input == nil {
		w.mu.Unlock()
		return UploadTask{}, ErrNoInput
	}
	if w.task != nil && w.task.Status == TaskPending {
		w.mu.Unlock()
		return UploadTask{}, ErrTaskPending
	}
	meta, data, ok := w.store.Get(w.input.ID)
	if !ok {
		w.mu.Unlock()
		return UploadTask{}, ErrNoInput
	}

	if w.output != nil {
		w.store.Release(w.output.ID)
		w.output = nil
	}
	w.metrics = nil
	w.errMsg = ""

	task := &UploadTask{
		ID:        uuid.NewString(),
		Endpoint:  w.endpoint,
		Scale:     scale,
		InputName: meta.Name,
		Status:    TaskPending,
		StartedAt: w.clock.Now(),
	}
	w.task = task
	w.taskGen++
	gen := w.taskGen

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	if w.endpoint == EndpointEnhance {
		w.logs.Append(simulation.LevelInfo, "Image selected")
		w.logs.Append(simulation.LevelInfo, "Sending request to backend")
		w.logs.Append(simulation.LevelInfo, "Processing started")
		w.processing = true
		w.step = 1
		w.scheduleStepLocked(gen)
	} else {
		w.logs.Append(simulation.LevelInfo, "Sending image to backend...")
		w.processing = true
	}
	snapshot := *task
	upload := enhance.Upload{Name: meta.Name, ContentType: meta.ContentType, Data: data}
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.Info("enhancement task started",
		zap.String("task_id", task.ID),
		zap.String("endpoint", w.endpoint),
		zap.Int("scale", scale))
	w.emit()

	go w.run(ctx, gen, upload, scale)
	return snapshot, nil
}

func (w *Workspace) run(ctx context.Context, gen uint64, u enhance.Upload, scale int) {
	defer w.wg.Done()

	var res *enhance.Result
	var err error
	if w.endpoint == EndpointEnhance {
		res, err = w.enhancer.Enhance(ctx, u, scale)
	} else {
		res, err = w.enhancer.SuperResolve(ctx, u)
	}
	w.settle(gen, res, err)
}

// settle resolves or rejects the task of generation gen. A result for a
// superseded task is dropped without touching page state.
func (w *Workspace) settle(gen uint64, res *enhance.Result, err error) {
	w.mu.Lock()
	if gen != w.taskGen || w.task == nil || w.task.Status != TaskPending {
		w.mu.Unlock()
		w.logger.Debug("discarding superseded enhancement result")
		return
	}

	task := w.task
	task.FinishedAt = w.clock.Now()
	w.cancel()
	w.cancel = nil
	w.stopStepLocked()
	w.processing = false
	w.step = 0

	if err == nil {
		err = w.resolveLocked(task, res)
	}
	if err != nil {
		msg := err.Error()
		task.Status = TaskRejected
		task.Error = msg
		w.errMsg = msg
		w.logs.Append(simulation.LevelError, msg)
	}
	record := w.recordLocked(task)
	resolution := ""
	if task.Status == TaskResolved && w.output != nil {
		resolution = w.output.Resolution()
	}
	w.mu.Unlock()

	if task.Status == TaskResolved {
		w.logger.Info("enhancement task resolved",
			zap.String("task_id", task.ID),
			zap.Float64("elapsed_seconds", task.ElapsedSeconds))
		if w.sched != nil && resolution != "" {
			w.sched.SetOutputResolution(resolution)
		}
	} else {
		w.logger.Warn("enhancement task rejected",
			zap.String("task_id", task.ID),
			zap.String("error", task.Error))
	}
	if w.history != nil {
		w.history.RecordEnhancement(record)
	}
	w.emit()
}

// resolveLocked stores the output and fills the metrics. It fails only if
// the output cannot be stored, which rejects the task instead.
func (w *Workspace) resolveLocked(task *UploadTask, res *enhance.Result) error {
	out, err := w.store.Put(artifacts.KindOutput, "output.png", "", res.Image)
	if err != nil {
		return fmt.Errorf("store output: %w", err)
	}
	w.output = &out

	task.Status = TaskResolved
	task.OutputID = out.ID
	task.ScaleEcho = res.Scale
	task.ElapsedSeconds = res.ElapsedSeconds

	before := NoValue
	if w.input != nil {
		if r := w.input.Resolution(); r != "" {
			before = r
		} else if w.input.Name != "" {
			before = w.input.Name
		}
	}
	after := out.Resolution()
	if after == "" && res.Scale > 0 {
		after = fmt.Sprintf("%d× upscaled", res.Scale)
	}
	if after == "" {
		after = NoValue
	}
	w.metrics = &UploadMetrics{
		ScaleFactor:      res.Scale,
		TimeSeconds:      res.ElapsedSeconds,
		ResolutionBefore: before,
		ResolutionAfter:  after,
	}

	if w.endpoint == EndpointEnhance {
		w.logs.Append(simulation.LevelSuccess, "Processing completed")
	} else {
		w.logs.Append(simulation.LevelSuccess, fmt.Sprintf("Processing completed in %.2fs", res.ElapsedSeconds))
	}
	return nil
}

// NoValue is shown for unknown metrics.
const NoValue = simulation.NoResolution

func (w *Workspace) recordLocked(task *UploadTask) EnhancementRecord {
	rec := EnhancementRecord{
		TaskID:         task.ID,
		Page:           string(w.name),
		Endpoint:       task.Endpoint,
		Scale:          task.Scale,
		InputName:      task.InputName,
		Status:         string(task.Status),
		Error:          task.Error,
		ElapsedSeconds: task.ElapsedSeconds,
		CreatedAt:      task.FinishedAt,
	}
	if w.input != nil {
		rec.InputBytes = int64(w.input.Size)
		rec.InputResolution = w.input.Resolution()
	}
	if task.Status == TaskResolved && w.output != nil {
		rec.OutputBytes = int64(w.output.Size)
		rec.OutputResolution = w.output.Resolution()
	}
	return rec
}

// discardLocked cancels the in-flight request, if any, and marks its task
// discarded so a late result is dropped.
func (w *Workspace) discardLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.task != nil && w.task.Status == TaskPending {
		w.task.Status = TaskDiscarded
		w.task.FinishedAt = w.clock.Now()
	}
	w.taskGen++
	w.stopStepLocked()
	w.processing = false
	w.step = 0
}

// releaseLocked drops the preview and output and clears derived state.
func (w *Workspace) releaseLocked() {
	if w.input != nil {
		w.store.Release(w.input.ID)
		w.input = nil
	}
	if w.output != nil {
		w.store.Release(w.output.ID)
		w.output = nil
	}
	w.metrics = nil
	w.errMsg = ""
	w.task = nil
}

func (w *Workspace) scheduleStepLocked(gen uint64) {
	w.stepTimer = w.clock.AfterFunc(StepInterval, func() {
		w.mu.Lock()
		if gen != w.taskGen || !w.processing {
			w.mu.Unlock()
			return
		}
		if w.step < len(StepLabels)-1 {
			w.step++
		}
		w.scheduleStepLocked(gen)
		w.mu.Unlock()
		w.emit()
	})
}

func (w *Workspace) stopStepLocked() {
	if w.stepTimer != nil {
		w.stepTimer.Stop()
		w.stepTimer = nil
	}
}

// State returns a snapshot of the page.
func (w *Workspace) State() State {
	var snap *simulation.Snapshot
	if w.sched != nil {
		s := w.sched.Snapshot()
		snap = &s
	}
	return w.state(snap)
}

func (w *Workspace) state(snap *simulation.Snapshot) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{
		Name:       w.name,
		Title:      w.title,
		Simulation: snap,
		Processing: w.processing,
		Step:       w.step,
		Error:      w.errMsg,
		LogCount:   w.logs.Len(),
	}
	if w.processing {
		st.StepLabel = StepLabels[w.step]
	}
	if w.input != nil {
		in := *w.input
		st.Input = &in
	}
	if w.output != nil {
		out := *w.output
		st.Output = &out
	}
	if w.task != nil {
		task := *w.task
		st.Task = &task
	}
	if w.metrics != nil {
		m := *w.metrics
		st.Metrics = &m
	}
	return st
}

func (w *Workspace) emit() {
	if w.onChange != nil {
		w.onChange(w.State())
	}
}

func (w *Workspace) emitSnapshot(snap simulation.Snapshot) {
	if w.onChange != nil {
		w.onChange(w.state(&snap))
	}
}

// Wait blocks until no backend request is in flight.
func (w *Workspace) Wait() {
	w.wg.Wait()
}

// Close cancels every timer and in-flight request, releases the page's
// artifacts and waits for request goroutines to return.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.discardLocked()
	w.releaseLocked()
	w.mu.Unlock()

	if w.sched != nil {
		w.sched.Close()
	}
	w.wg.Wait()
}
