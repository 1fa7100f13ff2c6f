package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"
)

func preset(t *testing.T, name string) *Pipeline {
	t.Helper()
	p := FindPipeline(DefaultPipelines(), name)
	if p == nil {
		t.Fatalf("preset %q not found", name)
	}
	return p
}

func newTestScheduler(t *testing.T, name string) (*Scheduler, *ManualClock) {
	t.Helper()
	clock := NewManualClock(epoch0)
	runs := 0
	s := NewScheduler(preset(t, name), Options{
		Clock:   clock,
		Sampler: NewSampler(1),
		RunIDs: func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		},
	})
	t.Cleanup(s.Close)
	return s, clock
}

func logMessages(s *Scheduler) []string {
	var out []string
	for _, e := range s.Logs().Entries() {
		out = append(out, e.Message)
	}
	return out
}

func TestScheduler_ModelPipelineRunsToCompletion(t *testing.T) {
	s, clock := newTestScheduler(t, "model-pipeline")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clock.Advance(10 * time.Second)

	snap := s.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", snap.Status)
	}
	if snap.ActiveStage != "" || snap.StatusText != "Complete" {
		t.Errorf("ActiveStage = %q StatusText = %q, want none and Complete", snap.ActiveStage, snap.StatusText)
	}
	if snap.PendingTimers != 0 {
		t.Errorf("PendingTimers = %d, want 0", snap.PendingTimers)
	}

	want := []string{
		"Image received",
		"Sending request to backend",
		"Request received by FastAPI",
		"Preprocessing image",
		"Running generator",
		"Discriminator check (visual)",
		"Post-processing output",
		"Processing completed",
		"Processing completed",
	}
	got := logMessages(s)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("logs = %q, want %q", got, want)
	}

	entries := s.Logs().Entries()
	if last := entries[len(entries)-1]; last.Level != LevelSuccess {
		t.Errorf("last entry level = %s, want SUCCESS", last.Level)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Errorf("entry ids not increasing at %d: %d after %d", i, entries[i].ID, entries[i-1].ID)
		}
	}

	if snap.Final == nil {
		t.Fatal("Final = nil")
	}
	if math.Abs(snap.Final.ProcessingTimeSeconds-6.3) > 1e-9 {
		t.Errorf("ProcessingTimeSeconds = %v, want 6.3", snap.Final.ProcessingTimeSeconds)
	}
	if snap.Final.ScaleFactor != 4 || snap.Final.OutputResolution != NoResolution {
		t.Errorf("Final = %+v, want scale 4 and no resolution", snap.Final)
	}
	if snap.RealnessScore < 0.75 || snap.RealnessScore >= 0.9 {
		t.Errorf("RealnessScore = %v, want in [0.75, 0.9)", snap.RealnessScore)
	}

	s.SetOutputResolution("1024x1024")
	if got := s.Snapshot().Final.OutputResolution; got != "1024x1024" {
		t.Errorf("OutputResolution = %q after SetOutputResolution", got)
	}
}

func TestScheduler_ModelPipelineStageProgression(t *testing.T) {
	s, clock := newTestScheduler(t, "model-pipeline")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if snap := s.Snapshot(); snap.ActiveStage != "" || snap.StatusText != "Running" {
		t.Errorf("before first stage: ActiveStage = %q StatusText = %q", snap.ActiveStage, snap.StatusText)
	}

	// generator enters at 300ms + 4*600ms
	clock.Advance(2700 * time.Millisecond)
	snap := s.Snapshot()
	if snap.ActiveStage != "generator" || snap.SubStage != "Feature Extraction" {
		t.Fatalf("at 2.7s: stage %q sub-stage %q", snap.ActiveStage, snap.SubStage)
	}
	if snap.StatusText != "Running generator..." {
		t.Errorf("StatusText = %q", snap.StatusText)
	}

	clock.Advance(400 * time.Millisecond)
	if got := s.Snapshot().SubStage; got != "Residual Blocks" {
		t.Errorf("at 3.1s: sub-stage %q, want Residual Blocks", got)
	}
	clock.Advance(400 * time.Millisecond)
	if got := s.Snapshot().SubStage; got != "Upsampling" {
		t.Errorf("at 3.5s: sub-stage %q, want Upsampling", got)
	}
	clock.Advance(1000 * time.Millisecond)
	if snap := s.Snapshot(); snap.ActiveStage != "discriminator" || snap.SubStage != "" {
		t.Errorf("at 4.5s: stage %q sub-stage %q, want discriminator", snap.ActiveStage, snap.SubStage)
	}
}

func TestScheduler_NoAdvanceAfterPause(t *testing.T) {
	for _, name := range []string{"model-pipeline", "gan-architecture", "training"} {
		t.Run(name, func(t *testing.T) {
			s, clock := newTestScheduler(t, name)
			if err := s.Start(); err != nil {
				t.Fatal(err)
			}
			clock.Advance(3 * time.Second)

			if err := s.Pause(); err != nil {
				t.Fatalf("Pause() error = %v", err)
			}
			before := s.Snapshot()
			if before.PendingTimers != 0 {
				t.Errorf("PendingTimers = %d after pause, want 0", before.PendingTimers)
			}
			// a paused run keeps showing the stage it stopped on
			if name == "gan-architecture" && (before.ActiveStage == "" || before.StatusText != "Paused") {
				t.Errorf("paused: ActiveStage = %q StatusText = %q, want a stage and Paused", before.ActiveStage, before.StatusText)
			}
			logsBefore := s.Logs().Len()

			clock.Advance(5 * time.Minute)

			after := s.Snapshot()
			if after.Advances != before.Advances {
				t.Errorf("Advances = %d after pause, want %d", after.Advances, before.Advances)
			}
			if after.Epoch != before.Epoch || after.ActiveStage != before.ActiveStage {
				t.Errorf("state moved while paused: %+v -> %+v", before, after)
			}
			if after.Current != before.Current {
				t.Errorf("Current drifted while paused: %+v -> %+v", before.Current, after.Current)
			}
			if s.Logs().Len() != logsBefore {
				t.Errorf("log grew while paused: %d -> %d", logsBefore, s.Logs().Len())
			}
			if after.Status != StatusPaused || after.StatusText != "Paused" {
				t.Errorf("Status = %s %q, want paused", after.Status, after.StatusText)
			}
		})
	}
}

// stubbornClock never cancels timers, so callbacks fire after Pause and
// Reset and must be ignored by the scheduler.
type stubbornClock struct{ *ManualClock }

type ignoredStop struct{}

func (ignoredStop) Stop() bool { return false }

func (c stubbornClock) AfterFunc(d time.Duration, f func()) Timer {
	c.ManualClock.AfterFunc(d, f)
	return ignoredStop{}
}

func TestScheduler_LateCallbacksAreIgnored(t *testing.T) {
	clock := stubbornClock{NewManualClock(epoch0)}
	s := NewScheduler(preset(t, "gan-architecture"), Options{Clock: clock, Sampler: NewSampler(5)})
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()

	clock.Advance(time.Minute)

	after := s.Snapshot()
	if after.StaleCallbacks == 0 {
		t.Error("StaleCallbacks = 0, want late callbacks counted")
	}
	if after.Advances != before.Advances || after.Current != before.Current {
		t.Errorf("late callbacks changed state: %+v -> %+v", before, after)
	}

	// callbacks from the paused run must not leak into a resumed one
	if err := s.Resume(); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	clock.Advance(time.Minute)
	if snap := s.Snapshot(); snap.Epoch != 0 || snap.LogCount != 0 || snap.Status != StatusIdle {
		t.Errorf("after reset: %+v", snap)
	}
}

func TestScheduler_ResetClearsEverything(t *testing.T) {
	for _, name := range []string{"model-pipeline", "gan-architecture", "training"} {
		t.Run(name, func(t *testing.T) {
			s, clock := newTestScheduler(t, name)
			if err := s.Start(); err != nil {
				t.Fatal(err)
			}
			clock.Advance(20 * time.Second)

			s.Reset()

			snap := s.Snapshot()
			if snap.Status != StatusIdle || snap.StatusText != "" {
				t.Errorf("Status = %s %q, want idle", snap.Status, snap.StatusText)
			}
			if snap.Epoch != 0 || snap.ActiveStage != "" || snap.StageIndex != -1 {
				t.Errorf("Epoch = %d ActiveStage = %q StageIndex = %d", snap.Epoch, snap.ActiveStage, snap.StageIndex)
			}
			if snap.Final != nil || snap.RunID != "" {
				t.Errorf("Final = %+v RunID = %q, want cleared", snap.Final, snap.RunID)
			}
			if snap.LogCount != 0 || snap.PointCount != 0 || snap.PendingTimers != 0 {
				t.Errorf("logs %d points %d timers %d, want all 0", snap.LogCount, snap.PointCount, snap.PendingTimers)
			}
			if snap.Current != s.Pipeline().Metrics.Initial {
				t.Errorf("Current = %+v, want initial values", snap.Current)
			}
			m := s.Metrics()
			if len(m.Generator)+len(m.Discriminator)+len(m.PSNR) != 0 {
				t.Errorf("Metrics() = %+v, want empty", m)
			}

			advances := snap.Advances
			clock.Advance(time.Minute)
			if got := s.Snapshot().Advances; got != advances {
				t.Errorf("Advances moved after reset: %d -> %d", advances, got)
			}
		})
	}
}

func TestScheduler_ResetFromIdleIsNoop(t *testing.T) {
	s, _ := newTestScheduler(t, "training")
	s.Reset()
	if snap := s.Snapshot(); snap.Status != StatusIdle || snap.LogCount != 0 {
		t.Errorf("Reset() from idle: %+v", snap)
	}
}

func TestScheduler_GANEpochsThenReset(t *testing.T) {
	s, clock := newTestScheduler(t, "gan-architecture")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	clock.Advance(24699 * time.Millisecond)
	if got := s.Snapshot().Epoch; got != 2 {
		t.Fatalf("Epoch at 24.699s = %d, want 2", got)
	}
	clock.Advance(time.Millisecond)

	snap := s.Snapshot()
	if snap.Epoch != 3 {
		t.Fatalf("Epoch at 24.7s = %d, want 3", snap.Epoch)
	}
	m := s.Metrics()
	if len(m.Generator) != 3 || len(m.Discriminator) != 3 {
		t.Fatalf("series lengths = %d/%d, want 3", len(m.Generator), len(m.Discriminator))
	}
	if len(m.PSNR) != 0 {
		t.Errorf("PSNR tracked for gan-architecture: %v", m.PSNR)
	}
	for i, p := range m.Generator {
		if p.Epoch != i+1 {
			t.Errorf("Generator[%d].Epoch = %d", i, p.Epoch)
		}
	}
	entries := s.Logs().Entries()
	if len(entries) != 16 {
		t.Errorf("log count = %d, want 16", len(entries))
	}
	if last := entries[len(entries)-1]; last.Message != "Epoch 3 completed" || last.Level != LevelSuccess {
		t.Errorf("last entry = %+v", last)
	}

	s.Reset()
	snap = s.Snapshot()
	if snap.Epoch != 0 || snap.PointCount != 0 || snap.LogCount != 0 {
		t.Errorf("after reset: %+v", snap)
	}
}

func TestScheduler_DriftLeavesSeriesAlone(t *testing.T) {
	s, clock := newTestScheduler(t, "gan-architecture")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	clock.Advance(7700 * time.Millisecond)
	recorded := s.Metrics()
	if len(recorded.Generator) != 1 {
		t.Fatalf("points = %d, want 1", len(recorded.Generator))
	}

	// drift ticks at 8.0s; the next pass starts at 8.5s
	clock.Advance(700 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Current.Generator >= recorded.Generator[0].Value {
		t.Errorf("Current.Generator = %v, want drifted below %v", snap.Current.Generator, recorded.Generator[0].Value)
	}
	now := s.Metrics()
	if len(now.Generator) != 1 || now.Generator[0] != recorded.Generator[0] {
		t.Errorf("series changed by drift: %v -> %v", recorded.Generator, now.Generator)
	}
}

func TestScheduler_TrainingPauseResume(t *testing.T) {
	s, clock := newTestScheduler(t, "training")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	clock.Advance(15 * time.Second)
	if got := s.Snapshot().Epoch; got != 10 {
		t.Fatalf("Epoch = %d, want 10", got)
	}
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := s.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Pause() error = %v, want ErrNotRunning", err)
	}
	clock.Advance(time.Minute)

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	runID := s.Snapshot().RunID
	clock.Advance(1500 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Epoch != 11 || snap.PointCount != 11 {
		t.Fatalf("after resume: epoch %d points %d, want 11", snap.Epoch, snap.PointCount)
	}
	if snap.RunID != runID {
		t.Errorf("RunID changed on resume: %q -> %q", runID, snap.RunID)
	}
	m := s.Metrics()
	if m.PSNR[10].Epoch != 11 || m.Generator[10].Epoch != 11 {
		t.Errorf("resumed epoch numbering = %d", m.Generator[10].Epoch)
	}

	msgs := logMessages(s)
	if msgs[6] != "Training paused" || msgs[7] != "Training resumed" {
		t.Errorf("logs = %q", msgs)
	}
}

func TestScheduler_TrainingStopsAtMaxEpochs(t *testing.T) {
	s, clock := newTestScheduler(t, "training")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	clock.Advance(119 * time.Second)
	if snap := s.Snapshot(); snap.Status != StatusRunning || snap.Epoch != 79 {
		t.Fatalf("at 119s: %s epoch %d", snap.Status, snap.Epoch)
	}
	clock.Advance(10 * time.Minute)

	snap := s.Snapshot()
	if snap.Status != StatusCompleted || snap.Epoch != 80 {
		t.Fatalf("Status = %s Epoch = %d, want completed at 80", snap.Status, snap.Epoch)
	}
	if snap.Final == nil || snap.Final.Epochs != 80 {
		t.Errorf("Final = %+v", snap.Final)
	}
	if snap.PendingTimers != 0 {
		t.Errorf("PendingTimers = %d", snap.PendingTimers)
	}

	m := s.Metrics()
	if len(m.Generator) != 80 || len(m.PSNR) != 80 {
		t.Errorf("series lengths = %d/%d, want 80", len(m.Generator), len(m.PSNR))
	}
	for _, p := range m.PSNR {
		if p.Value > 35 {
			t.Errorf("PSNR %v above ceiling at epoch %d", p.Value, p.Epoch)
		}
	}
	for _, p := range m.Generator {
		if p.Value < 0.05 {
			t.Errorf("generator loss %v below floor at epoch %d", p.Value, p.Epoch)
		}
	}

	msgs := logMessages(s)
	if len(msgs) != 28 {
		t.Fatalf("log count = %d, want 28: %q", len(msgs), msgs)
	}
	if msgs[0] != "Training started" || msgs[1] != "Loading image" || msgs[2] != "Downsampling to 64x64" {
		t.Errorf("first entries = %q", msgs[:3])
	}
	if msgs[3] != "Running Generator (epoch 10)" || !strings.HasPrefix(msgs[5], "Discriminator score: 0.") {
		t.Errorf("epoch 10 hook = %q", msgs[3:6])
	}
	if msgs[27] != "Training run completed" {
		t.Errorf("last entry = %q", msgs[27])
	}
}

func TestScheduler_IllegalTransitions(t *testing.T) {
	s, clock := newTestScheduler(t, "model-pipeline")

	if err := s.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Pause() from idle error = %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrResumeUnsupported) {
		t.Errorf("Resume() on one-shot error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v", err)
	}

	clock.Advance(10 * time.Second)
	first := s.Snapshot().RunID

	// a completed run can be started again from a clean slate
	if err := s.Start(); err != nil {
		t.Fatalf("Start() after completion error = %v", err)
	}
	snap := s.Snapshot()
	if snap.RunID == first || snap.LogCount != 0 || snap.Final != nil {
		t.Errorf("restart kept old run data: %+v", snap)
	}

	tr, _ := newTestScheduler(t, "training")
	if err := tr.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume() from idle error = %v", err)
	}
}

func TestScheduler_Close(t *testing.T) {
	s, clock := newTestScheduler(t, "gan-architecture")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	s.Close()

	if clock.Pending() != 0 {
		t.Errorf("clock has %d pending callbacks after Close", clock.Pending())
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrClosed) {
		t.Errorf("Resume() after Close error = %v", err)
	}
}

func TestScheduler_OnChangeVersionsIncrease(t *testing.T) {
	clock := NewManualClock(epoch0)
	var versions []uint64
	s := NewScheduler(preset(t, "model-pipeline"), Options{
		Clock:    clock,
		Sampler:  NewSampler(3),
		OnChange: func(snap Snapshot) { versions = append(versions, snap.Version) },
	})
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)
	s.Reset()

	if len(versions) < 10 {
		t.Fatalf("got %d notifications, want at least 10", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("version %d after %d", versions[i], versions[i-1])
		}
	}
}

func TestScheduler_SharedIDsAcrossSchedulers(t *testing.T) {
	clock := NewManualClock(epoch0)
	ids := &Sequence{}
	a := NewScheduler(preset(t, "gan-architecture"), Options{Clock: clock, IDs: ids})
	b := NewScheduler(preset(t, "training"), Options{Clock: clock, IDs: ids})
	defer a.Close()
	defer b.Close()

	_ = a.Start()
	_ = b.Start()
	clock.Advance(20 * time.Second)

	seen := map[uint64]bool{}
	for _, e := range append(a.Logs().Entries(), b.Logs().Entries()...) {
		if seen[e.ID] {
			t.Fatalf("duplicate log id %d", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestScheduler_RealClockPause(t *testing.T) {
	p := &Pipeline{
		Name: "quick",
		Mode: ModeEpochLoop,
		Stages: []Stage{
			{ID: "a", Message: "a", Delay: 5 * time.Millisecond},
			{ID: "b", Message: "b", Delay: 5 * time.Millisecond},
		},
		EpochDelay: 5 * time.Millisecond,
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	notified := 0
	s := NewScheduler(p, Options{OnChange: func(Snapshot) {
		mu.Lock()
		notified++
		mu.Unlock()
	}})
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()
	if before.Advances == 0 {
		t.Fatal("no stage advanced before pause")
	}

	time.Sleep(60 * time.Millisecond)
	after := s.Snapshot()
	if after.Advances != before.Advances || after.LogCount != before.LogCount {
		t.Errorf("advanced while paused: %d -> %d", before.Advances, after.Advances)
	}

	mu.Lock()
	defer mu.Unlock()
	if notified == 0 {
		t.Error("OnChange never called")
	}
}
